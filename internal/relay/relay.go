// Package relay streams upstream Xtream live, movie and series streams to
// downstream clients.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/metrics"
	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

// Default relay settings.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
	DefaultBufferSize     = 32 * 1024
)

var (
	// ErrIdleTimeout is returned when the upstream sends nothing for longer
	// than the idle timeout.
	ErrIdleTimeout = errors.New("upstream idle timeout")

	// ErrNoInput is returned when a request carries no upstream input.
	ErrNoInput = errors.New("no upstream input")
)

// Kind is the stream family of a relay request.
type Kind string

// Stream kinds.
const (
	KindLive   Kind = xtream.KindLive
	KindMovie  Kind = xtream.KindMovie
	KindSeries Kind = xtream.KindSeries
)

// ParseKind maps a path segment to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindLive, KindMovie, KindSeries:
		return Kind(s), true
	default:
		return "", false
	}
}

// UpstreamError reports a failed upstream connection. StatusCode is zero
// when no response was received.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Config holds relay settings.
type Config struct {
	// ConnectTimeout bounds dialing, the TLS handshake and waiting for
	// response headers.
	ConnectTimeout time.Duration

	// IdleTimeout aborts a stream when no upstream bytes arrive for this long.
	// There is no limit on total stream duration.
	IdleTimeout time.Duration

	BufferSize int
	Logger     *slog.Logger
}

// ConfigFromSettings converts the configuration file block, applying
// defaults to zero values.
func ConfigFromSettings(s config.RelayConfig) Config {
	cfg := Config{
		ConnectTimeout: s.ConnectTimeout,
		IdleTimeout:    s.IdleTimeout,
		BufferSize:     int(s.BufferSize),
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return cfg
}

// Request identifies one stream to relay.
type Request struct {
	Target   string
	Input    *config.InputConfig
	Kind     Kind
	StreamID string
}

// Relay proxies upstream streams byte for byte. Requests are never retried.
type Relay struct {
	cfg     Config
	client  *http.Client
	tracker *SessionTracker
	logger  *slog.Logger
}

// New creates a relay. A nil tracker disables session tracking.
func New(cfg Config, tracker *SessionTracker) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	return &Relay{
		cfg: cfg,
		// No client timeout: it would also bound reading the body and cut
		// long-running streams.
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.ConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   cfg.ConnectTimeout,
				ResponseHeaderTimeout: cfg.ConnectTimeout,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
			},
		},
		tracker: tracker,
		logger:  cfg.Logger,
	}
}

// Tracker returns the session tracker, which may be nil.
func (r *Relay) Tracker() *SessionTracker {
	return r.tracker
}

// Open connects to the upstream stream. The response is returned only for a
// 2xx status; anything else is an *UpstreamError.
func (r *Relay) Open(ctx context.Context, req Request) (*http.Response, error) {
	if req.Input == nil {
		return nil, ErrNoInput
	}

	conn := xtream.NewConnection(req.Input.URL, req.Input.Username, req.Input.Password)
	upstreamURL := conn.StreamURL(string(req.Kind), req.StreamID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL, nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	for k, v := range req.Input.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Serve relays the requested stream to w. When the upstream cannot be
// opened nothing is written and an *UpstreamError is returned, so the caller
// can still choose the status code. Once streaming has started, the returned
// error only describes why the stream ended.
func (r *Relay) Serve(w http.ResponseWriter, httpReq *http.Request, req Request) error {
	ctx, cancel := context.WithCancelCause(httpReq.Context())
	defer cancel(nil)

	logger := r.logger.With(
		slog.String("target", req.Target),
		slog.String("kind", string(req.Kind)),
		slog.String("stream_id", req.StreamID),
	)

	resp, err := r.Open(ctx, req)
	if err != nil {
		metrics.RelayUpstreamFailures.WithLabelValues(string(req.Kind)).Inc()
		observability.WithError(logger, err).Debug("relay upstream unavailable")
		return err
	}
	defer resp.Body.Close()

	// Streams outlive any server-wide write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("failed to clear write deadline", slog.String("error", err.Error()))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)

	session := NewSession(req, httpReq.RemoteAddr, httpReq.UserAgent())
	if r.tracker != nil {
		r.tracker.Register(session)
		defer r.tracker.Unregister(session.ID)
	}

	logger.Debug("relay started", slog.String("session_id", session.ID.String()))
	err = r.copy(ctx, cancel, rc, w, resp.Body, session)
	logger.Debug("relay finished",
		slog.String("session_id", session.ID.String()),
		slog.Uint64("bytes", session.BytesOut()),
		slog.Duration("duration", time.Since(session.StartedAt)),
		slog.Any("reason", err),
	)
	return err
}

// copy moves bytes from body to w through a fixed buffer, flushing after
// every write. The watchdog runs only while waiting on the upstream, so a
// slow client does not count as upstream idleness.
func (r *Relay) copy(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	rc *http.ResponseController,
	w io.Writer,
	body io.Reader,
	session *Session,
) error {
	buf := make([]byte, r.cfg.BufferSize)
	watchdog := newIdleWatchdog(r.cfg.IdleTimeout, func() { cancel(ErrIdleTimeout) })
	defer watchdog.disarm()

	for {
		watchdog.arm()
		n, readErr := body.Read(buf)
		watchdog.disarm()

		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing to client: %w", err)
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return fmt.Errorf("flushing to client: %w", err)
			}
			session.AddBytesOut(uint64(n))
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return fmt.Errorf("reading upstream: %w", readErr)
		}
	}
}
