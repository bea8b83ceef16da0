package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/xtarr/internal/config"
)

func testInput(url string) *config.InputConfig {
	return &config.InputConfig{
		Name:     "provider",
		Type:     config.InputTypeXtream,
		URL:      url,
		Username: "pu",
		Password: "pp",
		Headers:  map[string]string{"X-Provider": "abc"},
	}
}

func testConfig() Config {
	return Config{ConnectTimeout: time.Second, IdleTimeout: time.Second, BufferSize: 1024}
}

// serveRelay exposes r through a real server so clients can stream from it.
func serveRelay(t *testing.T, r *Relay, req Request, errs chan<- error) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, httpReq *http.Request) {
		err := r.Serve(w, httpReq, req)
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			w.WriteHeader(http.StatusBadRequest)
		}
		if errs != nil {
			errs <- err
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"live", KindLive, true},
		{"movie", KindMovie, true},
		{"series", KindSeries, true},
		{"vod", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(config.RelayConfig{})
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)

	cfg = ConfigFromSettings(config.RelayConfig{ConnectTimeout: time.Second, IdleTimeout: 5 * time.Second, BufferSize: 4096})
	assert.Equal(t, time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 4096, cfg.BufferSize)
}

func TestRelay_PassThrough(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	var gotPath, gotHeader string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Provider")
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	tracker := NewSessionTracker()
	r := New(testConfig(), tracker)
	errs := make(chan error, 1)
	srv := serveRelay(t, r, Request{Target: "family", Input: testInput(upstream.URL), Kind: KindLive, StreamID: "42"}, errs)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))
	assert.Equal(t, payload, body)
	assert.Equal(t, "/live/pu/pp/42", gotPath)
	assert.Equal(t, "abc", gotHeader)

	require.NoError(t, <-errs)
	assert.Zero(t, tracker.Count(), "finished sessions are unregistered")
}

func TestRelay_NonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError, http.StatusFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			calls := 0
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.Header().Set("Location", "/elsewhere")
				w.WriteHeader(status)
			}))
			defer upstream.Close()

			r := New(testConfig(), nil)
			// Redirects are returned to the relay untouched.
			r.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/movie/alice/secret/7", nil)
			err := r.Serve(rec, req, Request{Input: testInput(upstream.URL), Kind: KindMovie, StreamID: "7"})

			var upstreamErr *UpstreamError
			require.ErrorAs(t, err, &upstreamErr)
			assert.Equal(t, status, upstreamErr.StatusCode)
			assert.Zero(t, rec.Body.Len(), "nothing is written before the upstream succeeds")
			assert.Empty(t, rec.Header().Get("Content-Type"))
			assert.Equal(t, 1, calls, "no retries")
		})
	}
}

func TestRelay_TransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	r := New(testConfig(), nil)
	err := r.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil),
		Request{Input: testInput(url), Kind: KindLive, StreamID: "1"})

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Zero(t, upstreamErr.StatusCode)
}

func TestRelay_NoInput(t *testing.T) {
	r := New(testConfig(), nil)
	err := r.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), Request{Kind: KindLive, StreamID: "1"})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRelay_ConnectTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	r := New(cfg, nil)

	start := time.Now()
	_, err := r.Open(context.Background(), Request{Input: testInput(upstream.URL), Kind: KindLive, StreamID: "1"})

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRelay_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("first-chunk"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	r := New(cfg, NewSessionTracker())

	errs := make(chan error, 1)
	srv := serveRelay(t, r, Request{Input: testInput(upstream.URL), Kind: KindLive, StreamID: "1"}, errs)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "first-chunk", string(body))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrIdleTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after the idle timeout")
	}
}

func TestRelay_SteadyStreamOutlivesIdleTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i < 6; i++ {
			_, _ = w.Write([]byte("tick"))
			w.(http.Flusher).Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	r := New(cfg, nil)

	errs := make(chan error, 1)
	srv := serveRelay(t, r, Request{Input: testInput(upstream.URL), Kind: KindSeries, StreamID: "901"}, errs)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("tick", 6), string(body))
	require.NoError(t, <-errs)
}

func TestRelay_ClientDisconnectCancelsUpstream(t *testing.T) {
	upstreamDone := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(upstreamDone)
		for {
			if _, err := w.Write([]byte("data")); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer upstream.Close()

	tracker := NewSessionTracker()
	r := New(testConfig(), tracker)
	errs := make(chan error, 1)
	srv := serveRelay(t, r, Request{Target: "family", Input: testInput(upstream.URL), Kind: KindLive, StreamID: "42"}, errs)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return tracker.Count() == 1 }, time.Second, 5*time.Millisecond)
	sessions := tracker.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, "family", sessions[0].Target)
	assert.Equal(t, "provider", sessions[0].Input)
	assert.Equal(t, KindLive, sessions[0].Kind)

	cancel()
	resp.Body.Close()

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay kept streaming after the client left")
	}
	select {
	case <-upstreamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not canceled")
	}
	assert.Zero(t, tracker.Count())
}

func TestUpstreamError_Message(t *testing.T) {
	assert.Equal(t, "upstream returned status 404", (&UpstreamError{StatusCode: 404}).Error())
	err := &UpstreamError{Err: io.ErrUnexpectedEOF}
	assert.Contains(t, err.Error(), "unexpected EOF")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
