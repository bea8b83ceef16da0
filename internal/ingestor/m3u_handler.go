package ingestor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/httpclient"
	"github.com/jmylchreest/xtarr/pkg/m3u"
)

const (
	defaultM3UTimeout = 5 * time.Minute
	uncategorized     = "Uncategorized"
)

// M3UHandler handles ingestion of M3U playlist inputs.
type M3UHandler struct {
	httpConfig httpclient.Config
	breakers   *httpclient.Manager
	logger     *slog.Logger
}

// NewM3UHandler creates a new M3U handler with default settings.
func NewM3UHandler() *M3UHandler {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = defaultM3UTimeout

	return &M3UHandler{
		httpConfig: cfg,
		breakers:   httpclient.NewManager(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax),
		logger:     slog.Default(),
	}
}

// WithHTTPClientConfig sets the HTTP client configuration for playlist downloads.
func (h *M3UHandler) WithHTTPClientConfig(cfg httpclient.Config) *M3UHandler {
	h.httpConfig = cfg
	return h
}

// WithBreakers shares a circuit breaker manager with other components.
func (h *M3UHandler) WithBreakers(m *httpclient.Manager) *M3UHandler {
	h.breakers = m
	return h
}

// WithLogger sets a structured logger for the handler.
func (h *M3UHandler) WithLogger(logger *slog.Logger) *M3UHandler {
	h.logger = logger
	return h
}

// Type returns the input type this handler supports.
func (h *M3UHandler) Type() string {
	return config.InputTypeM3U
}

// Validate checks if the input configuration is valid for M3U ingestion.
func (h *M3UHandler) Validate(input *config.InputConfig) error {
	if input == nil {
		return fmt.Errorf("input is nil")
	}
	if input.Type != config.InputTypeM3U {
		return fmt.Errorf("input type must be m3u, got %s", input.Type)
	}
	if !strings.HasPrefix(input.URL, "http://") && !strings.HasPrefix(input.URL, "https://") {
		return fmt.Errorf("input URL must be HTTP or HTTPS")
	}
	return nil
}

// Ingest downloads and normalizes the playlist. The request cluster is
// ignored; each entry's cluster is derived from its URL.
func (h *M3UHandler) Ingest(ctx context.Context, req Request) ([]models.PlaylistGroup, error) {
	if err := h.Validate(req.Input); err != nil {
		return nil, models.InfoErrorf("input %q: %v", inputName(req.Input), err)
	}

	body, err := h.fetch(ctx, req.Input)
	if err != nil {
		return nil, models.NotifyError(err, "input %q: fetching playlist", req.Input.Name)
	}
	defer body.Close()

	reader, err := m3u.NewReader(body)
	if err != nil {
		return nil, models.NotifyError(err, "input %q: reading playlist", req.Input.Name)
	}
	defer reader.Close()

	var entries []*m3u.Entry
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.NotifyError(err, "input %q: reading playlist", req.Input.Name)
		}
		entries = append(entries, entry)
	}

	for _, skipped := range reader.Skipped() {
		h.logger.Debug("skipped malformed playlist line",
			slog.String("input", req.Input.Name),
			slog.Int("line", skipped.Line),
			slog.String("error", skipped.Err.Error()),
		)
	}

	return NormalizeM3U(req.Counter, entries, WithInterner(req.Interner), WithNormalizeLogger(h.logger)), nil
}

func (h *M3UHandler) fetch(ctx context.Context, input *config.InputConfig) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}

	cfg := h.httpConfig
	cfg.Logger = h.logger
	client := httpclient.NewWithBreaker(cfg, h.breakers.GetOrCreate(breakerName(input.URL, "m3u-ingestion")))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// NormalizeM3U groups playlist entries by cluster and group title, in order
// of first appearance. Each group takes the next id from counter.
func NormalizeM3U(counter *models.GroupCounter, entries []*m3u.Entry, opts ...NormalizeOption) []models.PlaylistGroup {
	o := buildOptions(opts)

	type key struct {
		cluster models.XtreamCluster
		title   string
	}
	var order []key
	groups := make(map[key]*models.PlaylistGroup)

	for i, entry := range entries {
		cluster := clusterFromURL(entry.URL)
		title := entry.GroupTitle
		if title == "" {
			title = uncategorized
		}
		k := key{cluster: cluster, title: o.interner.Intern(title)}

		g, ok := groups[k]
		if !ok {
			g = &models.PlaylistGroup{Title: k.title, XtreamCluster: cluster}
			groups[k] = g
			order = append(order, k)
		}
		g.Channels = append(g.Channels, models.PlaylistItem{Header: entryHeader(entry, i, cluster, k.title, &o)})
	}

	out := make([]models.PlaylistGroup, 0, len(order))
	for _, k := range order {
		g := groups[k]
		g.ID = counter.Next()
		out = append(out, *g)
	}
	return out
}

func entryHeader(entry *m3u.Entry, pos int, cluster models.XtreamCluster, group string, o *normalizeOptions) models.PlaylistItemHeader {
	name := entry.Title
	if name == "" {
		name = entry.TvgName
	}
	name = o.interner.Intern(name)

	itemType := cluster.ItemType()
	if cluster == models.XtreamClusterSeries {
		// Playlist series entries are episodes, never series placeholders.
		itemType = models.PlaylistItemTypeSeries
	}

	header := models.PlaylistItemHeader{
		ID:            entryID(entry.URL, pos),
		Name:          name,
		Logo:          o.interner.Intern(entry.TvgLogo),
		Group:         group,
		Title:         name,
		URL:           entry.URL,
		EPGChannelID:  entry.TvgID,
		XtreamCluster: cluster,
		ItemType:      itemType,
		TimeShift:     entry.Attr("timeshift"),
		AudioTrack:    entry.Attr("audio-track"),
		ParentCode:    entry.Attr("parent-code"),
	}
	if entry.ChannelNumber > 0 {
		header.AdditionalProperties = []models.Property{models.IntProperty("num", int64(entry.ChannelNumber))}
	}
	return header
}

// clusterFromURL infers the cluster from Xtream-style stream paths.
func clusterFromURL(raw string) models.XtreamCluster {
	u, err := url.Parse(raw)
	if err != nil {
		return models.XtreamClusterLive
	}
	switch {
	case strings.Contains(u.Path, "/movie/"):
		return models.XtreamClusterVideo
	case strings.Contains(u.Path, "/series/"):
		return models.XtreamClusterSeries
	default:
		return models.XtreamClusterLive
	}
}

// entryID uses the numeric file stem of Xtream-style URLs and falls back to
// the 1-based playlist position.
func entryID(raw string, pos int) string {
	if u, err := url.Parse(raw); err == nil {
		stem := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
		if n, err := strconv.ParseUint(stem, 10, 63); err == nil {
			return strconv.FormatUint(n, 10)
		}
	}
	return strconv.Itoa(pos + 1)
}
