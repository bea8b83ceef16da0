package ingestor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/httpclient"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

const defaultXtreamTimeout = 2 * time.Minute

// XtreamHandler fetches Player API listings from an Xtream provider and
// normalizes them.
type XtreamHandler struct {
	httpConfig httpclient.Config
	breakers   *httpclient.Manager
	logger     *slog.Logger
}

// NewXtreamHandler creates a new Xtream handler with default settings.
func NewXtreamHandler() *XtreamHandler {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = defaultXtreamTimeout

	return &XtreamHandler{
		httpConfig: cfg,
		breakers:   httpclient.NewManager(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax),
		logger:     slog.Default(),
	}
}

// WithHTTPClientConfig sets the HTTP client configuration for upstream requests.
func (h *XtreamHandler) WithHTTPClientConfig(cfg httpclient.Config) *XtreamHandler {
	h.httpConfig = cfg
	return h
}

// WithBreakers shares a circuit breaker manager with other components.
func (h *XtreamHandler) WithBreakers(m *httpclient.Manager) *XtreamHandler {
	h.breakers = m
	return h
}

// WithLogger sets a structured logger for the handler.
func (h *XtreamHandler) WithLogger(logger *slog.Logger) *XtreamHandler {
	h.logger = logger
	return h
}

// Type returns the input type this handler supports.
func (h *XtreamHandler) Type() string {
	return config.InputTypeXtream
}

// Validate checks if the input configuration is valid for Xtream ingestion.
func (h *XtreamHandler) Validate(input *config.InputConfig) error {
	if input == nil {
		return fmt.Errorf("input is nil")
	}
	if input.Type != config.InputTypeXtream {
		return fmt.Errorf("input type must be xtream, got %s", input.Type)
	}
	if !input.HasCredentials() {
		return models.ErrXtreamCredentialsRequired
	}
	return nil
}

// Client returns an Xtream client for input whose requests go through the
// circuit breaker of the input's host.
func (h *XtreamHandler) Client(input *config.InputConfig) *xtream.Client {
	breaker := h.breakers.GetOrCreate(breakerName(input.URL, "xtream-ingestion"))
	cfg := h.httpConfig
	cfg.Logger = h.logger
	httpClient := httpclient.NewWithBreaker(cfg, breaker)

	return xtream.NewClient(
		input.URL,
		input.Username,
		input.Password,
		xtream.WithHTTPClient(httpClient.StandardClient()),
		xtream.WithHeaders(input.Headers),
	)
}

// Ingest fetches the categories and streams of one cluster and normalizes them.
func (h *XtreamHandler) Ingest(ctx context.Context, req Request) ([]models.PlaylistGroup, error) {
	if err := h.Validate(req.Input); err != nil {
		return nil, models.InfoErrorf("input %q: %v", inputName(req.Input), err)
	}

	client := h.Client(req.Input)
	start := time.Now()

	categories, err := client.Fetch(ctx, req.Cluster.CategoriesAction(), nil)
	if err != nil {
		return nil, models.NotifyError(err, "input %q: fetching %s categories", req.Input.Name, req.Cluster)
	}

	streams, err := client.Fetch(ctx, req.Cluster.StreamsAction(), nil)
	if err != nil {
		return nil, models.NotifyError(err, "input %q: fetching %s streams", req.Input.Name, req.Cluster)
	}

	groups, err := NormalizeXtream(req.Counter, req.Cluster, categories, streams, client.Connection,
		WithInterner(req.Interner),
		WithNormalizeLogger(h.logger.With(slog.String("input", req.Input.Name))),
	)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", req.Input.Name, err)
	}

	h.logger.Debug("normalized xtream cluster",
		slog.String("input", req.Input.Name),
		slog.String("cluster", req.Cluster.String()),
		slog.Int("groups", len(groups)),
		slog.Int("items", countItems(groups)),
		slog.Duration("duration", time.Since(start)),
	)
	return groups, nil
}

// FetchSeriesInfo fetches the raw get_series_info payload for a series.
func (h *XtreamHandler) FetchSeriesInfo(ctx context.Context, input *config.InputConfig, seriesID string) ([]byte, error) {
	return h.Client(input).FetchSeriesInfo(ctx, seriesID)
}

// FetchVODInfo fetches the raw get_vod_info payload for a movie.
func (h *XtreamHandler) FetchVODInfo(ctx context.Context, input *config.InputConfig, vodID string) ([]byte, error) {
	return h.Client(input).FetchVODInfo(ctx, vodID)
}

func inputName(input *config.InputConfig) string {
	if input == nil {
		return ""
	}
	return input.Name
}

func countItems(groups []models.PlaylistGroup) int {
	var n int
	for i := range groups {
		n += len(groups[i].Channels)
	}
	return n
}
