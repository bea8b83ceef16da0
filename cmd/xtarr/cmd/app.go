package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/database"
	"github.com/jmylchreest/xtarr/internal/ingestor"
	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/internal/repository"
	"github.com/jmylchreest/xtarr/internal/service"
	"github.com/jmylchreest/xtarr/internal/storage"
	"github.com/jmylchreest/xtarr/internal/version"
	"github.com/jmylchreest/xtarr/pkg/httpclient"
)

// app holds the components shared by the serve and refresh commands.
type app struct {
	logger    *slog.Logger
	db        *database.DB
	breakers  *httpclient.Manager
	sandbox   *storage.Sandbox
	playlists repository.PlaylistRepository
	details   repository.DetailRepository
	resolver  *service.CredentialResolver
	refresh   *service.RefreshService
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.New(cfg.Database, observability.WithComponent(logger, "database"))
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	playlists, sandbox, err := newPlaylistRepository(cfg.Storage)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	details := repository.NewDetailRepository(db.DB)

	httpCfg := httpClientConfig(cfg.HTTPClient, logger)
	breakers := httpclient.NewManager(httpCfg.CircuitThreshold, httpCfg.CircuitTimeout, httpCfg.CircuitHalfOpenMax).
		WithLogger(observability.WithComponent(logger, "circuit_breaker"))

	ingestLogger := observability.WithComponent(logger, "ingestor")
	xtreamHandler := ingestor.NewXtreamHandler().
		WithHTTPClientConfig(httpCfg).
		WithBreakers(breakers).
		WithLogger(ingestLogger)
	m3uHandler := ingestor.NewM3UHandler().
		WithHTTPClientConfig(httpCfg).
		WithBreakers(breakers).
		WithLogger(ingestLogger)

	refreshLogger := observability.WithComponent(logger, "refresh")
	refresh := service.NewRefreshService(cfg, ingestor.NewHandlerFactory(xtreamHandler, m3uHandler), xtreamHandler, playlists, details).
		WithLogger(refreshLogger).
		WithNotifier(service.NewNotifier(cfg.Notify, refreshLogger))

	return &app{
		logger:    logger,
		db:        db,
		sandbox:   sandbox,
		breakers:  breakers,
		playlists: playlists,
		details:   details,
		resolver:  service.NewCredentialResolver(cfg),
		refresh:   refresh,
	}, nil
}

// newPlaylistRepository returns the configured store. The sandbox is nil for
// the memory store.
func newPlaylistRepository(cfg config.StorageConfig) (repository.PlaylistRepository, *storage.Sandbox, error) {
	if cfg.PlaylistStore == config.PlaylistStoreMemory {
		return repository.NewMemoryPlaylistRepository(), nil, nil
	}
	sandbox, err := storage.NewSandbox(cfg.OutputPath())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}
	return repository.NewFilePlaylistRepository(sandbox), sandbox, nil
}

func httpClientConfig(cfg config.HTTPClientConfig, logger *slog.Logger) httpclient.Config {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	if cfg.RetryAttempts >= 0 {
		httpCfg.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		httpCfg.RetryDelay = cfg.RetryDelay
	}
	if cfg.CircuitThreshold > 0 {
		httpCfg.CircuitThreshold = cfg.CircuitThreshold
	}
	if cfg.CircuitTimeout > 0 {
		httpCfg.CircuitTimeout = cfg.CircuitTimeout
	}
	httpCfg.MaxResponseSize = cfg.MaxResponseSize.Int64()
	httpCfg.UserAgent = version.UserAgent()
	httpCfg.Logger = observability.WithComponent(logger, "httpclient")
	return httpCfg
}

// reload applies a freshly loaded configuration to the components that
// support it. Server, database and storage settings need a restart.
func (a *app) reload(ctx context.Context, cfg *config.Config) {
	a.resolver.Reload(cfg)
	a.refresh.Reload(ctx, cfg)
	a.logger.Info("configuration reloaded",
		slog.Int("inputs", len(cfg.Inputs)),
		slog.Int("targets", len(cfg.Targets)),
		slog.Int("users", len(cfg.Users)),
	)
}

func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.sandbox != nil {
		errs = append(errs, a.sandbox.Close())
	}
	return errors.Join(errs...)
}
