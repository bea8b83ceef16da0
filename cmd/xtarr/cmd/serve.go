package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/jmylchreest/xtarr/internal/http"
	"github.com/jmylchreest/xtarr/internal/http/handlers"
	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/internal/relay"
	"github.com/jmylchreest/xtarr/internal/scheduler"
	"github.com/jmylchreest/xtarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the xtarr server",
	Long: `Start the xtarr HTTP server.

The server provides:
- Xtream Player API at /player_api.php and /xtream
- M3U playlists at /get.php
- Stream relay at /live, /movie and /series
- Health, refresh and session endpoints under /health and /api/v1
- OpenAPI documentation at /docs

Send SIGHUP to reload inputs, targets and users from the config file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing resources", slog.String("error", err.Error()))
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.Refresh.Enabled {
		sched = scheduler.New(cfg.Refresh.Schedule, a.refresh).
			WithLogger(observability.WithComponent(logger, "scheduler"))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer sched.Stop()
	}
	if cfg.Refresh.OnStartup {
		if err := a.refresh.RefreshAsync(ctx, ""); err != nil {
			logger.Warn("startup refresh not started", slog.String("error", err.Error()))
		}
	}

	relayCfg := relay.ConfigFromSettings(cfg.Relay)
	relayCfg.Logger = observability.WithComponent(logger, "relay")
	tracker := relay.NewSessionTracker()
	streamRelay := relay.New(relayCfg, tracker)

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	registerHandlers(server, a, streamRelay, sched)

	go watchReload(ctx, a)

	return server.ListenAndServe(ctx)
}

func registerHandlers(server *internalhttp.Server, a *app, streamRelay *relay.Relay, sched *scheduler.Scheduler) {
	api := server.API()
	router := server.Router()
	handlerLogger := observability.WithComponent(a.logger, "http")

	handlers.NewPlayerAPIHandler(a.resolver, a.playlists, a.details).
		WithLogger(handlerLogger).
		RegisterChiRoutes(router)

	relayHandler := handlers.NewRelayStreamHandler(a.resolver, streamRelay).WithLogger(handlerLogger)
	relayHandler.RegisterChiRoutes(router)
	relayHandler.Register(api)

	health := handlers.NewHealthHandler(version.Version).
		WithDB(a.db.DB).
		WithSessionTracker(streamRelay.Tracker()).
		WithBreakers(a.breakers)
	if sched != nil {
		health.WithScheduler(sched)
	}
	health.Register(api)

	handlers.NewRefreshHandler(a.refresh).WithLogger(handlerLogger).Register(api)
	handlers.NewCircuitBreakerHandler(a.breakers).WithLogger(handlerLogger).Register(api)
	handlers.RegisterMetricsRoute(router)
}

// watchReload reloads the configuration on SIGHUP until ctx is done. A
// configuration that fails to load is logged and the previous one kept.
func watchReload(ctx context.Context, a *app) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := loadConfig(rootCmd.PersistentFlags())
			if err != nil {
				a.logger.Error("configuration reload failed", slog.String("error", err.Error()))
				continue
			}
			a.reload(ctx, cfg)
		}
	}
}
