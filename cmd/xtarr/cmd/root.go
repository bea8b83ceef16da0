// Package cmd implements the CLI commands for xtarr.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "xtarr",
	Short:   "Xtream Codes compatible playlist proxy",
	Version: version.Short(),
	Long: `xtarr pulls playlists from Xtream Codes and M3U providers, merges them
into targets and serves each target to downstream players through an
Xtream Codes compatible Player API, an M3U playlist and a stream relay.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Logging flags are not bound to viper. They override the loaded
	// configuration only when set, so env and file values still apply.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ./configs, /etc/xtarr, $HOME/.xtarr)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig loads the configuration and applies the logging flags.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	applyLogFlags(flags, &cfg.Logging)
	return cfg, nil
}

func applyLogFlags(flags *pflag.FlagSet, logCfg *config.LoggingConfig) {
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		logCfg.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		logCfg.Format = strings.ToLower(format)
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
}

// setup loads the configuration and installs the default logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
	observability.SetRequestLoggingEnabled(cfg.Logging.EnableRequestLogging)

	return cfg, logger, nil
}
