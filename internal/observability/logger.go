// Package observability builds the process logger and carries the logging
// helpers shared by every xtarr component.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/xtarr/internal/config"
)

// Attribute names whose values never reach the log output.
var redactedFields = []string{"password", "input_password", "token", "authorization"}

// IsRedactedField reports whether values under the given key are hidden
// from logs and configuration dumps.
func IsRedactedField(name string) bool {
	return slices.Contains(redactedFields, strings.ToLower(name))
}

// requestLoggingOff is inverted so the zero value means enabled.
var requestLoggingOff atomic.Bool

// SetRequestLoggingEnabled toggles access logging of successful requests.
func SetRequestLoggingEnabled(enabled bool) {
	requestLoggingOff.Store(!enabled)
}

// IsRequestLoggingEnabled reports whether successful requests are logged.
func IsRequestLoggingEnabled() bool {
	return !requestLoggingOff.Load()
}

// NewLogger returns a logger writing to stdout.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter returns a JSON or text logger writing to w. An unknown
// level falls back to info.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr(cfg.TimeFormat),
	}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// replaceAttr masks credential attributes with masq and applies the
// configured time layout.
func replaceAttr(timeFormat string) func([]string, slog.Attr) slog.Attr {
	opts := make([]masq.Option, len(redactedFields))
	for i, name := range redactedFields {
		opts[i] = masq.WithFieldName(name)
	}
	mask := masq.New(opts...)

	return func(groups []string, a slog.Attr) slog.Attr {
		if timeFormat != "" && len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
			return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
		}
		return mask(groups, a)
	}
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperation logs the start of operation and returns a func that logs
// how it ended. *errp is read when that func runs, so it can be a named
// result assigned later.
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string, errp *error) func() {
	start := time.Now()
	logger = logger.With(slog.String("operation", operation))
	logger.DebugContext(ctx, "operation started")

	return func() {
		elapsed := slog.Duration("duration", time.Since(start))
		if errp != nil && *errp != nil {
			logger.LogAttrs(ctx, slog.LevelError, "operation failed", elapsed, slog.String("error", (*errp).Error()))
			return
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "operation completed", elapsed)
	}
}
