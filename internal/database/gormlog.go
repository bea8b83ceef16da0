package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = time.Second
	maxSQLLogLength    = 200
)

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// gormLogger routes GORM's log calls and query traces to slog.
type gormLogger struct {
	log   *slog.Logger
	level logger.LogLevel
}

func newGormLogger(level string, log *slog.Logger) *gormLogger {
	return &gormLogger{log: log, level: gormLogLevel(level)}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) printf(ctx context.Context, floor logger.LogLevel, lvl slog.Level, msg string, args []any) {
	if l.level >= floor {
		l.log.Log(ctx, lvl, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

// Trace logs failed queries, slow queries and, at info, every query at
// debug. A missing record is normal for detail lookups and is not logged.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	var (
		lvl   slog.Level
		msg   string
		attrs []slog.Attr
	)
	switch {
	case l.level <= logger.Silent:
		return
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		if l.level < logger.Error {
			return
		}
		lvl, msg = slog.LevelError, "database error"
		attrs = append(attrs, slog.String("error", err.Error()))
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case l.level >= logger.Info:
		lvl, msg = slog.LevelDebug, "database query"
	default:
		return
	}
	if !l.log.Enabled(ctx, lvl) {
		return
	}

	// fc renders the SQL, so it only runs for lines that get written.
	sql, rows := fc()
	attrs = append(attrs,
		slog.String("sql", truncateSQL(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	)
	l.log.LogAttrs(ctx, lvl, msg, attrs...)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLogLength {
		return sql
	}
	return sql[:maxSQLLogLength] + "... (truncated)"
}
