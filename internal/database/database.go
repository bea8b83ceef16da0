// Package database opens the xtarr database through GORM. SQLite,
// PostgreSQL and MySQL are supported; the detail cache is the only schema.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/database/migrations"
)

// sqlitePragmas are appended to file-backed SQLite DSNs. The refresh
// service writes details while player requests read them.
var sqlitePragmas = []string{
	"_pragma=busy_timeout(30000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
}

var dialectors = map[string]func(dsn string) gorm.Dialector{
	"sqlite": func(dsn string) gorm.Dialector {
		if isMemoryDSN(dsn) {
			return sqlite.Open(dsn)
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return sqlite.Open(dsn + sep + strings.Join(sqlitePragmas, "&"))
	},
	"postgres": postgres.Open,
	"mysql":    mysql.Open,
}

// DB is a GORM handle that remembers its driver and logger.
type DB struct {
	*gorm.DB
	driver string
	logger *slog.Logger
}

// New opens the database described by cfg and applies its pool limits.
func New(cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	open, ok := dialectors[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	gdb, err := gorm.Open(open(cfg.DSN), &gorm.Config{
		Logger:                 newGormLogger(cfg.LogLevel, log),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	db := &DB{DB: gdb, driver: cfg.Driver, logger: log}
	if err := db.configurePool(cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) configurePool(cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting sql.DB: %w", err)
	}

	open, idle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == "sqlite" && isMemoryDSN(cfg.DSN) {
		// Every new connection to :memory: would see an empty database.
		open, idle = 1, 1
	}
	if open > 0 {
		sqlDB.SetMaxOpenConns(open)
	}
	if idle > 0 {
		sqlDB.SetMaxIdleConns(idle)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db.logger.Debug("database opened",
		slog.String("driver", cfg.Driver),
		slog.Int("max_open_conns", open),
		slog.Int("max_idle_conns", idle),
	)
	return nil
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Migrate brings the schema up to date.
func (db *DB) Migrate(ctx context.Context) error {
	if err := migrations.NewMigrator(db.DB, db.logger, migrations.All()...).Up(ctx); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}
