// Package migrations applies versioned schema changes to the xtarr database.
// Applied versions are recorded in schema_migrations so each runs once.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"
)

// Migration is one schema change. Down may be nil for changes that cannot
// be reverted.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// Record is the schema_migrations row written for an applied migration.
type Record struct {
	Version     int       `gorm:"primarykey;autoIncrement:false"`
	Description string    `gorm:"size:255;not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for Record.
func (Record) TableName() string {
	return "schema_migrations"
}

// Status pairs a known migration with the time it was applied, if it was.
type Status struct {
	Version     int        `json:"version"`
	Description string     `json:"description"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// Applied reports whether the migration has run.
func (s Status) Applied() bool {
	return s.AppliedAt != nil
}

// Migrator runs a fixed set of migrations in ascending version order.
type Migrator struct {
	db     *gorm.DB
	logger *slog.Logger
	steps  []Migration
}

// NewMigrator creates a Migrator for db over steps. Duplicate versions are
// rejected when the migrator runs.
func NewMigrator(db *gorm.DB, logger *slog.Logger, steps ...Migration) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := slices.Clone(steps)
	slices.SortFunc(sorted, func(a, b Migration) int { return a.Version - b.Version })
	return &Migrator{db: db, logger: logger.With(slog.String("component", "migrations")), steps: sorted}
}

// Up applies every pending migration. Each one runs in its own transaction
// together with its schema_migrations row.
func (m *Migrator) Up(ctx context.Context) error {
	done, err := m.load(ctx)
	if err != nil {
		return err
	}

	for _, step := range m.steps {
		if _, ok := done[step.Version]; ok {
			continue
		}
		m.logger.InfoContext(ctx, "applying migration",
			slog.Int("version", step.Version),
			slog.String("description", step.Description),
		)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Create(&Record{
				Version:     step.Version,
				Description: step.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %03d (%s): %w", step.Version, step.Description, err)
		}
	}
	return nil
}

// Down reverts the newest applied migration. It is a no-op on an empty
// history.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var last Record
	err := m.db.WithContext(ctx).Order("version DESC").Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading last migration: %w", err)
	}

	i := slices.IndexFunc(m.steps, func(s Migration) bool { return s.Version == last.Version })
	switch {
	case i < 0:
		return fmt.Errorf("migration %03d is applied but unknown", last.Version)
	case m.steps[i].Down == nil:
		return fmt.Errorf("migration %03d cannot be reverted", last.Version)
	}
	step := m.steps[i]

	m.logger.InfoContext(ctx, "reverting migration", slog.Int("version", step.Version))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := step.Down(tx); err != nil {
			return err
		}
		return tx.Delete(&Record{}, step.Version).Error
	})
}

// Status lists every known migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	done, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, len(m.steps))
	for i, step := range m.steps {
		out[i] = Status{Version: step.Version, Description: step.Description}
		if rec, ok := done[step.Version]; ok {
			out[i].AppliedAt = &rec.AppliedAt
		}
	}
	return out, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// load validates the step list and returns the applied records by version.
func (m *Migrator) load(ctx context.Context) (map[int]Record, error) {
	for i := 1; i < len(m.steps); i++ {
		if m.steps[i].Version == m.steps[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %03d", m.steps[i].Version)
		}
	}
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	var records []Record
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	done := make(map[int]Record, len(records))
	for _, r := range records {
		done[r.Version] = r
	}
	return done, nil
}
