// Package scheduler runs target refreshes on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/internal/service"
)

// Refresher refreshes targets; an empty name means every target.
type Refresher interface {
	Refresh(ctx context.Context, name string) (*service.RefreshResult, error)
}

// parser accepts standard 5-field cron expressions.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron validates a cron expression.
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Status describes the scheduler state for health reporting.
type Status struct {
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	NextRun   time.Time `json:"next_run,omitzero"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler refreshes every target whenever its schedule fires. A run that
// is still going when the schedule fires again causes that firing to be
// skipped.
type Scheduler struct {
	mu sync.RWMutex

	schedule  string
	refresher Refresher
	logger    *slog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc

	lastRun time.Time
	lastErr error
}

// New creates a scheduler for the given cron expression.
func New(schedule string, refresher Refresher) *Scheduler {
	return &Scheduler{
		schedule:  schedule,
		refresher: refresher,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Start registers the refresh job and starts the cron loop. Jobs run with a
// context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	if err := ValidateCron(s.schedule); err != nil {
		return err
	}

	cronLogger := &slogCronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	s.ctx, s.cancel = context.WithCancel(ctx)
	id, err := c.AddFunc(s.schedule, s.run)
	if err != nil {
		s.cancel()
		return fmt.Errorf("registering refresh job: %w", err)
	}

	s.cron = c
	s.entryID = id
	c.Start()

	s.logger.Info("scheduler started",
		slog.String("schedule", s.schedule),
		slog.Time("next_run", c.Entry(id).Next),
	)
	return nil
}

// Stop stops the cron loop, cancels a running refresh and waits for it to
// return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	next := s.NextRun()

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Schedule: s.schedule,
		Running:  s.cron != nil,
		NextRun:  next,
		LastRun:  s.lastRun,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) run() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	start := time.Now()
	result, err := s.refresher.Refresh(ctx, "")

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case errors.Is(err, models.ErrRefreshInProgress):
		s.logger.Info("scheduled refresh skipped, a refresh is already running")
	case err != nil:
		s.logger.Error("scheduled refresh failed", slog.Any("error", err))
	default:
		s.logger.Info("scheduled refresh completed",
			slog.Int("targets", len(result.Targets)),
			slog.Int("errors", len(result.Errors())),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l *slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
