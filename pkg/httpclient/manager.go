package httpclient

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// breakerSettings are applied to every breaker a Manager creates.
type breakerSettings struct {
	threshold   int
	timeout     time.Duration
	halfOpenMax int
}

// Manager owns the circuit breakers of a process, keyed by upstream name.
// Clients for the same upstream share one breaker, so failures seen by the
// refresh service also protect later requests to that host.
type Manager struct {
	settings breakerSettings
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewManager creates an empty Manager.
func NewManager(threshold int, timeout time.Duration, halfOpenMax int) *Manager {
	return &Manager{
		settings: breakerSettings{threshold: threshold, timeout: timeout, halfOpenMax: halfOpenMax},
		logger:   slog.Default(),
		breakers: map[string]*CircuitBreaker{},
	}
}

// WithLogger sets the logger used when breakers are created or reset.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// GetOrCreate returns the breaker for name, creating it on first use.
func (m *Manager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b := m.breakers[name]; b != nil {
		return b
	}
	s := m.settings
	b := NewCircuitBreaker(s.threshold, s.timeout, s.halfOpenMax)
	m.breakers[name] = b
	m.logger.Debug("circuit breaker created",
		slog.String("name", name),
		slog.Int("threshold", b.threshold),
		slog.Duration("timeout", b.timeout),
	)
	return b
}

// Get returns the breaker for name, or nil when none was created.
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakers[name]
}

// snapshot copies the breaker map so callers can work without the lock.
func (m *Manager) snapshot() map[string]*CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.breakers)
}

// Stats returns the state of every breaker by name.
func (m *Manager) Stats() map[string]CircuitBreakerStats {
	breakers := m.snapshot()
	stats := make(map[string]CircuitBreakerStats, len(breakers))
	for name, b := range breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// ResetAll closes every breaker and returns how many there were.
func (m *Manager) ResetAll() int {
	breakers := m.snapshot()
	for _, b := range breakers {
		b.Reset()
	}
	m.logger.Info("circuit breakers reset", slog.Int("count", len(breakers)))
	return len(breakers)
}
