package relay

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/xtarr/internal/metrics"
)

// Session is one stream being relayed to a client.
type Session struct {
	ID         uuid.UUID
	Target     string
	Input      string
	Kind       Kind
	StreamID   string
	RemoteAddr string
	UserAgent  string
	StartedAt  time.Time

	bytesOut atomic.Uint64
}

// NewSession creates a session for req with a fresh id.
func NewSession(req Request, remoteAddr, userAgent string) *Session {
	s := &Session{
		ID:         uuid.New(),
		Target:     req.Target,
		Kind:       req.Kind,
		StreamID:   req.StreamID,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		StartedAt:  time.Now(),
	}
	if req.Input != nil {
		s.Input = req.Input.Name
	}
	return s
}

// AddBytesOut records bytes sent to the client.
func (s *Session) AddBytesOut(n uint64) {
	s.bytesOut.Add(n)
	metrics.RelayBytes.WithLabelValues(string(s.Kind)).Add(float64(n))
}

// BytesOut returns the bytes sent to the client so far.
func (s *Session) BytesOut() uint64 {
	return s.bytesOut.Load()
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Target       string    `json:"target"`
	Input        string    `json:"input"`
	Kind         Kind      `json:"kind"`
	StreamID     string    `json:"stream_id"`
	RemoteAddr   string    `json:"remote_addr"`
	UserAgent    string    `json:"user_agent"`
	StartedAt    time.Time `json:"started_at"`
	DurationSecs float64   `json:"duration_secs"`
	BytesOut     uint64    `json:"bytes_out"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:           s.ID.String(),
		Target:       s.Target,
		Input:        s.Input,
		Kind:         s.Kind,
		StreamID:     s.StreamID,
		RemoteAddr:   s.RemoteAddr,
		UserAgent:    s.UserAgent,
		StartedAt:    s.StartedAt,
		DurationSecs: time.Since(s.StartedAt).Seconds(),
		BytesOut:     s.BytesOut(),
	}
}

// SessionTracker holds the active relay sessions.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[uuid.UUID]*Session)}
}

// Register adds a session.
func (t *SessionTracker) Register(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.ID]; !exists {
		metrics.RelayActiveSessions.Inc()
	}
	t.sessions[s.ID] = s
}

// Unregister removes a session.
func (t *SessionTracker) Unregister(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[id]; exists {
		metrics.RelayActiveSessions.Dec()
		delete(t.sessions, id)
	}
}

// Get returns a session by id, or nil.
func (t *SessionTracker) Get(id uuid.UUID) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// List returns snapshots of all sessions, oldest first.
func (t *SessionTracker) List() []SessionInfo {
	t.mu.RLock()
	infos := make([]SessionInfo, 0, len(t.sessions))
	for _, s := range t.sessions {
		infos = append(infos, s.Info())
	}
	t.mu.RUnlock()

	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return infos
}

// Count returns the number of active sessions.
func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// TotalBytesOut returns the bytes sent by all active sessions.
func (t *SessionTracker) TotalBytesOut() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total uint64
	for _, s := range t.sessions {
		total += s.BytesOut()
	}
	return total
}
