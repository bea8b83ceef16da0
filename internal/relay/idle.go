package relay

import (
	"sync"
	"time"
)

// idleWatchdog fires once when it stays armed for longer than timeout.
// A zero or negative timeout disables it.
type idleWatchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	fire    func()
}

func newIdleWatchdog(timeout time.Duration, fire func()) *idleWatchdog {
	return &idleWatchdog{timeout: timeout, fire: fire}
}

// arm starts a fresh countdown.
func (w *idleWatchdog) arm() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.timeout, w.fire)
		return
	}
	w.timer.Reset(w.timeout)
}

// disarm pauses the countdown.
func (w *idleWatchdog) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
