package models

import "sync"

// Interner deduplicates string values so large catalogs that repeat the same
// names, group titles and logo URLs keep a single copy of each.
// It is safe for concurrent use.
type Interner struct {
	mu     sync.Mutex
	values map[string]string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{values: make(map[string]string)}
}

// Intern returns the canonical copy of s.
func (in *Interner) Intern(s string) string {
	if s == "" {
		return ""
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if v, ok := in.values[s]; ok {
		return v
	}
	in.values[s] = s
	return s
}

// Len returns the number of distinct values held.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.values)
}
