package repository

import (
	"context"
	"maps"
	"sync"

	"github.com/jmylchreest/xtarr/internal/models"
)

// memoryStore keeps artifacts in memory. A publish swaps the whole artifact
// map of a target, carrying kept kinds over from the previous map.
type memoryStore struct {
	mu      sync.RWMutex
	targets map[string]map[models.CollectionKind][]byte
}

// NewMemoryPlaylistRepository creates a PlaylistRepository that serves
// artifacts from memory.
func NewMemoryPlaylistRepository() PlaylistRepository {
	return &memoryStore{targets: make(map[string]map[models.CollectionKind][]byte)}
}

func (s *memoryStore) Publish(_ context.Context, target string, artifacts map[models.CollectionKind][]byte, keep ...models.CollectionKind) error {
	snapshot := maps.Clone(artifacts)
	if snapshot == nil {
		snapshot = make(map[models.CollectionKind][]byte)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.targets[target]
	for _, kind := range keep {
		if _, ok := snapshot[kind]; ok {
			continue
		}
		if data, ok := previous[kind]; ok {
			snapshot[kind] = data
		}
	}
	s.targets[target] = snapshot
	return nil
}

func (s *memoryStore) Get(_ context.Context, target string, kind models.CollectionKind) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.targets[target][kind]
	if !ok {
		return nil, nil
	}
	return &Artifact{Payload: data}, nil
}
