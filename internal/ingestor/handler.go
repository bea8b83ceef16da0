package ingestor

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
)

// Handler ingests one input type into playlist groups.
type Handler interface {
	// Type returns the input type this handler supports (e.g., "xtream", "m3u").
	Type() string

	// Validate checks if the input configuration is valid for this handler.
	Validate(input *config.InputConfig) error

	// Ingest fetches and normalizes the input. Group ids are taken from
	// req.Counter.
	Ingest(ctx context.Context, req Request) ([]models.PlaylistGroup, error)
}

// Request describes one normalization pass.
type Request struct {
	Input *config.InputConfig

	// Cluster selects the Xtream endpoint family. Handlers whose inputs are
	// not split by cluster ignore it.
	Cluster models.XtreamCluster

	Counter *models.GroupCounter

	// Interner shares string values across the passes of one refresh. A nil
	// Interner gives the pass its own.
	Interner *models.Interner
}

// HandlerFactory looks up handlers by input type.
type HandlerFactory struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerFactory creates a factory with the given handlers registered.
func NewHandlerFactory(handlers ...Handler) *HandlerFactory {
	f := &HandlerFactory{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		f.Register(h)
	}
	return f
}

// Register adds a handler to the factory, replacing any handler of the same type.
func (f *HandlerFactory) Register(handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[handler.Type()] = handler
}

// Get returns the handler for an input type.
func (f *HandlerFactory) Get(inputType string) (Handler, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	handler, ok := f.handlers[inputType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for input type: %s", inputType)
	}
	return handler, nil
}

// breakerName names the circuit breaker shared by every request to the
// input's host.
func breakerName(rawURL, fallback string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fallback
	}
	return "input-" + parsed.Host
}
