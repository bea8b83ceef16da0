package handlers

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/xtarr/pkg/httpclient"
)

// CircuitBreakerHandler exposes the per-upstream circuit breakers.
type CircuitBreakerHandler struct {
	manager *httpclient.Manager
	logger  *slog.Logger
}

// NewCircuitBreakerHandler creates a circuit breaker handler.
func NewCircuitBreakerHandler(manager *httpclient.Manager) *CircuitBreakerHandler {
	return &CircuitBreakerHandler{
		manager: manager,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *CircuitBreakerHandler) WithLogger(logger *slog.Logger) *CircuitBreakerHandler {
	h.logger = logger
	return h
}

// Register registers the circuit breaker routes with the API.
func (h *CircuitBreakerHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listCircuitBreakers",
		Method:      "GET",
		Path:        "/api/v1/circuit-breakers",
		Summary:     "List circuit breakers",
		Description: "Returns the state of the circuit breaker of every upstream host contacted so far",
		Tags:        []string{"Circuit Breakers"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "resetCircuitBreaker",
		Method:      "POST",
		Path:        "/api/v1/circuit-breakers/{name}/reset",
		Summary:     "Reset a circuit breaker",
		Tags:        []string{"Circuit Breakers"},
	}, h.Reset)

	huma.Register(api, huma.Operation{
		OperationID: "resetAllCircuitBreakers",
		Method:      "POST",
		Path:        "/api/v1/circuit-breakers/reset",
		Summary:     "Reset all circuit breakers",
		Tags:        []string{"Circuit Breakers"},
	}, h.ResetAll)
}

// CircuitBreakerStatus is the state of one breaker.
type CircuitBreakerStatus struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalRequests       int64      `json:"total_requests"`
	TotalFailures       int64      `json:"total_failures"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}

// ListCircuitBreakersInput is the input for listing breakers.
type ListCircuitBreakersInput struct{}

// ListCircuitBreakersOutput is the output for listing breakers.
type ListCircuitBreakersOutput struct {
	Body struct {
		Breakers []CircuitBreakerStatus `json:"breakers"`
	}
}

// List returns every breaker sorted by name.
func (h *CircuitBreakerHandler) List(_ context.Context, _ *ListCircuitBreakersInput) (*ListCircuitBreakersOutput, error) {
	out := &ListCircuitBreakersOutput{}
	out.Body.Breakers = []CircuitBreakerStatus{}
	if h.manager == nil {
		return out, nil
	}

	for name, st := range h.manager.Stats() {
		status := CircuitBreakerStatus{
			Name:                name,
			State:               st.State.String(),
			ConsecutiveFailures: st.ConsecutiveFailures,
			TotalRequests:       st.TotalRequests,
			TotalFailures:       st.TotalFailures,
		}
		if !st.LastFailure.IsZero() {
			lastFailure := st.LastFailure
			status.LastFailure = &lastFailure
		}
		out.Body.Breakers = append(out.Body.Breakers, status)
	}
	slices.SortFunc(out.Body.Breakers, func(a, b CircuitBreakerStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// ResetCircuitBreakerInput names the breaker to reset.
type ResetCircuitBreakerInput struct {
	Name string `path:"name" doc:"Breaker name, usually the upstream host"`
}

// ResetCircuitBreakerOutput reports a reset.
type ResetCircuitBreakerOutput struct {
	Body struct {
		Reset int `json:"reset"`
	}
}

// Reset closes one breaker.
func (h *CircuitBreakerHandler) Reset(_ context.Context, input *ResetCircuitBreakerInput) (*ResetCircuitBreakerOutput, error) {
	if h.manager == nil {
		return nil, huma.Error404NotFound("circuit breaker not found")
	}
	breaker := h.manager.Get(input.Name)
	if breaker == nil {
		return nil, huma.Error404NotFound("circuit breaker not found")
	}
	breaker.Reset()
	h.logger.Info("circuit breaker reset", slog.String("name", input.Name))

	out := &ResetCircuitBreakerOutput{}
	out.Body.Reset = 1
	return out, nil
}

// ResetAllCircuitBreakersInput is the input for resetting every breaker.
type ResetAllCircuitBreakersInput struct{}

// ResetAll closes every breaker.
func (h *CircuitBreakerHandler) ResetAll(_ context.Context, _ *ResetAllCircuitBreakersInput) (*ResetCircuitBreakerOutput, error) {
	out := &ResetCircuitBreakerOutput{}
	if h.manager != nil {
		out.Body.Reset = h.manager.ResetAll()
	}
	return out, nil
}
