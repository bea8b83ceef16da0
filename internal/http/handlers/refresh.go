package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/xtarr/internal/models"
)

// RefreshTrigger starts background refreshes.
type RefreshTrigger interface {
	RefreshAsync(ctx context.Context, name string) error
	Running() []string
}

// RefreshHandler exposes manual refreshes.
type RefreshHandler struct {
	refresher RefreshTrigger
	logger    *slog.Logger
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(refresher RefreshTrigger) *RefreshHandler {
	return &RefreshHandler{
		refresher: refresher,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *RefreshHandler) WithLogger(logger *slog.Logger) *RefreshHandler {
	h.logger = logger
	return h
}

// TriggerRefreshInput is the input for starting a refresh.
type TriggerRefreshInput struct {
	Target string `query:"target" doc:"Target to refresh; all targets when empty"`
}

// TriggerRefreshOutput is the output for starting a refresh.
type TriggerRefreshOutput struct {
	Body struct {
		Status string `json:"status"`
		Target string `json:"target,omitempty"`
	}
}

// RefreshStatusInput is the input for the refresh status.
type RefreshStatusInput struct{}

// RefreshStatusOutput lists the targets being refreshed.
type RefreshStatusOutput struct {
	Body struct {
		Running []string `json:"running"`
	}
}

// Register registers the refresh routes with the API.
func (h *RefreshHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "triggerRefresh",
		Method:        http.MethodPost,
		Path:          "/api/v1/refresh",
		Summary:       "Refresh targets",
		Description:   "Starts a background refresh of one target, or of all targets when none is given",
		Tags:          []string{"Refresh"},
		DefaultStatus: http.StatusAccepted,
	}, h.TriggerRefresh)

	huma.Register(api, huma.Operation{
		OperationID: "getRefreshStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/refresh",
		Summary:     "Refresh status",
		Description: "Lists the targets with a refresh in progress",
		Tags:        []string{"Refresh"},
	}, h.GetStatus)
}

// TriggerRefresh starts a refresh and returns without waiting for it.
func (h *RefreshHandler) TriggerRefresh(ctx context.Context, input *TriggerRefreshInput) (*TriggerRefreshOutput, error) {
	err := h.refresher.RefreshAsync(ctx, input.Target)
	switch {
	case errors.Is(err, models.ErrTargetNotFound):
		return nil, huma.Error404NotFound("target not found", err)
	case errors.Is(err, models.ErrRefreshInProgress):
		return nil, huma.Error409Conflict("refresh already in progress", err)
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to start refresh", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("failed to start refresh")
	}

	h.logger.InfoContext(ctx, "refresh started", slog.String("target", input.Target))
	out := &TriggerRefreshOutput{}
	out.Body.Status = "accepted"
	out.Body.Target = input.Target
	return out, nil
}

// GetStatus returns the targets currently refreshing.
func (h *RefreshHandler) GetStatus(_ context.Context, _ *RefreshStatusInput) (*RefreshStatusOutput, error) {
	out := &RefreshStatusOutput{}
	out.Body.Running = h.refresher.Running()
	if out.Body.Running == nil {
		out.Body.Running = []string{}
	}
	return out, nil
}
