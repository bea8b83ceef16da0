package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/internal/relay"
	"github.com/jmylchreest/xtarr/internal/service"
)

// RelayStreamHandler relays live, movie and series streams from the
// upstream input of the caller's target.
type RelayStreamHandler struct {
	resolver *service.CredentialResolver
	relay    *relay.Relay
	logger   *slog.Logger
}

// NewRelayStreamHandler creates a new relay stream handler.
func NewRelayStreamHandler(resolver *service.CredentialResolver, r *relay.Relay) *RelayStreamHandler {
	return &RelayStreamHandler{
		resolver: resolver,
		relay:    r,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *RelayStreamHandler) WithLogger(logger *slog.Logger) *RelayStreamHandler {
	h.logger = logger
	return h
}

// ListRelaySessionsInput is the input for listing relay sessions.
type ListRelaySessionsInput struct{}

// ListRelaySessionsOutput is the output for listing relay sessions.
type ListRelaySessionsOutput struct {
	Body struct {
		Count         int                 `json:"count" doc:"Number of active sessions"`
		TotalBytesOut uint64              `json:"total_bytes_out" doc:"Bytes relayed by active sessions"`
		Sessions      []relay.SessionInfo `json:"sessions"`
	}
}

// Register registers the relay session API.
func (h *RelayStreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRelaySessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/relay/sessions",
		Summary:     "List active relay sessions",
		Description: "Returns every stream currently being relayed, oldest first",
		Tags:        []string{"Stream Relay"},
	}, h.ListSessions)
}

// RegisterChiRoutes registers the streaming routes as raw chi handlers.
// Huma's streaming responses commit a 200 before the body runs, so they
// cannot answer 400 when the upstream refuses the stream.
func (h *RelayStreamHandler) RegisterChiRoutes(router chi.Router) {
	for _, kind := range []relay.Kind{relay.KindLive, relay.KindMovie, relay.KindSeries} {
		router.Get("/"+string(kind)+"/{username}/{password}/{stream_id}", h.streamHandler(kind))
	}
}

// ListSessions returns the active relay sessions.
func (h *RelayStreamHandler) ListSessions(_ context.Context, _ *ListRelaySessionsInput) (*ListRelaySessionsOutput, error) {
	out := &ListRelaySessionsOutput{}
	out.Body.Sessions = []relay.SessionInfo{}

	tracker := h.relay.Tracker()
	if tracker == nil {
		return out, nil
	}
	out.Body.Sessions = tracker.List()
	out.Body.Count = len(out.Body.Sessions)
	out.Body.TotalBytesOut = tracker.TotalBytesOut()
	return out, nil
}

func (h *RelayStreamHandler) streamHandler(kind relay.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		streamID := chi.URLParam(r, "stream_id")
		logger := h.logger.With(slog.String("kind", string(kind)), slog.String("stream_id", streamID))

		if streamID == "" {
			logger.WarnContext(ctx, "relay request without a stream id")
		}

		resolved, ok := h.resolver.Resolve(chi.URLParam(r, "username"), chi.URLParam(r, "password"))
		if !ok {
			logger.DebugContext(ctx, "relay request with unknown credentials")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		logger = logger.With(slog.String("target", resolved.Target.Name))
		if !resolved.HasXtreamOutput() {
			logger.DebugContext(ctx, "target has no xtream output")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		input, ok := h.resolver.InputForTarget(resolved.Target.Name)
		if !ok {
			logger.DebugContext(ctx, "target has no xtream input with credentials")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err := h.relay.Serve(w, r, relay.Request{
			Target:   resolved.Target.Name,
			Input:    input,
			Kind:     kind,
			StreamID: streamID,
		})

		var upstreamErr *relay.UpstreamError
		switch {
		case errors.As(err, &upstreamErr), errors.Is(err, relay.ErrNoInput):
			// Nothing was written yet.
			w.WriteHeader(http.StatusBadRequest)
		case err != nil:
			observability.WithError(logger, err).DebugContext(ctx, "relay ended")
		}
	}
}
