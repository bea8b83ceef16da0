package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/xtarr/internal/metrics"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/internal/repository"
	"github.com/jmylchreest/xtarr/internal/service"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

const (
	contentTypeJSON = "application/json"
	contentTypeM3U  = "audio/x-mpegurl"

	// Players only check that the account is active; the window is fixed.
	accountValidity = 365 * 24 * time.Hour
	timeNowLayout   = "2006-01-02 15:04:05"
)

// PlayerAPIHandler serves the Xtream Player API from published artifacts.
// It never writes to shared state and reports failures only as status
// codes; causes are logged at debug level.
type PlayerAPIHandler struct {
	resolver  *service.CredentialResolver
	playlists repository.PlaylistRepository
	details   repository.DetailRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewPlayerAPIHandler creates a Player API handler.
func NewPlayerAPIHandler(
	resolver *service.CredentialResolver,
	playlists repository.PlaylistRepository,
	details repository.DetailRepository,
) *PlayerAPIHandler {
	return &PlayerAPIHandler{
		resolver:  resolver,
		playlists: playlists,
		details:   details,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// WithLogger sets the logger for the handler.
func (h *PlayerAPIHandler) WithLogger(logger *slog.Logger) *PlayerAPIHandler {
	h.logger = logger
	return h
}

// RegisterChiRoutes registers the Player API and playlist routes. They are
// raw chi routes because the status contract (bare 204/400/401 responses)
// and file serving do not fit huma operations.
func (h *PlayerAPIHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/player_api.php", h.handlePlayerAPI)
	router.Get("/xtream", h.handlePlayerAPI)
	router.Get("/get.php", h.handleGetPlaylist)
}

func (h *PlayerAPIHandler) handlePlayerAPI(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	action := strings.TrimSpace(query.Get("action"))

	status := h.servePlayerAPI(w, r, query, action)
	metrics.ObservePlayerAPI(action, status)
}

func (h *PlayerAPIHandler) servePlayerAPI(w http.ResponseWriter, r *http.Request, query url.Values, action string) int {
	ctx := r.Context()
	logger := h.logger.With(slog.String("action", action))

	resolved, ok := resolveCaller(h.resolver, r, query)
	if !ok {
		if action == "" {
			logger.DebugContext(ctx, "login probe with unknown credentials")
			return writeStatus(w, http.StatusUnauthorized)
		}
		logger.DebugContext(ctx, "unknown credentials")
		return writeStatus(w, http.StatusBadRequest)
	}

	logger = logger.With(slog.String("target", resolved.Target.Name))
	if !resolved.HasXtreamOutput() {
		logger.DebugContext(ctx, "target has no xtream output")
		return writeStatus(w, http.StatusBadRequest)
	}

	switch action {
	case "":
		return h.writeAuthInfo(w, resolved)
	case models.ActionGetSeriesInfo:
		return h.serveDetail(w, r, logger, resolved.Target.Name, models.DetailKindSeries, query.Get("series_id"))
	case models.ActionGetVODInfo:
		return h.serveDetail(w, r, logger, resolved.Target.Name, models.DetailKindVOD, query.Get("vod_id"))
	}

	kind, ok := models.CollectionForAction(action)
	if !ok {
		logger.DebugContext(ctx, "unsupported action")
		return writeStatus(w, http.StatusNoContent)
	}
	return h.serveArtifact(w, r, logger, resolved.Target.Name, kind, contentTypeJSON)
}

// handleGetPlaylist serves the M3U artifact of a target.
func (h *PlayerAPIHandler) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	resolved, ok := resolveCaller(h.resolver, r, query)
	if !ok {
		h.logger.DebugContext(ctx, "playlist request with unknown credentials")
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	logger := h.logger.With(slog.String("target", resolved.Target.Name))
	if !resolved.HasM3UOutput() {
		logger.DebugContext(ctx, "target has no m3u output")
		writeStatus(w, http.StatusBadRequest)
		return
	}
	h.serveArtifact(w, r, logger, resolved.Target.Name, models.CollectionM3U, contentTypeM3U)
}

func (h *PlayerAPIHandler) writeAuthInfo(w http.ResponseWriter, resolved *service.ResolvedTarget) int {
	now := h.now()
	server := h.resolver.ServerInfo()

	info := xtream.AuthInfo{
		UserInfo: xtream.UserInfo{
			ActiveCons:           "0",
			AllowedOutputFormats: []string{"ts"},
			Auth:                 1,
			CreatedAt:            strconv.FormatInt(now.Add(-accountValidity).Unix(), 10),
			ExpDate:              strconv.FormatInt(now.Add(accountValidity).Unix(), 10),
			IsTrial:              "0",
			MaxConnections:       "1",
			Message:              server.Message,
			Password:             resolved.User.Password,
			Status:               "Active",
			Username:             resolved.User.Username,
		},
		ServerInfo: xtream.ServerInfo{
			URL:            server.Host,
			Port:           server.HTTPPort,
			HTTPSPort:      server.HTTPSPort,
			ServerProtocol: server.Protocol,
			RTMPPort:       server.RTMPPort,
			Timezone:       server.Timezone,
			TimestampNow:   now.Unix(),
			TimeNow:        now.Format(timeNowLayout),
		},
	}

	body, err := json.Marshal(info)
	if err != nil {
		h.logger.Debug("failed to encode auth info", slog.String("error", err.Error()))
		return writeStatus(w, http.StatusInternalServerError)
	}
	return writeBody(w, contentTypeJSON, body)
}

func (h *PlayerAPIHandler) serveDetail(
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	target string,
	kind models.DetailKind,
	rawID string,
) int {
	ctx := r.Context()

	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		logger.DebugContext(ctx, "invalid detail id", slog.String("id", rawID))
		return writeStatus(w, http.StatusBadRequest)
	}

	detail, err := h.details.Get(ctx, target, kind, id)
	if err != nil {
		observability.WithError(logger, err).DebugContext(ctx, "detail lookup failed", slog.Int64("id", id))
		return writeStatus(w, http.StatusNoContent)
	}
	if detail == nil {
		return writeStatus(w, http.StatusNoContent)
	}
	return writeBody(w, contentTypeJSON, detail.Payload)
}

// serveArtifact writes a published artifact. File-backed artifacts go
// through http.ServeContent, which handles Range and conditional requests.
func (h *PlayerAPIHandler) serveArtifact(
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	target string,
	kind models.CollectionKind,
	contentType string,
) int {
	ctx := r.Context()
	logger = logger.With(slog.String("collection", string(kind)))

	artifact, err := h.playlists.Get(ctx, target, kind)
	if err != nil {
		observability.WithError(logger, err).DebugContext(ctx, "artifact lookup failed")
		return writeStatus(w, http.StatusNoContent)
	}

	switch {
	case artifact == nil:
		logger.DebugContext(ctx, "artifact not published")
		return writeStatus(w, http.StatusNoContent)
	case artifact.Path != "":
		if err := serveFile(w, r, artifact.Path, contentType); err != nil {
			observability.WithError(logger, err).DebugContext(ctx, "failed to open artifact")
			return writeStatus(w, http.StatusNoContent)
		}
		return http.StatusOK
	case artifact.Payload != nil:
		return writeBody(w, contentType, artifact.Payload)
	default:
		return writeStatus(w, http.StatusNoContent)
	}
}

func serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	if stat.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), f)
	return nil
}

// resolveCaller resolves the username and password query parameters, or a
// token when neither is given. The token is read from the token parameter
// or an Authorization: Bearer header.
func resolveCaller(resolver *service.CredentialResolver, r *http.Request, query url.Values) (*service.ResolvedTarget, bool) {
	username, password := query.Get("username"), query.Get("password")
	if username != "" || password != "" {
		return resolver.Resolve(username, password)
	}

	token := query.Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	return resolver.ResolveToken(token)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeStatus(w http.ResponseWriter, status int) int {
	w.WriteHeader(status)
	return status
}

func writeBody(w http.ResponseWriter, contentType string, body []byte) int {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return http.StatusOK
}
