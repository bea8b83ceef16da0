// Package handlers provides the HTTP handlers for xtarr: the Xtream Player
// API, the stream relay and the management API.
package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"

	"github.com/jmylchreest/xtarr/internal/relay"
	"github.com/jmylchreest/xtarr/internal/scheduler"
	"github.com/jmylchreest/xtarr/pkg/httpclient"
)

const bytesPerMB = 1024 * 1024

// slowPingThreshold marks a database as slow in health output.
const slowPingThreshold = 100 * time.Millisecond

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	scheduler *scheduler.Scheduler
	tracker   *relay.SessionTracker
	breakers  *httpclient.Manager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database checked by /health.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithScheduler sets the refresh scheduler reported by /health.
func (h *HealthHandler) WithScheduler(s *scheduler.Scheduler) *HealthHandler {
	h.scheduler = s
	return h
}

// WithSessionTracker sets the relay session tracker reported by /health.
func (h *HealthHandler) WithSessionTracker(t *relay.SessionTracker) *HealthHandler {
	h.tracker = t
	return h
}

// WithBreakers sets the circuit breaker manager reported by /health.
func (h *HealthHandler) WithBreakers(m *httpclient.Manager) *HealthHandler {
	h.breakers = m
	return h
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPU           CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Database      DatabaseHealth    `json:"database"`
	Scheduler     *scheduler.Status `json:"scheduler,omitempty"`
	Relay         RelayHealth       `json:"relay"`
	Upstreams     []UpstreamHealth  `json:"upstreams"`
}

// UpstreamHealth is the circuit breaker state of one upstream.
type UpstreamHealth struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	TotalRequests       int64  `json:"total_requests"`
	TotalFailures       int64  `json:"total_failures"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage in megabytes.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	AvailableMB float64 `json:"available_mb"`
	ProcessMB   float64 `json:"process_mb"`
}

// DatabaseHealth holds the result of a database ping.
type DatabaseHealth struct {
	Status            string  `json:"status"`
	ResponseTimeMS    float64 `json:"response_time_ms"`
	ActiveConnections int     `json:"active_connections"`
	IdleConnections   int     `json:"idle_connections"`
}

// RelayHealth summarizes relay activity.
type RelayHealth struct {
	ActiveSessions int    `json:"active_sessions"`
	BytesOut       uint64 `json:"bytes_out"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including host load, memory, database and scheduler state",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)
}

// GetLivez reports that the process is serving requests.
func (h *HealthHandler) GetLivez(_ context.Context, _ *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetHealth returns the health status of the service. The status is
// "degraded" when the database does not answer.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           cpuInfo(ctx),
		Memory:        memoryInfo(ctx),
		Database:      h.databaseHealth(ctx),
		Upstreams:     h.upstreamHealth(),
	}
	if resp.Database.Status == "error" {
		resp.Status = "degraded"
	}
	if h.scheduler != nil {
		status := h.scheduler.Status()
		resp.Scheduler = &status
	}
	if h.tracker != nil {
		resp.Relay = RelayHealth{
			ActiveSessions: h.tracker.Count(),
			BytesOut:       h.tracker.TotalBytesOut(),
		}
	}

	return &HealthOutput{Body: resp}, nil
}

// upstreamHealth lists breakers sorted by name.
func (h *HealthHandler) upstreamHealth() []UpstreamHealth {
	upstreams := []UpstreamHealth{}
	if h.breakers == nil {
		return upstreams
	}
	for name, st := range h.breakers.Stats() {
		upstreams = append(upstreams, UpstreamHealth{
			Name:                name,
			State:               st.State.String(),
			ConsecutiveFailures: st.ConsecutiveFailures,
			TotalRequests:       st.TotalRequests,
			TotalFailures:       st.TotalFailures,
		})
	}
	slices.SortFunc(upstreams, func(a, b UpstreamHealth) int { return strings.Compare(a.Name, b.Name) })
	return upstreams
}

func cpuInfo(ctx context.Context) CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	avg, err := load.AvgWithContext(ctx)
	if err != nil || avg == nil {
		return info
	}
	info.Load1Min = avg.Load1
	info.Load5Min = avg.Load5
	info.Load15Min = avg.Load15
	if info.Cores > 0 {
		info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
	}
	return info
}

func memoryInfo(ctx context.Context) MemoryInfo {
	info := MemoryInfo{}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.TotalMB = float64(vm.Total) / bytesPerMB
		info.UsedMB = float64(vm.Used) / bytesPerMB
		info.AvailableMB = float64(vm.Available) / bytesPerMB
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return info
	}
	if pm, err := proc.MemoryInfoWithContext(ctx); err == nil && pm != nil {
		info.ProcessMB = float64(pm.RSS) / bytesPerMB
	}
	return info
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "not_configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error"}
	}

	stats := sqlDB.Stats()
	health := DatabaseHealth{
		Status:            "ok",
		ActiveConnections: stats.InUse,
		IdleConnections:   stats.Idle,
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	elapsed := time.Since(start)
	health.ResponseTimeMS = float64(elapsed.Microseconds()) / 1000

	switch {
	case err != nil:
		health.Status = "error"
	case elapsed > slowPingThreshold:
		health.Status = "slow"
	}
	return health
}
