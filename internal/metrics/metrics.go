// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xtarr"

var (
	// PlayerAPIRequests counts Player API responses by action and status.
	PlayerAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "player_api_requests_total",
		Help:      "Player API requests by action and response status.",
	}, []string{"action", "status"})

	// RelayActiveSessions is the number of streams currently relayed.
	RelayActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "relay_active_sessions",
		Help:      "Streams currently being relayed.",
	})

	// RelayBytes counts bytes relayed to clients by stream kind.
	RelayBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_bytes_total",
		Help:      "Bytes relayed to clients by stream kind.",
	}, []string{"kind"})

	// RelayUpstreamFailures counts relay requests that failed upstream.
	RelayUpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_upstream_failures_total",
		Help:      "Relay requests whose upstream failed or returned a non-2xx status.",
	}, []string{"kind"})

	refreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_runs_total",
		Help:      "Target refreshes by outcome.",
	}, []string{"target", "result"})

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of target refreshes.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"target"})
)

// ObservePlayerAPI records one Player API response.
func ObservePlayerAPI(action string, status int) {
	if action == "" {
		action = "auth"
	}
	PlayerAPIRequests.WithLabelValues(action, strconv.Itoa(status)).Inc()
}

// ObserveRefresh records the outcome of one target refresh.
func ObserveRefresh(target string, d time.Duration, clean bool) {
	result := "ok"
	if !clean {
		result = "errors"
	}
	refreshRuns.WithLabelValues(target, result).Inc()
	refreshDuration.WithLabelValues(target).Observe(d.Seconds())
}
