// Package metrics holds the Prometheus collectors shared by the services.
// Collectors are registered once with the default registry and exposed by
// the API server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatRequests counts chat completions. Labels: component (client|proxy), outcome.
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemati_chat_requests_total",
			Help: "Chat completion requests by component and outcome",
		},
		[]string{"component", "outcome"},
	)

	// ChatStreamDuration measures full stream lifetime in seconds.
	ChatStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schemati_chat_stream_duration_seconds",
			Help:    "Duration of streamed chat completions in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"component"},
	)

	// MalformedFrames counts stream frames that failed to parse.
	MalformedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schemati_chat_malformed_frames_total",
			Help: "Streamed frames skipped because they were not valid JSON",
		},
	)

	// ProjectOperations counts project manager operations. Labels: operation, status.
	ProjectOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemati_project_operations_total",
			Help: "Project manager operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ActiveSessions tracks live editing sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "schemati_editor_sessions_active",
			Help: "Number of live editing sessions",
		},
	)

	// BackupRuns counts backup runs. Labels: status.
	BackupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemati_backup_runs_total",
			Help: "Scheduled project backup runs by status",
		},
		[]string{"status"},
	)
)

// RecordProjectOp records one project operation.
func RecordProjectOp(operation string, err error) {
	ProjectOperations.WithLabelValues(operation, status(err)).Inc()
}

// RecordChat records a finished chat request.
func RecordChat(component, outcome string, started time.Time) {
	ChatRequests.WithLabelValues(component, outcome).Inc()
	ChatStreamDuration.WithLabelValues(component).Observe(time.Since(started).Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
