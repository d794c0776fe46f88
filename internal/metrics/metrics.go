package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay metrics
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironpulse_connections_total",
			Help: "Total relay connections by outcome",
		},
		[]string{"result"}, // "handled", "malformed", "aborted", "rate_limited", "too_large"
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ironpulse_connections_active",
			Help: "Relay connections currently being served",
		},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironpulse_commands_total",
			Help: "Total dispatched commands by response status",
		},
		[]string{"command", "status"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ironpulse_command_duration_seconds",
			Help:    "Command dispatch duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"command"},
	)

	PartialOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironpulse_partial_operations_total",
			Help: "Channel create/drop operations that succeeded on one collection only",
		},
		[]string{"operation"},
	)

	CompactedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ironpulse_compacted_rows_total",
			Help: "Processed message rows removed by compaction",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ironpulse_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)

	// HTTP metrics (admin surface)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironpulse_http_requests_total",
			Help: "Total admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ironpulse_http_request_duration_seconds",
			Help:    "Admin HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
