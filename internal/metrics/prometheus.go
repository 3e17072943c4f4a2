package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scan metrics
	ScanExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_scan_executions_total",
			Help: "Total number of scan executions",
		},
		[]string{"status"}, // status: success|error|locked
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "costguard_scan_duration_seconds",
			Help:    "Scan execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	AnomaliesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_anomalies_detected_total",
			Help: "Total number of cost anomalies detected",
		},
		[]string{"provider", "severity"},
	)

	// Action metrics
	ActionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_action_transitions_total",
			Help: "Total number of action lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	ActionsAutoExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "costguard_actions_auto_executed_total",
			Help: "Total number of auto-executed low-risk actions",
		},
	)

	EstimatedSavings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_estimated_savings_usd",
			Help: "Cumulative estimated savings of executed actions in USD",
		},
		[]string{"action_type"},
	)

	// Usage ingestion metrics
	UsageRecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_usage_records_ingested_total",
			Help: "Total number of usage records ingested",
		},
		[]string{"provider"},
	)

	UsageCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_usage_cost_usd",
			Help: "Cumulative ingested LLM cost in USD",
		},
		[]string{"provider", "model"},
	)

	// Integration metrics
	BridgeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_bridge_calls_total",
			Help: "Total calls to the external workflow bridge",
		},
		[]string{"status"}, // status: success|error
	)

	NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_notifications_dispatched_total",
			Help: "Total notifications dispatched",
		},
		[]string{"kind", "status"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costguard_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(ScanExecutions)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(AnomaliesDetected)

	prometheus.MustRegister(ActionTransitions)
	prometheus.MustRegister(ActionsAutoExecuted)
	prometheus.MustRegister(EstimatedSavings)

	prometheus.MustRegister(UsageRecordsIngested)
	prometheus.MustRegister(UsageCost)

	prometheus.MustRegister(BridgeCalls)
	prometheus.MustRegister(NotificationsDispatched)

	prometheus.MustRegister(DBQueries)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScan records one scan execution
func RecordScan(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ScanExecutions.WithLabelValues(status).Inc()
	ScanDuration.Observe(duration.Seconds())
}

// RecordAnomaly records a detected anomaly
func RecordAnomaly(provider, severity string) {
	AnomaliesDetected.WithLabelValues(provider, severity).Inc()
}

// RecordTransition records a lifecycle transition
func RecordTransition(from, to string) {
	ActionTransitions.WithLabelValues(from, to).Inc()
}

// RecordUsage records an ingested usage record
func RecordUsage(provider, model string, cost float64) {
	UsageRecordsIngested.WithLabelValues(provider).Inc()
	UsageCost.WithLabelValues(provider, model).Add(cost)
}
