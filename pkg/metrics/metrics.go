package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EvaluationPassesTotal counts is_feature_enabled/get_feature_value
	// evaluations, per outcome.
	EvaluationPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_evaluation_passes_total",
			Help: "Total number of feature evaluations (count)",
		},
		[]string{"feature", "result"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxflag_evaluation_duration_ms",
			Help:    "Duration of a single feature evaluation in milliseconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		},
		[]string{"feature"},
	)

	FeatureValueChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_feature_value_changes_total",
			Help: "Total number of feature value changes observed by listeners (count)",
		},
		[]string{"feature"},
	)

	ListenerNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_listener_notifications_total",
			Help: "Total number of listener notifications dispatched (count)",
		},
		[]string{"status"},
	)

	RuleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_rule_fetch_total",
			Help: "Total number of rule set fetch attempts by outcome (count)",
		},
		[]string{"outcome"},
	)

	RuleFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxflag_rule_fetch_duration_ms",
			Help:    "Duration of a rule set fetch round trip in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"outcome"},
	)

	EventStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluxflag_event_store_size",
			Help: "Current number of events held in the event log (count)",
		},
	)

	EventStoreTrimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_event_store_trims_total",
			Help: "Total number of retention trims applied to the event log (count)",
		},
		[]string{"reason"},
	)

	PersistenceWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_persistence_writes_total",
			Help: "Total number of debounced persistence writes flushed (count)",
		},
		[]string{"kind", "status"},
	)

	PersistenceWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxflag_persistence_write_duration_ms",
			Help:    "Duration of a persistence write in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"kind"},
	)

	SchemaEventsReportedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_schema_events_reported_total",
			Help: "Total number of newly observed event/property names reported to the schema-discovery sink (count)",
		},
		[]string{"kind"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_rate_limit_requests_total",
			Help: "Total number of requests checked against the admin API rate limit (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fluxflag_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxflag_database_queries_total",
			Help: "Total number of audit-store database queries (count)",
		},
		[]string{"operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxflag_database_query_duration_ms",
			Help:    "Duration of audit-store database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation"},
	)
)

func RegisterEngineMetrics() {
	prometheus.MustRegister(EvaluationPassesTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(FeatureValueChangesTotal)
	prometheus.MustRegister(ListenerNotificationsTotal)
}

func RegisterLifecycleMetrics() {
	prometheus.MustRegister(RuleFetchTotal)
	prometheus.MustRegister(RuleFetchDuration)
}

func RegisterPersistenceMetrics() {
	prometheus.MustRegister(EventStoreSize)
	prometheus.MustRegister(EventStoreTrimsTotal)
	prometheus.MustRegister(PersistenceWritesTotal)
	prometheus.MustRegister(PersistenceWriteDuration)
}

func RegisterTelemetryMetrics() {
	prometheus.MustRegister(SchemaEventsReportedTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAdminAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterAuditMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func ObserveEvaluationDuration(feature string, duration time.Duration) {
	EvaluationDuration.WithLabelValues(feature).Observe(float64(duration.Microseconds()) / 1000.0)
}

func IncEvaluationPass(feature, result string) {
	EvaluationPassesTotal.WithLabelValues(feature, result).Inc()
}

func IncFeatureValueChange(feature string) {
	FeatureValueChangesTotal.WithLabelValues(feature).Inc()
}

func IncListenerNotification(status string) {
	ListenerNotificationsTotal.WithLabelValues(status).Inc()
}

func IncRuleFetch(outcome string) {
	RuleFetchTotal.WithLabelValues(outcome).Inc()
}

func ObserveRuleFetchDuration(outcome string, duration time.Duration) {
	RuleFetchDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func SetEventStoreSize(size int) {
	EventStoreSize.Set(float64(size))
}

func IncEventStoreTrim(reason string) {
	EventStoreTrimsTotal.WithLabelValues(reason).Inc()
}

func IncPersistenceWrite(kind, status string) {
	PersistenceWritesTotal.WithLabelValues(kind, status).Inc()
}

func ObservePersistenceWriteDuration(kind string, duration time.Duration) {
	PersistenceWriteDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
}

func IncSchemaEventsReported(kind string, count int) {
	SchemaEventsReportedTotal.WithLabelValues(kind).Add(float64(count))
}

func IncDatabaseQuery(operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(operation, status).Inc()
}

func ObserveDatabaseQueryDuration(operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}
