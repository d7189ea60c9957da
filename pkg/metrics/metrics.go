package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total number of conversation webhooks received, by result (count)",
		},
		[]string{"result"},
	)

	WebhookProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_ms",
			Help:    "Webhook processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"result"},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_messages_total",
			Help: "Total number of classified messages, by classification (count)",
		},
		[]string{"classification"},
	)

	SuppressedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suppressed_messages_total",
			Help: "Total number of messages suppressed before routing, by reason (count)",
		},
		[]string{"reason"},
	)

	RouteOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_outcomes_total",
			Help: "Total number of routed messages, by backend that handled them (count)",
		},
		[]string{"backend"},
	)

	RouteStrategyAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_strategy_attempts_total",
			Help: "Total number of routing strategy attempts (count)",
		},
		[]string{"strategy", "status"},
	)

	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total number of human escalations, by reason (count)",
		},
		[]string{"reason"},
	)

	EscalationStepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_step_failures_total",
			Help: "Total number of failed escalation steps (count)",
		},
		[]string{"step"},
	)

	EventBusPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_published_total",
			Help: "Total number of events published on the internal bus (count)",
		},
		[]string{"event_type"},
	)

	EventBusHandlerResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_handler_results_total",
			Help: "Total number of bus handler invocations, by result (count)",
		},
		[]string{"event_type", "result"},
	)

	EventBusHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_handler_duration_ms",
			Help:    "Bus handler duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"event_type"},
	)

	EventBusQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventbus_queue_depth",
			Help: "Current number of events waiting to be drained (count)",
		},
	)

	DedupStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_store_errors_total",
			Help: "Total number of fingerprint store errors (count)",
		},
		[]string{"store", "operation"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_size",
			Help: "Number of live fingerprints held by the in-memory store (count)",
		},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests to upstream HTTP services (count)",
		},
		[]string{"client", "operation", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_ms",
			Help:    "Duration of upstream HTTP requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"client", "operation"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"database", "operation"},
	)
)

var registerOnce sync.Once

func RegisterRouterMetrics() {
	prometheus.MustRegister(WebhookRequestsTotal)
	prometheus.MustRegister(WebhookProcessingDuration)
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(SuppressedMessagesTotal)
	prometheus.MustRegister(RouteOutcomesTotal)
	prometheus.MustRegister(RouteStrategyAttemptsTotal)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(EscalationStepFailuresTotal)
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(FallbackUsageTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterEventBusMetrics() {
	prometheus.MustRegister(EventBusPublishedTotal)
	prometheus.MustRegister(EventBusHandlerResultsTotal)
	prometheus.MustRegister(EventBusHandlerDuration)
	prometheus.MustRegister(EventBusQueueDepth)
}

func RegisterDedupMetrics() {
	prometheus.MustRegister(DedupStoreErrorsTotal)
	prometheus.MustRegister(DedupCacheSize)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterDatabaseMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

// RegisterAll registers every collector with the default registry. Safe to call repeatedly.
func RegisterAll() {
	registerOnce.Do(func() {
		RegisterRouterMetrics()
		RegisterEventBusMetrics()
		RegisterDedupMetrics()
		RegisterBrokerMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterDatabaseMetrics()
	})
}

func ObserveWebhookDuration(duration time.Duration, result string) {
	WebhookProcessingDuration.WithLabelValues(result).Observe(float64(duration.Milliseconds()))
}

func IncWebhookRequest(result string) {
	WebhookRequestsTotal.WithLabelValues(result).Inc()
}

func IncClassification(classification string) {
	ClassificationsTotal.WithLabelValues(classification).Inc()
}

func IncSuppressed(reason string) {
	SuppressedMessagesTotal.WithLabelValues(reason).Inc()
}

func IncRouteOutcome(backend string) {
	RouteOutcomesTotal.WithLabelValues(backend).Inc()
}

func IncRouteStrategyAttempt(strategy, status string) {
	RouteStrategyAttemptsTotal.WithLabelValues(strategy, status).Inc()
}

func IncEscalation(reason string) {
	EscalationsTotal.WithLabelValues(reason).Inc()
}

func IncEscalationStepFailure(step string) {
	EscalationStepFailuresTotal.WithLabelValues(step).Inc()
}

func IncEventPublished(eventType string) {
	EventBusPublishedTotal.WithLabelValues(eventType).Inc()
}

func IncHandlerResult(eventType, result string) {
	EventBusHandlerResultsTotal.WithLabelValues(eventType, result).Inc()
}

func ObserveHandlerDuration(eventType string, duration time.Duration) {
	EventBusHandlerDuration.WithLabelValues(eventType).Observe(float64(duration.Milliseconds()))
}

func SetEventBusQueueDepth(depth int) {
	EventBusQueueDepth.Set(float64(depth))
}

func IncDedupStoreError(store, operation string) {
	DedupStoreErrorsTotal.WithLabelValues(store, operation).Inc()
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func IncUpstreamRequest(client, operation, status string) {
	UpstreamRequestsTotal.WithLabelValues(client, operation, status).Inc()
}

func ObserveUpstreamDuration(client, operation string, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(client, operation).Observe(float64(duration.Milliseconds()))
}

func IncFallbackUsage(service, strategy, reason string) {
	FallbackUsageTotal.WithLabelValues(service, strategy, reason).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}
