package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters for the asynchronous saga path. Synchronous request failures are
// already visible to callers; these are the only window into the relay and
// consumer loops besides logs.
var (
	OutboxPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_published_total",
			Help: "Total number of outbox messages published to the broker",
		},
	)

	OutboxPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Total number of failed outbox publish attempts (retried next tick)",
		},
	)

	OutboxUnknownEventTypeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_unknown_event_type_total",
			Help: "Total number of outbox rows routed to the catch-all key",
		},
	)

	ConsumerDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consumer_duplicate_events_total",
			Help: "Total number of deliveries dropped by the dedup gate",
		},
	)

	ConsumerMalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consumer_malformed_messages_total",
			Help: "Total number of undecodable deliveries acknowledged and dropped",
		},
	)

	ConsumerDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consumer_dead_lettered_total",
			Help: "Total number of deliveries dead-lettered after exhausting retries",
		},
	)
)

// Register registers all saga metrics with the default registry.
func Register() {
	prometheus.MustRegister(
		OutboxPublishedTotal,
		OutboxPublishFailuresTotal,
		OutboxUnknownEventTypeTotal,
		ConsumerDuplicatesTotal,
		ConsumerMalformedTotal,
		ConsumerDeadLetteredTotal,
	)
}
