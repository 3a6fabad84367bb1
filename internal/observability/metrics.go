package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts persisted messages by conversation kind and message type.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_sent_total",
		Help: "Total number of messages persisted",
	}, []string{"kind", "message_type"})

	// SendRejections counts rejected sends by conversation kind and error code.
	SendRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_send_rejections_total",
		Help: "Total number of rejected message sends",
	}, []string{"kind", "reason"})

	// ConversationListLatency records how long building a conversation list takes.
	ConversationListLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parley_conversation_list_latency_seconds",
		Help:    "Conversation list aggregation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// CacheResults counts cache lookups by outcome.
	CacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_cache_results_total",
		Help: "Cache lookups by result",
	}, []string{"cache", "result"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// EventsPublished counts fan-out events by type and outcome.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_events_published_total",
		Help: "Total number of fan-out events published",
	}, []string{"event_type", "result"})
)

// TrackLatency returns a function that records elapsed time on the histogram when called (e.g. defer).
func TrackLatency(h *prometheus.HistogramVec, labels ...string) func() {
	start := time.Now()
	return func() {
		h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}
}
