package observ

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service exports. Components take a
// *Metrics and tolerate nil so tests can skip instrumentation.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Broadcasts          *prometheus.CounterVec
	BroadcastRecipients prometheus.Histogram
	RateLimited         prometheus.Counter

	PushAttempts *prometheus.CounterVec
	PushPruned   prometheus.Counter
	PushDuration prometheus.Histogram

	GuardRejections *prometheus.CounterVec

	AuditRecorded prometheus.Counter
	AuditDropped  prometheus.Counter
	AuditFailed   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Broadcasts committed, by sender role.",
		}, []string{"role"}),
		BroadcastRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_recipients",
			Help:    "Recipients per committed broadcast.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_rate_limit_rejections_total",
			Help: "Broadcast requests rejected by the per-sender rate limit.",
		}),

		PushAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_attempts_total",
			Help: "Push delivery attempts, by outcome.",
		}, []string{"outcome"}),
		PushPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_endpoints_pruned_total",
			Help: "Push endpoints deleted after a permanent failure.",
		}),
		PushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "push_attempt_duration_seconds",
			Help:    "Duration of a single push attempt.",
			Buckets: prometheus.DefBuckets,
		}),

		GuardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_rejections_total",
			Help: "Hierarchy writes rejected by the write guard, by rule.",
		}, []string{"rule"}),

		AuditRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_recorded_total",
			Help: "Audit entries persisted.",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_dropped_total",
			Help: "Audit entries dropped because the queue was full.",
		}),
		AuditFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_failed_total",
			Help: "Audit entries the store refused.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequests, m.HTTPDuration,
		m.Broadcasts, m.BroadcastRecipients, m.RateLimited,
		m.PushAttempts, m.PushPruned, m.PushDuration,
		m.GuardRejections,
		m.AuditRecorded, m.AuditDropped, m.AuditFailed,
	)
	return m
}
