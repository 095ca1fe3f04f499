package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_started_total",
		Help: "Sell conversations entered",
	})
	SubmissionsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_saved_total",
		Help: "Submissions appended to the backend",
	})
	SubmissionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_failed_total",
		Help: "Submissions that failed to persist",
	})
	SubmissionsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_cancelled_total",
		Help: "Sell conversations cancelled before saving",
	})
	SearchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_requests_total",
		Help: "Ranking and city filter queries",
	}, []string{"key"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Failed outbound Telegram sends",
	})
	NotifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admin_notify_failures_total",
		Help: "Failed best-effort admin notifications",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Duration of outbound network requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Outbound network requests",
	}, []string{"component", "operation", "status"})
)

// MustRegister registers every metric series.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SubmissionsStarted,
		SubmissionsSaved,
		SubmissionsFailed,
		SubmissionsCancelled,
		SearchRequests,
		BotSendErrors,
		NotifyFailures,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest records duration and status of an outbound call.
func ObserveNetworkRequest(component, operation string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, status).Inc()
}

// IncSearch increments the search counter for a ranking key.
func IncSearch(key string) {
	SearchRequests.WithLabelValues(key).Inc()
}
