package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route/method/status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// CompletionRequestsTotal counts completion-service calls by model and operation.
	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_requests_total",
			Help: "Total number of completion service requests by model and operation",
		},
		[]string{"model", "operation", "outcome"},
	)
	// CompletionRequestDuration observes completion call latency.
	CompletionRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_request_duration_seconds",
			Help:    "Completion service request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model", "operation"},
	)
	// CompletionStreamChunks counts streamed text fragments forwarded to clients.
	CompletionStreamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "completion_stream_chunks_total",
			Help: "Total number of streamed completion chunks",
		},
	)
	// CompletionTokensTotal counts prompt/completion tokens by model.
	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_tokens_total",
			Help: "Total tokens consumed by model and kind (prompt|completion)",
		},
		[]string{"model", "kind"},
	)

	// JobsEnqueuedTotal counts jobs enqueued by type.
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)
	// JobsProcessing gauges jobs currently being worked.
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"type"},
	)
	// JobsCompletedTotal counts jobs finished successfully.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type"},
	)
	// JobsFailedTotal counts jobs that exhausted retries.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs terminally failed",
		},
		[]string{"type"},
	)
	// JobsCancelledTotal counts jobs stopped by the cancellation monitor.
	JobsCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_cancelled_total",
			Help: "Total number of jobs cancelled or superseded",
		},
		[]string{"type"},
	)
	// JobsRetriedTotal counts redeliveries scheduled by the retry manager.
	JobsRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_retried_total",
			Help: "Total number of job retries scheduled",
		},
		[]string{"type"},
	)

	// EvidenceRowsPersisted counts evidence rows written by phase 1.
	EvidenceRowsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evidence_rows_persisted_total",
			Help: "Total number of AI-generated evidence rows persisted",
		},
	)
	// AchievedLevelHistogram tracks the distribution of final achieved levels.
	AchievedLevelHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_achieved_level",
			Help:    "Distribution of computed achieved levels",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6},
		},
	)
	// EventsPublishedTotal counts events fanned out on the user event channel.
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of user events published",
		},
		[]string{"event"},
	)
)

// InitMetrics registers all collectors with the default registry. Safe to
// call once per process.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		CompletionRequestsTotal, CompletionRequestDuration, CompletionStreamChunks, CompletionTokensTotal,
		JobsEnqueuedTotal, JobsProcessing, JobsCompletedTotal, JobsFailedTotal, JobsCancelledTotal, JobsRetriedTotal,
		EvidenceRowsPersisted, AchievedLevelHistogram, EventsPublishedTotal,
	)
}

// EnqueueJob records an enqueue for the job type.
func EnqueueJob(jobType string) { JobsEnqueuedTotal.WithLabelValues(jobType).Inc() }

// StartJob marks a job as processing.
func StartJob(jobType string) { JobsProcessing.WithLabelValues(jobType).Inc() }

// CompleteJob records a successful job.
func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCompletedTotal.WithLabelValues(jobType).Inc()
}

// FailJob records a terminally failed job.
func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}

// CancelJob records a cancelled or superseded job.
func CancelJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCancelledTotal.WithLabelValues(jobType).Inc()
}

// RetryJob records a scheduled redelivery.
func RetryJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsRetriedTotal.WithLabelValues(jobType).Inc()
}

// HTTPMetricsMiddleware records request counts and durations per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
