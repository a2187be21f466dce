package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Notification pipeline
	JobsEnqueued     *prometheus.CounterVec
	EnqueueFailures  *prometheus.CounterVec
	JobsProcessed    *prometheus.CounterVec
	JobsFailed       *prometheus.CounterVec
	JobsSkipped      *prometheus.CounterVec
	JobRetries       *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	PushDeliveries   *prometheus.CounterVec
	MessagesSent     prometheus.Counter
	RelayPublishErrs prometheus.Counter
}

// New creates all metrics and registers them with reg. A nil reg leaves them
// unregistered, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		JobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs added to the queue",
		}, []string{"job_name"}),
		EnqueueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_enqueue_failures_total",
			Help:      "Notification jobs that could not be enqueued after the message was stored",
		}, []string{"job_name"}),
		JobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs completed by workers",
		}, []string{"job_name"}),
		JobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of job attempts that failed",
		}, []string{"job_name", "terminal"}),
		JobsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_skipped_total",
			Help:      "Notification jobs completed without delivery",
		}, []string{"reason"}),
		JobRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retry_total",
			Help:      "Number of job retries scheduled",
		}, []string{"job_name"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_processing_duration_seconds",
			Help:      "Time spent processing a single job attempt",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"job_name"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Current number of jobs per queue state",
		}, []string{"state"}),
		PushDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Push transport calls by outcome",
		}, []string{"status"}),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages persisted",
		}),
		RelayPublishErrs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_publish_failures_total",
			Help:      "Realtime relay publishes that failed",
		}),
	}
}

// Discard returns unregistered metrics.
func Discard() *Metrics {
	return New("test", nil)
}
