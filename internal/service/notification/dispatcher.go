package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/pkg/metrics"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

// JobOptions is the retry policy of new-message jobs.
var JobOptions = queue.Options{
	Attempts: 3,
	Backoff: queue.Backoff{
		Type:  queue.BackoffExponential,
		Delay: time.Second,
	},
}

// Enqueuer is the producer side of the job queue.
type Enqueuer interface {
	Add(ctx context.Context, name string, payload interface{}, opts queue.Options) (*queue.Job, error)
}

// Dispatcher turns sent messages into queued per-recipient jobs.
type Dispatcher struct {
	queue   Enqueuer
	options queue.Options
	metrics *metrics.Metrics
}

func NewDispatcher(q Enqueuer, options queue.Options, metrics *metrics.Metrics) *Dispatcher {
	if options.Attempts <= 0 {
		options = JobOptions
	}
	return &Dispatcher{queue: q, options: options, metrics: metrics}
}

func (d *Dispatcher) Enqueue(ctx context.Context, job model.NotificationJob) error {
	if _, err := d.queue.Add(ctx, model.NewMessageJob, job, d.options); err != nil {
		d.metrics.EnqueueFailures.WithLabelValues(model.NewMessageJob).Inc()
		return fmt.Errorf("failed to enqueue notification for %s: %w", job.RecipientID, err)
	}
	d.metrics.JobsEnqueued.WithLabelValues(model.NewMessageJob).Inc()
	return nil
}
