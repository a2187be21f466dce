package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/jwalitptl/chat-api/pkg/logger"
	"github.com/jwalitptl/chat-api/pkg/metrics"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

// Maintainer is the part of the job queue the janitor looks after.
type Maintainer interface {
	Clean(ctx context.Context, r queue.Retention) (int, error)
	RecoverStalled(ctx context.Context) (int, error)
	Counts(ctx context.Context) (queue.Counts, error)
}

type JanitorConfig struct {
	// CleanCron is a cron expression for retention runs.
	CleanCron     string
	Retention     queue.Retention
	StallInterval time.Duration
}

// Janitor applies retention on a cron schedule and requeues stalled jobs.
type Janitor struct {
	queue   Maintainer
	config  JanitorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewJanitor(q Maintainer, config JanitorConfig, logger *logger.Logger, metrics *metrics.Metrics) (*Janitor, error) {
	if config.CleanCron == "" {
		config.CleanCron = "*/5 * * * *"
	}
	if !gronx.IsValid(config.CleanCron) {
		return nil, fmt.Errorf("invalid clean cron expression: %s", config.CleanCron)
	}
	if config.StallInterval <= 0 {
		config.StallInterval = 30 * time.Second
	}

	return &Janitor{
		queue:   q,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Starting queue janitor", "cron", j.config.CleanCron)
	go j.recoverLoop(ctx)

	for {
		next, err := gronx.NextTickAfter(j.config.CleanCron, j.now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			j.logger.Error(err, "Failed to compute next clean tick")
			wait = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			j.logger.Info("Shutting down queue janitor")
			return
		case <-time.After(wait):
			if err == nil {
				j.RunOnce(ctx)
			}
		}
	}
}

func (j *Janitor) recoverLoop(ctx context.Context) {
	ticker := time.NewTicker(j.config.StallInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.queue.RecoverStalled(ctx)
			if err != nil {
				j.logger.Error(err, "Failed to recover stalled jobs")
				continue
			}
			if n > 0 {
				j.logger.Warn("Recovered stalled jobs", "count", n)
			}
		}
	}
}

// RunOnce applies retention and refreshes the queue depth gauges.
func (j *Janitor) RunOnce(ctx context.Context) {
	removed, err := j.queue.Clean(ctx, j.config.Retention)
	if err != nil {
		j.logger.Error(err, "Failed to clean finished jobs")
	} else if removed > 0 {
		j.logger.Info("Cleaned finished jobs", "count", removed)
	}

	counts, err := j.queue.Counts(ctx)
	if err != nil {
		j.logger.Error(err, "Failed to read queue counts")
		return
	}
	for state, n := range counts {
		j.metrics.QueueDepth.WithLabelValues(string(state)).Set(float64(n))
	}
}
