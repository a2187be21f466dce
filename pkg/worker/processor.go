package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/chat-api/pkg/logger"
	"github.com/jwalitptl/chat-api/pkg/metrics"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

// Handler processes one job attempt. A returned error fails the attempt.
type Handler func(ctx context.Context, job *queue.Job) error

// Queue is the part of the job queue a processor consumes from.
type Queue interface {
	Reserve(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) (bool, error)
	PromoteDelayed(ctx context.Context) (int, error)
}

var ErrNoHandler = errors.New("no handler registered for job")

type ProcessorConfig struct {
	Concurrency     int
	ReserveTimeout  time.Duration
	JobTimeout      time.Duration
	PromoteInterval time.Duration
}

type Processor struct {
	queue    Queue
	config   ProcessorConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewProcessor(
	q Queue,
	config ProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Processor {
	if config.Concurrency <= 0 {
		panic("Concurrency must be greater than 0")
	}
	if config.ReserveTimeout <= 0 {
		panic("ReserveTimeout must be greater than 0")
	}
	if config.JobTimeout <= 0 {
		panic("JobTimeout must be greater than 0")
	}
	if config.PromoteInterval <= 0 {
		panic("PromoteInterval must be greater than 0")
	}

	return &Processor{
		queue:    q,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for jobs named name, replacing any previous handler.
func (p *Processor) Handle(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = h
}

// Start runs the reserve loops and the delayed-job promoter until ctx is
// cancelled. In-flight jobs finish before Start returns.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting job processor", "concurrency", p.config.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.promoteLoop(gctx)
		return nil
	})
	for i := 0; i < p.config.Concurrency; i++ {
		g.Go(func() error {
			p.reserveLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	p.logger.Info("Shutting down job processor")
	return err
}

func (p *Processor) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error(err, "Failed to promote delayed jobs")
			}
		}
	}
}

func (p *Processor) reserveLoop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := p.queue.Reserve(ctx, p.config.ReserveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error(err, "Failed to reserve job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		// finish the attempt even if shutdown starts mid-job
		p.process(context.WithoutCancel(ctx), job)
	}
}

// ProcessOne reserves and processes a single job. It reports false when no
// job became available within the reserve timeout.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	job, err := p.queue.Reserve(ctx, p.config.ReserveTimeout)
	if err != nil {
		return false, fmt.Errorf("failed to reserve job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Processor) process(ctx context.Context, job *queue.Job) {
	timer := prometheus.NewTimer(p.metrics.JobDuration.WithLabelValues(job.Name))
	defer timer.ObserveDuration()

	log := p.logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"job_name": job.Name,
		"attempt":  job.AttemptsMade + 1,
	})

	err := p.run(ctx, job)
	if err == nil {
		if cerr := p.queue.Complete(ctx, job); cerr != nil {
			log.Error(cerr, "Failed to mark job completed")
			return
		}
		p.metrics.JobsProcessed.WithLabelValues(job.Name).Inc()
		log.Debug("Job completed")
		return
	}

	terminal, ferr := p.queue.Fail(ctx, job, err)
	if ferr != nil {
		log.Error(ferr, "Failed to record job failure", "cause", err.Error())
		return
	}
	p.metrics.JobsFailed.WithLabelValues(job.Name, fmt.Sprint(terminal)).Inc()
	if terminal {
		log.Error(err, "Job failed permanently")
		return
	}
	p.metrics.JobRetries.WithLabelValues(job.Name).Inc()
	log.Warn("Job failed, retry scheduled", "error", err.Error())
}

func (p *Processor) run(ctx context.Context, job *queue.Job) (err error) {
	p.mu.RLock()
	h, ok := p.handlers[job.Name]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
