// Package queue implements a durable, at-least-once job queue on Redis with
// named jobs, bounded retries with backoff and retention of finished jobs.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

const maxBackoff = time.Hour

// Backoff describes the delay before a failed job becomes runnable again.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// Next returns the delay after the given number of failed attempts (1-based).
// Exponential backoff doubles from Delay: 1s, 2s, 4s, ...
func (b Backoff) Next(attemptsMade int) time.Duration {
	if b.Delay <= 0 || attemptsMade < 1 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Delay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = maxBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()

	d := b.Delay
	for i := 0; i < attemptsMade; i++ {
		d = eb.NextBackOff()
	}
	return d
}

// Options control retries of a single job.
type Options struct {
	Attempts int
	Backoff  Backoff
}

// Retention bounds how many finished jobs are kept around for inspection.
type Retention struct {
	CompletedAge   time.Duration
	CompletedCount int
	FailedAge      time.Duration
}

// DefaultRetention keeps completed jobs for an hour (at most 1000) and failed
// jobs for a day.
func DefaultRetention() Retention {
	return Retention{
		CompletedAge:   time.Hour,
		CompletedCount: 1000,
		FailedAge:      24 * time.Hour,
	}
}

type Job struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Attempts     int             `json:"attempts"`
	AttemptsMade int             `json:"attempts_made"`
	Backoff      Backoff         `json:"backoff"`
	State        State           `json:"state"`
	FailedReason string          `json:"failed_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("failed to decode job %s payload: %w", j.ID, err)
	}
	return nil
}

// Counts is the number of jobs per state.
type Counts map[State]int64
