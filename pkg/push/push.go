// Package push delivers notifications to devices of offline recipients.
package push

import (
	"context"
	"fmt"

	"github.com/jwalitptl/chat-api/pkg/circuitbreaker"
	"github.com/rs/zerolog"
)

type Push struct {
	RecipientID string            `json:"recipient_id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data"`
}

// Transport sends a single push. An error means the push was not accepted
// and the caller may retry.
type Transport interface {
	Send(ctx context.Context, p Push) error
}

// LogTransport simulates a push provider by logging every push it accepts.
type LogTransport struct {
	logger zerolog.Logger
}

func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, p Push) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.logger.Info().
		Str("recipient_id", p.RecipientID).
		Str("title", p.Title).
		Interface("data", p.Data).
		Msg("push sent")
	return nil
}

// Breaker fails fast while the wrapped transport keeps failing.
type Breaker struct {
	next Transport
	cb   *circuitbreaker.CircuitBreaker
}

func NewBreaker(next Transport, cb *circuitbreaker.CircuitBreaker) *Breaker {
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Send(ctx context.Context, p Push) error {
	err := b.cb.Execute(func() error {
		return b.next.Send(ctx, p)
	})
	if err != nil {
		return fmt.Errorf("push to %s failed: %w", p.RecipientID, err)
	}
	return nil
}
