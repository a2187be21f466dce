package push

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/chat-api/pkg/circuitbreaker"
)

type flakyTransport struct {
	err   error
	calls int
}

func (f *flakyTransport) Send(_ context.Context, _ Push) error {
	f.calls++
	return f.err
}

func TestLogTransport(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLogTransport(zerolog.New(&buf))

	err := tr.Send(context.Background(), Push{RecipientID: "u1", Title: "New message from Ana"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"recipient_id":"u1"`)
}

func TestLogTransportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLogTransport(zerolog.Nop()).Send(ctx, Push{RecipientID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreakerOpensOnRepeatedFailure(t *testing.T) {
	downstream := &flakyTransport{err: errors.New("503")}
	b := NewBreaker(downstream, circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:                "push",
		ConsecutiveFailures: 1,
	}))

	err := b.Send(context.Background(), Push{RecipientID: "u1"})
	assert.ErrorIs(t, err, downstream.err)

	err = b.Send(context.Background(), Push{RecipientID: "u1"})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 1, downstream.calls)
}
