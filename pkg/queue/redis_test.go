package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type payload struct {
	MessageID string `json:"message_id"`
}

func setup(t *testing.T) (*RedisQueue, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	q := NewRedisQueue(client, Config{
		Name:    "notifications",
		LockTTL: 30 * time.Second,
	}, WithClock(clock.Now))
	return q, mr, clock
}

var retrying = Options{
	Attempts: 3,
	Backoff:  Backoff{Type: BackoffExponential, Delay: time.Second},
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{Type: BackoffExponential, Delay: time.Second}
	assert.Equal(t, time.Second, b.Next(1))
	assert.Equal(t, 2*time.Second, b.Next(2))
	assert.Equal(t, 4*time.Second, b.Next(3))
	assert.Equal(t, time.Duration(0), b.Next(0))

	fixed := Backoff{Type: BackoffFixed, Delay: 5 * time.Second}
	assert.Equal(t, 5*time.Second, fixed.Next(3))
}

func TestAddReserveComplete(t *testing.T) {
	ctx := context.Background()
	q, _, _ := setup(t)

	added, err := q.Add(ctx, "new-message", payload{MessageID: "m1"}, retrying)
	require.NoError(t, err)

	job, err := q.Reserve(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, added.ID, job.ID)
	assert.Equal(t, "new-message", job.Name)
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 3, job.Attempts)

	var p payload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "m1", p.MessageID)

	require.NoError(t, q.Complete(ctx, job))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[StateActive])
	assert.Equal(t, int64(1), counts[StateCompleted])
}

func TestReserveEmpty(t *testing.T) {
	q, _, _ := setup(t)

	job, err := q.Reserve(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestReserveIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, _, _ := setup(t)

	first, err := q.Add(ctx, "new-message", payload{MessageID: "a"}, retrying)
	require.NoError(t, err)
	_, err = q.Add(ctx, "new-message", payload{MessageID: "b"}, retrying)
	require.NoError(t, err)

	job, err := q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, first.ID, job.ID)
}

func TestFailRetriesWithBackoffThenTerminal(t *testing.T) {
	ctx := context.Background()
	q, _, clock := setup(t)

	_, err := q.Add(ctx, "new-message", payload{MessageID: "m1"}, retrying)
	require.NoError(t, err)

	job, err := q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	terminal, err := q.Fail(ctx, job, errors.New("push unavailable"))
	require.NoError(t, err)
	assert.False(t, terminal)

	// not due yet
	none, err := q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, none)

	clock.Advance(time.Second)
	job, err = q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, "push unavailable", job.FailedReason)

	terminal, err = q.Fail(ctx, job, errors.New("push unavailable"))
	require.NoError(t, err)
	assert.False(t, terminal)

	clock.Advance(time.Second)
	none, err = q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, none, "second retry waits 2s")

	clock.Advance(time.Second)
	job, err = q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	terminal, err = q.Fail(ctx, job, errors.New("push unavailable"))
	require.NoError(t, err)
	assert.True(t, terminal)

	failed, err := q.Failed(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, StateFailed, failed[0].State)
	assert.Equal(t, 3, failed[0].AttemptsMade)

	clock.Advance(time.Hour)
	none, err = q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, none, "terminal failures are never retried")
}

func TestCleanAppliesRetention(t *testing.T) {
	ctx := context.Background()
	q, _, clock := setup(t)

	for i := 0; i < 3; i++ {
		_, err := q.Add(ctx, "new-message", payload{}, Options{Attempts: 1})
		require.NoError(t, err)
		job, err := q.Reserve(ctx, 20*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, job))
		clock.Advance(time.Second)
	}

	_, err := q.Add(ctx, "new-message", payload{}, Options{Attempts: 1})
	require.NoError(t, err)
	job, err := q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = q.Fail(ctx, job, errors.New("boom"))
	require.NoError(t, err)

	removed, err := q.Clean(ctx, Retention{CompletedAge: time.Hour, CompletedCount: 2, FailedAge: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	clock.Advance(2 * time.Hour)
	removed, err = q.Clean(ctx, DefaultRetention())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[StateCompleted])
	assert.Equal(t, int64(1), counts[StateFailed])

	clock.Advance(24 * time.Hour)
	removed, err = q.Clean(ctx, DefaultRetention())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = q.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRecoverStalled(t *testing.T) {
	ctx := context.Background()
	q, mr, _ := setup(t)

	added, err := q.Add(ctx, "new-message", payload{}, retrying)
	require.NoError(t, err)
	_, err = q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)

	n, err := q.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "lock still held")

	mr.FastForward(31 * time.Second)

	n, err = q.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, added.ID, job.ID)
}
