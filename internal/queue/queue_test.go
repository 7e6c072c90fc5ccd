package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneFor(t *testing.T) {
	cases := []struct {
		priority int
		want     Lane
	}{
		{1, LaneHigh},
		{3, LaneHigh},
		{4, LaneDefault},
		{7, LaneDefault},
		{8, LaneLow},
		{10, LaneLow},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, LaneFor(tc.priority), "priority %d", tc.priority)
	}
}

func TestMemoryQueueStrictPriorityOrder(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	// Lower-urgency job submitted first; higher-urgency job must still win.
	low := &Envelope{JobID: uuid.New(), Priority: 9}
	high := &Envelope{JobID: uuid.New(), Priority: 1}

	require.NoError(t, q.Enqueue(ctx, low))
	require.NoError(t, q.Enqueue(ctx, high))

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, high.JobID, first.JobID)

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, low.JobID, second.JobID)
}

func TestMemoryQueueFIFOWithinLane(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	a := &Envelope{JobID: uuid.New(), Priority: 5}
	b := &Envelope{JobID: uuid.New(), Priority: 5}

	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, a.JobID, first.JobID)

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, b.JobID, second.JobID)
}

func TestMemoryQueueDequeueTimesOutEmpty(t *testing.T) {
	q := NewMemoryQueue(8)

	start := time.Now()
	env, err := q.Dequeue(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, env)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMemoryQueueDequeueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueueEnqueueAfterClose(t *testing.T) {
	q := NewMemoryQueue(8)
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), &Envelope{JobID: uuid.New(), Priority: 5})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueueLen(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Envelope{JobID: uuid.New(), Priority: 2}))
	require.NoError(t, q.Enqueue(ctx, &Envelope{JobID: uuid.New(), Priority: 2}))

	n, err := q.Len(ctx, LaneHigh)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = q.Len(ctx, LaneLow)
	require.NoError(t, err)
	assert.Zero(t, n)
}
