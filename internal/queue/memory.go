package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue closed")

const memoryPollInterval = 5 * time.Millisecond

// MemoryQueue is a channel-backed in-process queue for tests and dev mode.
// Dequeue scans the lanes high -> default -> low on a short tick, preserving
// the strict-priority contract the Redis BLPOP gives in production.
type MemoryQueue struct {
	mu     sync.Mutex
	chans  map[Lane]chan *Envelope
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	chans := make(map[Lane]chan *Envelope, len(lanes))
	for _, lane := range lanes {
		chans[lane] = make(chan *Envelope, size)
	}
	return &MemoryQueue{chans: chans}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, env *Envelope) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	ch := q.chans[LaneFor(env.Priority)]
	q.mu.Unlock()

	env.EnqueuedAt = time.Now()

	select {
	case ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(memoryPollInterval)
	defer ticker.Stop()

	for {
		// Non-blocking scan in strict lane order.
		for _, lane := range lanes {
			select {
			case env := <-q.chans[lane]:
				return env, nil
			default:
			}
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *MemoryQueue) Len(ctx context.Context, lane Lane) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.chans[lane])), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
