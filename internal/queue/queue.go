package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lane is one of the fixed FIFO priority queues.
type Lane string

const (
	LaneHigh    Lane = "queue:jobs:high"    // priority 1-3
	LaneDefault Lane = "queue:jobs:default" // priority 4-7
	LaneLow     Lane = "queue:jobs:low"     // priority 8-10
)

// lanes in strict dequeue order. A lane is drained before the next-lower lane
// is even inspected; lower lanes get no fairness guarantee under sustained
// high-lane load.
var lanes = []Lane{LaneHigh, LaneDefault, LaneLow}

// Lanes returns the lanes in strict priority order.
func Lanes() []Lane {
	return lanes
}

// LaneFor maps a job priority (1-10, lower is more urgent) to its lane.
func LaneFor(priority int) Lane {
	switch {
	case priority <= 3:
		return LaneHigh
	case priority <= 7:
		return LaneDefault
	default:
		return LaneLow
	}
}

// Envelope is the wire payload carried through a lane. The job record itself
// stays in the store; the envelope is only the delivery ticket.
type Envelope struct {
	JobID      uuid.UUID `json:"job_id"`
	OwnerID    string    `json:"owner_id"`
	Priority   int       `json:"priority"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue delivers job envelopes to workers with at-least-once semantics.
// Dequeue blocks up to timeout and returns (nil, nil) when no work is ready.
type Queue interface {
	Enqueue(ctx context.Context, env *Envelope) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Envelope, error)
	Len(ctx context.Context, lane Lane) (int64, error)
	Close() error
}
