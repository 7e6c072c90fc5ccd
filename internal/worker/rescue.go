package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
	"github.com/voxreel/voxreel/internal/queue"
)

// RescuePending re-enqueues every PENDING job in the store. The delayed
// re-enqueue after a transient failure lives in a process-local timer, so a
// shutdown in that window leaves a PENDING record with no envelope on any
// lane; this sweep restores the envelope on the next cycle. Delivery is
// at-least-once and the claim is atomic, so re-enqueueing a job whose
// envelope is still in flight is harmless: the duplicate loses the claim
// and is dropped.
func RescuePending(ctx context.Context, store jobs.Store, q queue.Queue, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}

	status := models.JobStatusPending
	pending, _, err := store.List(ctx, jobs.ListFilter{Status: &status, Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	rescued := 0
	for _, job := range pending {
		env := &queue.Envelope{
			JobID:      job.ID,
			OwnerID:    job.OwnerID,
			Priority:   job.Priority,
			Attempt:    job.RetryCount,
			EnqueuedAt: time.Now(),
		}
		if err := q.Enqueue(ctx, env); err != nil {
			return rescued, fmt.Errorf("failed to re-enqueue job %s: %w", job.ID, err)
		}
		rescued++
	}

	return rescued, nil
}
