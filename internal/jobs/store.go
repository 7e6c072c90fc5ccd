package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxreel/voxreel/internal/models"
)

// Store condition errors. Callers distinguish them with errors.Is.
var (
	// ErrNotFound means no job record exists for the given id.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyTerminal means the job is in SUCCESS, FAILURE or CANCELLED and
	// the attempted transition was refused.
	ErrAlreadyTerminal = errors.New("job already terminal")

	// ErrNotClaimable means a claim was attempted on a job that is no longer
	// PENDING (already claimed, or cancelled before execution).
	ErrNotClaimable = errors.New("job not claimable")

	// ErrProgressRegressed means an update carried a lower progress value than
	// the one already recorded.
	ErrProgressRegressed = errors.New("progress regressed")
)

// ValidationError marks a job spec that can never execute. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job spec: %s %s", e.Field, e.Reason)
}

// JobSpec is what a caller submits. Validation happens in Create; no external
// calls are made so job creation stays caller-visibly cheap.
type JobSpec struct {
	OwnerID        string
	NarrationText  string
	Language       string
	VoiceProfileID string
	Priority       int
	MaxRetries     int
}

// Validate enforces the create contract: owner and narration present, priority
// in [1,10].
func (s JobSpec) Validate() error {
	if strings.TrimSpace(s.OwnerID) == "" {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if strings.TrimSpace(s.NarrationText) == "" {
		return &ValidationError{Field: "narration_text", Reason: "is required"}
	}
	if s.Priority < 1 || s.Priority > 10 {
		return &ValidationError{Field: "priority", Reason: "must be between 1 and 10"}
	}
	if s.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Reason: "must not be negative"}
	}
	return nil
}

// ListFilter narrows List results. Status nil means all statuses.
type ListFilter struct {
	OwnerID string
	Status  *models.JobStatus
	Limit   int
	Offset  int
}

// Store owns job records and enforces the lifecycle state machine:
//
//	PENDING -> STARTED -> PROCESSING -> {SUCCESS | FAILURE}
//	PENDING/STARTED/PROCESSING -> CANCELLED
//
// Terminal states accept no further transitions; progress is monotonic while
// the job is live. All mutations are atomic with respect to concurrent workers.
type Store interface {
	// Create validates the spec and persists a PENDING record.
	Create(ctx context.Context, spec JobSpec) (*models.Job, error)

	// Get returns the job or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// List returns jobs ordered by created_at descending, plus the unpaged total.
	List(ctx context.Context, filter ListFilter) ([]models.Job, int, error)

	// Cancel transitions to CANCELLED iff the job is live; returns
	// ErrAlreadyTerminal otherwise.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Claim atomically transitions PENDING -> STARTED for exactly one worker.
	// Returns ErrNotClaimable if the job is not PENDING.
	Claim(ctx context.Context, id uuid.UUID, workerID string) error

	// UpdateProgress sets PROCESSING with the new progress and message.
	// Rejected with ErrAlreadyTerminal on terminal jobs and
	// ErrProgressRegressed if progress would decrease.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, message string) error

	// Complete performs the SUCCESS terminal transition and attaches the result.
	Complete(ctx context.Context, id uuid.UUID, result models.RenderResult) error

	// Fail performs the FAILURE terminal transition with the final error text.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// Requeue puts a live job back to PENDING and increments retry_count.
	// Used by the scheduler's transient-failure retry path.
	Requeue(ctx context.Context, id uuid.UUID, lastErr string) error

	// Reap deletes terminal jobs completed before the retention cutoff and
	// returns how many were removed.
	Reap(ctx context.Context, olderThan time.Duration) (int, error)
}
