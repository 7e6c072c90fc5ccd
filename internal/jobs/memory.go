package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voxreel/voxreel/internal/models"
)

// MemoryStore is an in-process Store used in tests and single-node dev mode.
// It enforces exactly the same transition rules as the Postgres store.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*models.Job
	logger *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[uuid.UUID]*models.Job),
		logger: logger,
	}
}

func (s *MemoryStore) Create(ctx context.Context, spec JobSpec) (*models.Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:             uuid.New(),
		OwnerID:        spec.OwnerID,
		NarrationText:  spec.NarrationText,
		Language:       spec.Language,
		VoiceProfileID: spec.VoiceProfileID,
		Priority:       spec.Priority,
		Status:         models.JobStatusPending,
		MaxRetries:     spec.MaxRetries,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	copied := *job
	return &copied, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]models.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Job
	for _, job := range s.jobs {
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		matched = append(matched, *job)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	matched = matched[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, total, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		// Idempotent against racing workers: refused, logged, not escalated here.
		s.logger.Debug("cancel refused on terminal job", "job_id", id, "status", job.Status)
		return ErrAlreadyTerminal
	}

	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, id uuid.UUID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		s.logger.Debug("claim refused on terminal job", "job_id", id, "status", job.Status)
		return ErrAlreadyTerminal
	}
	if job.Status != models.JobStatusPending {
		return ErrNotClaimable
	}

	now := time.Now()
	job.Status = models.JobStatusStarted
	job.WorkerID = &workerID
	job.StartedAt = &now
	return nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		s.logger.Debug("progress refused on terminal job", "job_id", id, "status", job.Status)
		return ErrAlreadyTerminal
	}
	if progress < job.Progress {
		return ErrProgressRegressed
	}

	job.Status = models.JobStatusProcessing
	job.Progress = progress
	job.ProgressMessage = message
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, id uuid.UUID, result models.RenderResult) error {
	return s.finish(id, func(job *models.Job) {
		job.Status = models.JobStatusSuccess
		job.Progress = 1.0
		job.Result = &result
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.finish(id, func(job *models.Job) {
		job.Status = models.JobStatusFailure
		job.Error = &errMsg
	})
}

func (s *MemoryStore) finish(id uuid.UUID, apply func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		s.logger.Debug("terminal transition refused on terminal job", "job_id", id, "status", job.Status)
		return ErrAlreadyTerminal
	}

	now := time.Now()
	apply(job)
	job.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Requeue(ctx context.Context, id uuid.UUID, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrAlreadyTerminal
	}

	job.Status = models.JobStatusPending
	job.RetryCount++
	job.WorkerID = nil
	job.ProgressMessage = lastErr
	return nil
}

func (s *MemoryStore) Reap(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}
