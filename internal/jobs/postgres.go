package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/voxreel/voxreel/internal/models"
)

// PostgresStore persists job records in a single jobs table. Every lifecycle
// rule is enforced with conditional UPDATEs, so concurrent workers get an
// optimistic-concurrency discipline without explicit locks: the losing writer
// simply affects zero rows and receives the matching condition error.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const jobColumns = `
	id, owner_id, narration_text, language, voice_profile_id, priority,
	status, progress, progress_message, result, error, worker_id,
	retry_count, max_retries, created_at, started_at, completed_at
`

func (s *PostgresStore) Create(ctx context.Context, spec JobSpec) (*models.Job, error) {
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
	}

	query := `
		INSERT INTO jobs (
			id, owner_id, narration_text, language, voice_profile_id,
			priority, status, max_retries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(
		ctx, query,
		job.ID, job.OwnerID, job.NarrationText, job.Language,
		job.VoiceProfileID, job.Priority, job.Status, job.MaxRetries,
	).Scan(&job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.Job, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	where := `WHERE ($1 = '' OR owner_id = $1) AND ($2 = '' OR status = $2)`
	statusArg := ""
	if filter.Status != nil {
		statusArg = string(*filter.Status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, filter.OwnerID, statusArg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs ` + where + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, filter.OwnerID, statusArg, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, total, rows.Err()
}

func (s *PostgresStore) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'started', 'processing')
	`

	res, err := s.db.ExecContext(ctx, query, models.JobStatusCancelled, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.refusalReason(ctx, id, ErrAlreadyTerminal)
	}
	return nil
}

func (s *PostgresStore) Claim(ctx context.Context, id uuid.UUID, workerID string) error {
	query := `
		UPDATE jobs
		SET status = $1, worker_id = $2, started_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`

	res, err := s.db.ExecContext(ctx, query, models.JobStatusStarted, workerID, id)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.refusalReason(ctx, id, ErrNotClaimable)
	}
	return nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, message string) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = $2, progress_message = $3
		WHERE id = $4
		  AND status IN ('pending', 'started', 'processing')
		  AND progress <= $2
	`

	res, err := s.db.ExecContext(ctx, query, models.JobStatusProcessing, progress, message, id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.refusalReason(ctx, id, ErrProgressRegressed)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, result models.RenderResult) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = 1.0, result = $2, completed_at = NOW()
		WHERE id = $3 AND status IN ('pending', 'started', 'processing')
	`

	res, err := s.db.ExecContext(ctx, query, models.JobStatusSuccess, result, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.refusalReason(ctx, id, ErrAlreadyTerminal)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, error = $2, completed_at = NOW()
		WHERE id = $3 AND status IN ('pending', 'started', 'processing')
	`

	res, err := s.db.ExecContext(ctx, query, models.JobStatusFailure, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.refusalReason(ctx, id, ErrAlreadyTerminal)
	}
	return nil
}

func (s *PostgresStore) Requeue(ctx context.Context, id uuid.UUID, lastErr string) error {
	query := `
		UPDATE jobs
		SET status = 'pending', retry_count = retry_count + 1,
		    worker_id = NULL, progress_message = $1
		WHERE id = $2 AND status IN ('pending', 'started', 'processing')
	`

	res, err := s.db.ExecContext(ctx, query, lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.refusalReason(ctx, id, ErrAlreadyTerminal)
	}
	return nil
}

func (s *PostgresStore) Reap(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ('success', 'failure', 'cancelled')
		  AND completed_at < NOW() - $1::interval
	`

	res, err := s.db.ExecContext(ctx, query, fmt.Sprintf("%f seconds", olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to reap jobs: %w", err)
	}

	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// refusalReason maps a zero-row conditional update to the precise condition
// error: missing record, terminal record, or the provided fallthrough.
func (s *PostgresStore) refusalReason(ctx context.Context, id uuid.UUID, fallthroughErr error) error {
	var status models.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect job status: %w", err)
	}
	if status.Terminal() {
		s.logger.Debug("transition refused on terminal job", "job_id", id, "status", status)
		return ErrAlreadyTerminal
	}
	return fallthroughErr
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}

	var result resultColumn
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.NarrationText, &job.Language,
		&job.VoiceProfileID, &job.Priority, &job.Status, &job.Progress,
		&job.ProgressMessage, &result, &job.Error, &job.WorkerID,
		&job.RetryCount, &job.MaxRetries, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if result.valid {
		job.Result = &result.value
	}

	return job, nil
}

// resultColumn scans a nullable jsonb result column.
type resultColumn struct {
	value models.RenderResult
	valid bool
}

func (c *resultColumn) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	if err := c.value.Scan(value); err != nil {
		return err
	}
	c.valid = true
	return nil
}
