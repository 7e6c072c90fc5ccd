package worker

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxreel/voxreel/internal/assets"
	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
	"github.com/voxreel/voxreel/internal/queue"
	"github.com/voxreel/voxreel/internal/services"
	"github.com/voxreel/voxreel/internal/synthesis"
)

type stubResolver struct {
	placeholder bool
}

func (r *stubResolver) Resolve(ctx context.Context, sceneText string) assets.Resolution {
	return assets.Resolution{
		Path:        "/tmp/asset.png",
		Source:      "stub",
		Placeholder: r.placeholder,
	}
}

type stubSynth struct {
	mu       sync.Mutex
	err      error
	degraded bool
	onCall   func()
	block    bool          // wait for ctx cancellation and surface ctx.Err()
	sleep    time.Duration // sleep without honoring ctx, like a wedged provider call
	calls    int
}

func (s *stubSynth) SynthesizeScene(ctx context.Context, jobID uuid.UUID, ordinal int, text, voice string, estimatedSec float64) (*synthesis.Result, error) {
	s.mu.Lock()
	s.calls++
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.sleep > 0 {
		time.Sleep(s.sleep)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &synthesis.Result{
		AudioPath:   "/tmp/audio.mp3",
		DurationSec: estimatedSec,
		Degraded:    s.degraded,
	}, nil
}

type stubComposer struct {
	err    error
	result *models.RenderResult
}

func (c *stubComposer) Compose(ctx context.Context, jobID uuid.UUID, sceneList []models.Scene) (*models.RenderResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &models.RenderResult{
		ArtifactPath: "/tmp/out.mp4",
		DurationSec:  10,
		SizeBytes:    1024,
		Resolution:   "1080x1920",
	}, nil
}

type poolFixture struct {
	store    *jobs.MemoryStore
	queue    *queue.MemoryQueue
	synth    *stubSynth
	composer *stubComposer
	pool     *Pool
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return newPoolFixtureWith(t, logger, 5*time.Second, 10*time.Second)
}

func newPoolFixtureWith(t *testing.T, logger *slog.Logger, soft, hard time.Duration) *poolFixture {
	t.Helper()

	f := &poolFixture{
		store:    jobs.NewMemoryStore(logger),
		queue:    queue.NewMemoryQueue(16),
		synth:    &stubSynth{},
		composer: &stubComposer{},
	}

	f.pool = NewPool(
		f.store, f.queue,
		&stubResolver{}, f.synth, f.composer,
		NewStoreSink(f.store),
		Options{
			WorkerID:    "test-worker",
			Concurrency: 1,
			SoftTimeout: soft,
			HardTimeout: hard,
		},
		logger,
	)
	return f
}

func (f *poolFixture) createJob(t *testing.T, maxRetries int) *models.Job {
	t.Helper()
	job, err := f.store.Create(context.Background(), jobs.JobSpec{
		OwnerID:       "owner-1",
		NarrationText: "First paragraph of the story.\n\nSecond paragraph of the story.",
		Priority:      5,
		MaxRetries:    maxRetries,
	})
	require.NoError(t, err)
	return job
}

func envelopeFor(job *models.Job) *queue.Envelope {
	return &queue.Envelope{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Priority:   job.Priority,
		EnqueuedAt: time.Now(),
	}
}

func TestHandleRunsJobToSuccess(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 0)

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.Result)
	assert.Equal(t, "/tmp/out.mp4", got.Result.ArtifactPath)
	require.NotNil(t, got.WorkerID)
	assert.Equal(t, "test-worker", *got.WorkerID)
	assert.Equal(t, 2, f.synth.calls, "one synthesis call per scene")
}

func TestHandleDropsUnclaimableDelivery(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 0)

	require.NoError(t, f.store.Cancel(context.Background(), job.ID))

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Equal(t, 0, f.synth.calls, "cancelled job must not run the pipeline")
}

func TestHandleDropsCancelledDeliveryQuietly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := newPoolFixtureWith(t, logger, 5*time.Second, 10*time.Second)
	job := f.createJob(t, 0)
	require.NoError(t, f.store.Cancel(context.Background(), job.ID))

	f.pool.handle(context.Background(), envelopeFor(job))

	logged := buf.String()
	assert.Contains(t, logged, "dropping unclaimable delivery")
	assert.NotContains(t, logged, "level=ERROR", "a stale envelope is routine, not an error")
}

func TestHandleSoftTimeoutFailsJob(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	f := newPoolFixtureWith(t, logger, 50*time.Millisecond, 5*time.Second)
	job := f.createJob(t, 3)

	f.synth.block = true

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailure, got.Status, "deadline overruns do not burn retries")
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "timeout")
	assert.Equal(t, 0, got.RetryCount)
}

func TestHandleHardTimeoutBackstop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	f := newPoolFixtureWith(t, logger, 20*time.Millisecond, 80*time.Millisecond)
	job := f.createJob(t, 3)

	// A wedged stage that never observes cancellation.
	f.synth.sleep = 500 * time.Millisecond

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailure, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "hard timeout")
}

func TestHandleAbandonsJobCancelledMidFlight(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 3)

	// Cancel from "another caller" while scene work is underway.
	f.synth.onCall = func() {
		_ = f.store.Cancel(context.Background(), job.ID)
	}

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status, "cancellation must stick, not be overwritten")
	assert.Nil(t, got.Result)
}

func TestHandleTransientFailureRequeues(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 3)

	f.synth.err = &services.ProviderError{
		Provider: "elevenlabs",
		Kind:     services.FailureTransient,
		Err:      assert.AnError,
	}

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status, "transient failure returns the job to the queue")
	assert.Equal(t, 1, got.RetryCount)
}

func TestHandleRetryBudgetExhaustedFails(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 0)

	f.synth.err = &services.ProviderError{
		Provider: "elevenlabs",
		Kind:     services.FailureTransient,
		Err:      assert.AnError,
	}

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailure, got.Status)
	require.NotNil(t, got.Error)
}

func TestHandlePermanentProviderFailureFailsImmediately(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 3)

	f.synth.err = &services.ProviderError{
		Provider: "elevenlabs",
		Kind:     services.FailurePermanent,
		Err:      assert.AnError,
	}

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailure, got.Status, "permanent failures must not burn retries")
	assert.Equal(t, 0, got.RetryCount)
}

func TestHandleCompositionFailureRetries(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 2)

	f.composer.err = assert.AnError

	f.pool.handle(context.Background(), envelopeFor(job))

	got, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestStartConsumesQueuedJob(t *testing.T) {
	f := newPoolFixture(t)
	job := f.createJob(t, 0)
	require.NoError(t, f.queue.Enqueue(context.Background(), envelopeFor(job)))

	ctx, cancel := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		f.pool.Start(ctx)
		close(poolDone)
	}()

	require.Eventually(t, func() bool {
		got, err := f.store.Get(context.Background(), job.ID)
		return err == nil && got.Status == models.JobStatusSuccess
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-poolDone:
	case <-time.After(8 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failureDisposition
	}{
		{"already terminal", jobs.ErrAlreadyTerminal, dispositionAbandon},
		{"validation", &jobs.ValidationError{Field: "narration_text", Reason: "empty"}, dispositionFail},
		{"deadline", context.DeadlineExceeded, dispositionFail},
		{"permanent provider", &services.ProviderError{Kind: services.FailurePermanent, Err: assert.AnError}, dispositionFail},
		{"transient provider", &services.ProviderError{Kind: services.FailureTransient, Err: assert.AnError}, dispositionRetry},
		{"unknown", assert.AnError, dispositionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestRetryDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := retryDelay(attempt)
		assert.GreaterOrEqual(t, d, retryBaseDelay)
		assert.LessOrEqual(t, d, retryMaxDelay+retryMaxDelay/4)
	}

	// Backoff grows with the attempt number (ignoring jitter).
	assert.Less(t, retryDelay(0), 4*time.Second)
	assert.GreaterOrEqual(t, retryDelay(3), 16*time.Second)
}
