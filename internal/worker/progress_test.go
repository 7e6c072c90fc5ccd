package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	reports []float64
	err     error
}

func (r *recordingSink) Report(ctx context.Context, jobID uuid.UUID, progress float64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, progress)
	return r.err
}

type recordingHub struct {
	events []models.ProgressEvent
}

func (r *recordingHub) Publish(event models.ProgressEvent) {
	r.events = append(r.events, event)
}

func TestStoreSinkSwallowsRegression(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := jobs.NewMemoryStore(logger)
	job, err := store.Create(context.Background(), jobs.JobSpec{
		OwnerID:       "owner-1",
		NarrationText: "text",
		Priority:      5,
	})
	require.NoError(t, err)
	require.NoError(t, store.Claim(context.Background(), job.ID, "w1"))

	sink := NewStoreSink(store)
	require.NoError(t, sink.Report(context.Background(), job.ID, 0.5, "midway"))

	// Out-of-order report from a parallel scene goroutine is not an error.
	require.NoError(t, sink.Report(context.Background(), job.ID, 0.3, "stale"))

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Progress, "stale report must not move progress backwards")
}

func TestStoreSinkSurfacesTerminal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := jobs.NewMemoryStore(logger)
	job, err := store.Create(context.Background(), jobs.JobSpec{
		OwnerID:       "owner-1",
		NarrationText: "text",
		Priority:      5,
	})
	require.NoError(t, err)
	require.NoError(t, store.Cancel(context.Background(), job.ID))

	sink := NewStoreSink(store)
	err = sink.Report(context.Background(), job.ID, 0.5, "late")
	assert.ErrorIs(t, err, jobs.ErrAlreadyTerminal)
}

func TestHubSinkPublishesEvents(t *testing.T) {
	hub := &recordingHub{}
	sink := NewHubSink(hub)
	jobID := uuid.New()

	require.NoError(t, sink.Report(context.Background(), jobID, 0.4, "working"))

	require.Len(t, hub.events, 1)
	assert.Equal(t, jobID, hub.events[0].JobID)
	assert.Equal(t, models.JobStatusProcessing, hub.events[0].Status)
	assert.Equal(t, 0.4, hub.events[0].Progress)
	assert.Equal(t, "working", hub.events[0].Message)
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	failing := &recordingSink{err: jobs.ErrAlreadyTerminal}
	trailing := &recordingSink{}
	sink := MultiSink{failing, trailing}

	err := sink.Report(context.Background(), uuid.New(), 0.2, "step")

	assert.ErrorIs(t, err, jobs.ErrAlreadyTerminal)
	assert.Empty(t, trailing.reports, "a refused update must not reach later sinks")
}

func TestMultiSinkTerminalJobKeepsFeedQuiet(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := jobs.NewMemoryStore(logger)
	job, err := store.Create(context.Background(), jobs.JobSpec{
		OwnerID:       "owner-1",
		NarrationText: "text",
		Priority:      5,
	})
	require.NoError(t, err)
	require.NoError(t, store.Cancel(context.Background(), job.ID))

	hub := &recordingHub{}
	sink := MultiSink{NewStoreSink(store), NewHubSink(hub)}

	err = sink.Report(context.Background(), job.ID, 0.5, "late")
	assert.ErrorIs(t, err, jobs.ErrAlreadyTerminal)
	assert.Empty(t, hub.events, "cancelled jobs must not emit processing events")
}
