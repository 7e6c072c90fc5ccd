package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
)

// ProgressSink receives progress updates during job execution. The store
// sink is authoritative: its ErrAlreadyTerminal return is how a running
// pipeline learns the job was cancelled out from under it.
type ProgressSink interface {
	Report(ctx context.Context, jobID uuid.UUID, progress float64, message string) error
}

// StoreSink persists progress through the job store.
type StoreSink struct {
	store jobs.Store
}

func NewStoreSink(store jobs.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Report(ctx context.Context, jobID uuid.UUID, progress float64, message string) error {
	err := s.store.UpdateProgress(ctx, jobID, progress, message)
	// Out-of-order updates from parallel scene work are harmless; the store
	// already holds a newer value.
	if errors.Is(err, jobs.ErrProgressRegressed) {
		return nil
	}
	return err
}

// EventPublisher is the slice of the websocket hub the sink needs.
type EventPublisher interface {
	Publish(event models.ProgressEvent)
}

// HubSink mirrors progress to the live websocket feed. Best effort: it never
// returns an error and never blocks the pipeline.
type HubSink struct {
	hub EventPublisher
}

func NewHubSink(hub EventPublisher) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Report(ctx context.Context, jobID uuid.UUID, progress float64, message string) error {
	s.hub.Publish(models.ProgressEvent{
		JobID:    jobID,
		Status:   models.JobStatusProcessing,
		Progress: progress,
		Message:  message,
	})
	return nil
}

// MultiSink fans a report out to several sinks in order, stopping at the
// first error. Put the store sink first so a refused update (the job went
// terminal) also keeps the stale report off the websocket feed.
type MultiSink []ProgressSink

func (m MultiSink) Report(ctx context.Context, jobID uuid.UUID, progress float64, message string) error {
	for _, sink := range m {
		if err := sink.Report(ctx, jobID, progress, message); err != nil {
			return err
		}
	}
	return nil
}
