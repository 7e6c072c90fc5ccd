package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusStarted    JobStatus = "started"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailure    JobStatus = "failure"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further status transitions are accepted.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailure, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusStarted, JobStatusProcessing,
		JobStatusSuccess, JobStatusFailure, JobStatusCancelled:
		return true
	}
	return false
}

// TransitionKind is the motion/transition applied to a scene's visual.
type TransitionKind string

const (
	TransitionZoomIn   TransitionKind = "zoom_in"
	TransitionZoomOut  TransitionKind = "zoom_out"
	TransitionPanLeft  TransitionKind = "pan_left"
	TransitionPanRight TransitionKind = "pan_right"
)

// transitionCycle is deterministic: a scene's motion is a pure function of its
// ordinal, so re-running a job produces the same artifact.
var transitionCycle = []TransitionKind{
	TransitionZoomIn,
	TransitionPanRight,
	TransitionZoomOut,
	TransitionPanLeft,
}

// TransitionForOrdinal returns the transition kind for a 1-based scene ordinal.
func TransitionForOrdinal(ordinal int) TransitionKind {
	if ordinal < 1 {
		ordinal = 1
	}
	return transitionCycle[(ordinal-1)%len(transitionCycle)]
}

// Models

// Job is one end-to-end request to produce a video artifact from narration text.
// Progress is non-decreasing while the status is non-terminal; Result and Error
// are only ever set on the terminal transition.
type Job struct {
	ID              uuid.UUID     `json:"id"`
	OwnerID         string        `json:"owner_id"`
	NarrationText   string        `json:"narration_text"`
	Language        string        `json:"language"`
	VoiceProfileID  string        `json:"voice_profile_id"`
	Priority        int           `json:"priority"` // 1-10, lower is more urgent
	Status          JobStatus     `json:"status"`
	Progress        float64       `json:"progress"` // 0.0-1.0
	ProgressMessage string        `json:"progress_message,omitempty"`
	Result          *RenderResult `json:"result,omitempty"`
	Error           *string       `json:"error,omitempty"`
	WorkerID        *string       `json:"worker_id,omitempty"`
	RetryCount      int           `json:"retry_count"`
	MaxRetries      int           `json:"max_retries"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// Scene is one ordered, time-bounded unit of narration + visual + audio.
// Scenes live entirely within one job's execution and are never persisted.
type Scene struct {
	ID               uuid.UUID      `json:"id"`
	JobID            uuid.UUID      `json:"job_id"`
	Ordinal          int            `json:"ordinal"` // 1-based, dense
	NarrationText    string         `json:"narration_text"`
	EstimatedSec     float64        `json:"estimated_duration_sec"`
	ResolvedAssetRef string         `json:"resolved_asset_ref,omitempty"`
	ResolvedAudioRef string         `json:"resolved_audio_ref,omitempty"`
	StartSec         float64        `json:"start_sec"`
	EndSec           float64        `json:"end_sec"`
	Transition       TransitionKind `json:"transition_kind"`
}

// CacheEntry records one resolved (query, provider class) pair. Entries are
// shared across jobs and outlive any single job up to their own TTL.
type CacheEntry struct {
	CacheKey       string    `json:"cache_key"`
	ResolvedPath   string    `json:"resolved_path"`
	SourceProvider string    `json:"source_provider"`
	FetchedAt      time.Time `json:"fetched_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has lapsed at the given instant.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// RenderResult is produced only by the composition engine on success and is
// immutable once attached to a job. Persisted as a jsonb column.
type RenderResult struct {
	ArtifactPath  string  `json:"artifact_path"`
	ThumbnailPath string  `json:"thumbnail_path"`
	DurationSec   float64 `json:"duration_sec"`
	SizeBytes     int64   `json:"size_bytes"`
	Resolution    string  `json:"resolution"` // e.g. "1080x1920"
}

func (r RenderResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RenderResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RenderResult", value)
	}
	return json.Unmarshal(bytes, r)
}

// DTOs for API requests and responses

type CreateJobRequest struct {
	OwnerID               string `json:"owner_id" validate:"required"`
	NarrationText         string `json:"narration_text" validate:"required"`
	Language              string `json:"language"`
	TargetDurationSeconds *int   `json:"target_duration_seconds,omitempty"`
	VoiceProfileID        string `json:"voice_profile_id"`
	Priority              int    `json:"priority" validate:"gte=1,lte=10"`
	MaxRetries            *int   `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
}

type CreateJobResponse struct {
	JobID             uuid.UUID `json:"job_id"`
	Status            JobStatus `json:"status"`
	EstimatedDuration float64   `json:"estimated_duration"`
}

type ListJobsResponse struct {
	Jobs   []Job `json:"jobs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ProgressEvent is what the websocket feed broadcasts per progress update.
type ProgressEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
}
