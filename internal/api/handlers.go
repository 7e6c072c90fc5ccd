package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
	"github.com/voxreel/voxreel/internal/queue"
	"github.com/voxreel/voxreel/internal/scenes"
)

// WSHub is the slice of the websocket hub the API needs.
type WSHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

type Handler struct {
	store      jobs.Store
	queue      queue.Queue
	hub        WSHub
	validate   *validator.Validate
	sceneOpts  scenes.Options
	maxRetries int
	logger     *slog.Logger
}

func NewHandler(store jobs.Store, q queue.Queue, hub WSHub, sceneOpts scenes.Options, maxRetries int, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		queue:      q,
		hub:        hub,
		validate:   validator.New(),
		sceneOpts:  sceneOpts,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// CreateJob handles POST /v1/jobs. Accepted jobs return 202 with an upfront
// duration estimate; no external provider is touched on this path.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Set defaults before validation
	if req.Priority == 0 {
		req.Priority = 5
	}

	if err := h.validate.Struct(&req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			respondError(w, http.StatusBadRequest, "Validation failed on field '"+vErrs[0].Field()+"'")
			return
		}
		respondError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	maxRetries := h.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	job, err := h.store.Create(r.Context(), jobs.JobSpec{
		OwnerID:        req.OwnerID,
		NarrationText:  req.NarrationText,
		Language:       req.Language,
		VoiceProfileID: req.VoiceProfileID,
		Priority:       req.Priority,
		MaxRetries:     maxRetries,
	})
	if err != nil {
		var vErr *jobs.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		h.logger.Error("failed to create job", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	env := &queue.Envelope{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Priority:   job.Priority,
		EnqueuedAt: time.Now(),
	}
	if err := h.queue.Enqueue(r.Context(), env); err != nil {
		h.logger.Error("failed to enqueue job", "job_id", job.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateJobResponse{
		JobID:             job.ID,
		Status:            job.Status,
		EstimatedDuration: scenes.EstimateTotal(job.NarrationText, h.sceneOpts),
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("failed to load job", "job_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs with owner_id, status, limit, offset filters.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.ListFilter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   parseIntParam(r, "limit", 50),
		Offset:  parseIntParam(r, "offset", 0),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.JobStatus(raw)
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		filter.Status = &status
	}

	list, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:   list,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// CancelJob handles POST /v1/jobs/{id}/cancel. Cancelling a job that already
// reached a terminal state is a conflict, not an idempotent no-op.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.store.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respondError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, jobs.ErrAlreadyTerminal):
			respondError(w, http.StatusConflict, "already_terminal")
		default:
			h.logger.Error("failed to cancel job", "job_id", id, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to cancel job")
		}
		return
	}

	job, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": string(models.JobStatusCancelled)})
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// ServeWS handles GET /v1/ws, upgrading to the live progress feed.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

// Health handles GET /health and reports queue depth per lane.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	laneDepths := make(map[string]int64, 3)
	for _, lane := range queue.Lanes() {
		n, err := h.queue.Len(r.Context(), lane)
		if err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "queue unreachable",
			})
			return
		}
		laneDepths[string(lane)] = n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"queues":     laneDepths,
		"ws_clients": h.hub.ClientCount(),
	})
}

// Helper methods

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
