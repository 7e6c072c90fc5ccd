package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/models"
	"github.com/voxreel/voxreel/internal/queue"
	"github.com/voxreel/voxreel/internal/scenes"
)

type stubHub struct{ clients int }

func (s *stubHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (s *stubHub) ClientCount() int { return s.clients }

type apiFixture struct {
	store  *jobs.MemoryStore
	queue  *queue.MemoryQueue
	router http.Handler
}

func newAPIFixture(t *testing.T, routerCfg RouterConfig) *apiFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	f := &apiFixture{
		store: jobs.NewMemoryStore(logger),
		queue: queue.NewMemoryQueue(16),
	}

	h := NewHandler(f.store, f.queue, &stubHub{}, scenes.Options{}, 3, logger)
	f.router = NewRouter(h, routerCfg)
	return f
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validCreateBody() models.CreateJobRequest {
	return models.CreateJobRequest{
		OwnerID:       "owner-1",
		NarrationText: "A story about the sea.\n\nAnd the ships that sail it.",
		Priority:      5,
	}
}

func TestCreateJobAccepted(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	rec := postJSON(t, f.router, "/v1/jobs", validCreateBody())

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp models.CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.JobStatusPending, resp.Status)
	assert.Greater(t, resp.EstimatedDuration, 0.0)

	// The job is queued on its priority lane.
	env, err := f.queue.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, resp.JobID, env.JobID)
	assert.Equal(t, 5, env.Priority)
}

func TestCreateJobValidation(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	tests := []struct {
		name   string
		mutate func(*models.CreateJobRequest)
	}{
		{"missing owner", func(r *models.CreateJobRequest) { r.OwnerID = "" }},
		{"missing narration", func(r *models.CreateJobRequest) { r.NarrationText = "" }},
		{"priority too high", func(r *models.CreateJobRequest) { r.Priority = 11 }},
		{"priority negative", func(r *models.CreateJobRequest) { r.Priority = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validCreateBody()
			tt.mutate(&body)
			rec := postJSON(t, f.router, "/v1/jobs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateJobDefaultPriority(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	body := validCreateBody()
	body.Priority = 0
	rec := postJSON(t, f.router, "/v1/jobs", body)

	require.Equal(t, http.StatusAccepted, rec.Code)

	env, err := f.queue.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, 5, env.Priority)
}

func TestGetJob(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	rec := postJSON(t, f.router, "/v1/jobs", validCreateBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created models.CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = get(t, f.router, "/v1/jobs/"+created.JobID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, created.JobID, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestGetJobNotFound(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	rec := get(t, f.router, "/v1/jobs/00000000-0000-0000-0000-000000000001")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, f.router, "/v1/jobs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsFilters(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	for i := 0; i < 3; i++ {
		rec := postJSON(t, f.router, "/v1/jobs", validCreateBody())
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	other := validCreateBody()
	other.OwnerID = "owner-2"
	require.Equal(t, http.StatusAccepted, postJSON(t, f.router, "/v1/jobs", other).Code)

	rec := get(t, f.router, "/v1/jobs?owner_id=owner-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ListJobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Jobs, 3)

	rec = get(t, f.router, "/v1/jobs?owner_id=owner-1&limit=2")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Jobs, 2)

	rec = get(t, f.router, "/v1/jobs?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	rec := postJSON(t, f.router, "/v1/jobs", validCreateBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created models.CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = postJSON(t, f.router, "/v1/jobs/"+created.JobID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second cancel hits a terminal job and conflicts.
	rec = postJSON(t, f.router, "/v1/jobs/"+created.JobID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelJobNotFound(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	rec := postJSON(t, f.router, "/v1/jobs/00000000-0000-0000-0000-000000000001/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{BackendAPIKey: "secret"})

	// No key
	rec := get(t, f.router, "/v1/jobs")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Correct key via bearer token
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public
	rec = get(t, f.router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsQueueDepth(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	require.Equal(t, http.StatusAccepted, postJSON(t, f.router, "/v1/jobs", validCreateBody()).Code)

	rec := get(t, f.router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string           `json:"status"`
		Queues map[string]int64 `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Queues["queue:jobs:default"])
}
