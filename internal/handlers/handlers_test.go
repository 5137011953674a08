package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/queue"
)

// stubProcessor records the raw bytes it was handed and returns canned results.
type stubProcessor struct {
	lastRaw    []byte
	lastCtxErr error
	jobID      string
	err        error
}

func (s *stubProcessor) Process(ctx context.Context, raw []byte) (string, error) {
	s.lastRaw = raw
	s.lastCtxErr = ctx.Err()
	return s.jobID, s.err
}

// memJobs is a map-backed JobStorage for handler tests.
type memJobs struct {
	records map[string]*models.JobRecord
}

func newMemJobs() *memJobs {
	return &memJobs{records: make(map[string]*models.JobRecord)}
}

func (m *memJobs) Save(ctx context.Context, record *models.JobRecord) error {
	m.records[record.JobID] = record
	return nil
}

func (m *memJobs) Get(ctx context.Context, jobID string) (*models.JobRecord, error) {
	record, ok := m.records[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return record, nil
}

func (m *memJobs) Update(ctx context.Context, record *models.JobRecord) error {
	return m.Save(ctx, record)
}

func (m *memJobs) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.JobRecord, error) {
	var out []*models.JobRecord
	for _, record := range m.records {
		if opts != nil && opts.State != "" && record.State != opts.State {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (m *memJobs) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	return nil, nil
}

func (m *memJobs) Delete(ctx context.Context, jobID string) error {
	delete(m.records, jobID)
	return nil
}

// memArtifacts is a map-backed ArtifactStorage for handler tests.
type memArtifacts struct {
	records map[string]*models.ArtifactRecord
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{records: make(map[string]*models.ArtifactRecord)}
}

func (m *memArtifacts) Save(ctx context.Context, artifact *models.ArtifactRecord) error {
	m.records[artifact.SourceJobID] = artifact
	return nil
}

func (m *memArtifacts) Get(ctx context.Context, jobID string) (*models.ArtifactRecord, error) {
	artifact, ok := m.records[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return artifact, nil
}

func (m *memArtifacts) Delete(ctx context.Context, jobID string) error {
	delete(m.records, jobID)
	return nil
}

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestPushHandlerAcksSuccess(t *testing.T) {
	proc := &stubProcessor{jobID: "job_1"}
	handler := NewPushHandler(proc, true, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(`{"jobId":"job_1"}`))
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.JSONEq(t, `{"jobId":"job_1"}`, string(proc.lastRaw))
}

func TestPushHandlerUnwrapsEnvelope(t *testing.T) {
	proc := &stubProcessor{jobID: "job_1"}
	handler := NewPushHandler(proc, true, testLogger())

	body := `{"message":{"data":"eyJ9"},"subscription":"projects/p/subscriptions/s"}`
	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	// The processor sees the inner message, not the transport envelope
	assert.JSONEq(t, `{"data":"eyJ9"}`, string(proc.lastRaw))
}

func TestPushHandlerMalformedDroppedWhenAcking(t *testing.T) {
	proc := &stubProcessor{err: &models.MalformedInputError{Stage: "unknown"}}
	handler := NewPushHandler(proc, true, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dropped", resp["status"])
}

func TestPushHandlerMalformedRejectedWhenNotAcking(t *testing.T) {
	proc := &stubProcessor{err: &models.MalformedInputError{Stage: "unknown"}}
	handler := NewPushHandler(proc, false, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPushHandlerNacksProcessingFailure(t *testing.T) {
	proc := &stubProcessor{jobID: "job_1", err: errors.New("store unavailable")}
	handler := NewPushHandler(proc, true, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(`{"jobId":"job_1"}`))
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPushHandlerDetachesFromRequestContext(t *testing.T) {
	proc := &stubProcessor{jobID: "job_1"}
	handler := NewPushHandler(proc, true, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(`{"jobId":"job_1"}`))
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	// A dropped connection must not cancel an in-flight generation pass
	assert.NoError(t, proc.lastCtxErr)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPushHandlerRejectsGet(t *testing.T) {
	handler := NewPushHandler(&stubProcessor{}, true, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/pubsub/push", nil)
	rec := httptest.NewRecorder()

	handler.PushHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func openTestManager(t *testing.T) *queue.Manager {
	t.Helper()

	dir, err := os.MkdirTemp("", "scribo-handler-queue-*")
	require.NoError(t, err)

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})

	manager, err := queue.NewManager(db, "test_jobs", time.Minute, 3)
	require.NoError(t, err)
	return manager
}

func TestSubmitJobEnqueuesRawBody(t *testing.T) {
	manager := openTestManager(t)
	handler := NewJobHandler(newMemJobs(), manager, testLogger())

	body := `{"jobId":"abc","action":"created","payload":{"id":"abc","title":"T"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.JobsHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.NotEmpty(t, resp["messageId"])

	msg, err := manager.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, body, string(msg.Body))
}

func TestSubmitJobRejectsEmptyBody(t *testing.T) {
	manager := openTestManager(t)
	handler := NewJobHandler(newMemJobs(), manager, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(""))
	rec := httptest.NewRecorder()

	handler.JobsHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsFiltersByState(t *testing.T) {
	jobs := newMemJobs()
	jobs.Save(context.Background(), &models.JobRecord{JobID: "a", State: models.JobStateCompleted})
	jobs.Save(context.Background(), &models.JobRecord{JobID: "b", State: models.JobStateProcessing})

	handler := NewJobHandler(jobs, openTestManager(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?state=completed", nil)
	rec := httptest.NewRecorder()

	handler.JobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []*models.JobRecord `json:"jobs"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "a", resp.Jobs[0].JobID)
}

func TestJobByIDHandler(t *testing.T) {
	jobs := newMemJobs()
	jobs.Save(context.Background(), &models.JobRecord{JobID: "job_1", State: models.JobStateCompleted})

	handler := NewJobHandler(jobs, openTestManager(t), testLogger())

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"existing job", "/api/jobs/job_1", http.StatusOK},
		{"missing job", "/api/jobs/nope", http.StatusNotFound},
		{"empty id", "/api/jobs/", http.StatusBadRequest},
		{"nested path", "/api/jobs/job_1/extra", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.JobByIDHandler(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestArtifactByIDHandler(t *testing.T) {
	artifacts := newMemArtifacts()
	artifacts.Save(context.Background(), &models.ArtifactRecord{
		SourceJobID:      "job_1",
		Title:            "Generated title",
		GeneratedContent: "body",
	})

	handler := NewArtifactHandler(artifacts, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts/job_1", nil)
	rec := httptest.NewRecorder()

	handler.ArtifactByIDHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var artifact models.ArtifactRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
	assert.Equal(t, "Generated title", artifact.Title)

	req = httptest.NewRequest(http.MethodGet, "/api/artifacts/missing", nil)
	rec = httptest.NewRecorder()

	handler.ArtifactByIDHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndVersionHandlers(t *testing.T) {
	handler := NewAPIHandler(testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.HealthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	req = httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec = httptest.NewRecorder()
	handler.VersionHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var version map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.NotEmpty(t, version["version"])
}
