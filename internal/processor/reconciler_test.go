package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/models"
)

func newTestReconciler(jobs *memJobStorage, artifacts *memArtifactStorage) *Reconciler {
	return NewReconciler(jobs, artifacts, 3, arbor.NewLogger()).
		WithClock(func() time.Time { return fixedTime })
}

func TestReconcileFreshCreate(t *testing.T) {
	jobs := newMemJobStorage()
	artifacts := newMemArtifactStorage()
	r := newTestReconciler(jobs, artifacts)

	msg := &models.JobMessage{
		JobID:     "job-1",
		Action:    models.ActionCreated,
		Timestamp: 1700000000000,
		Payload:   models.JobPayload{ID: "job-1", Title: "T", Content: "C"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, HaltNone, job.Halt)
	assert.Equal(t, models.JobStateProcessing, job.Record.State)
	assert.Zero(t, job.Record.RegenerationAttempt)
	assert.Zero(t, job.Record.RetryCount)

	// The processing upsert is persisted
	stored, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateProcessing, stored.State)
}

func TestReconcileBackfillsTitle(t *testing.T) {
	r := newTestReconciler(newMemJobStorage(), newMemArtifactStorage())

	msg := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionCreated,
		Payload: models.JobPayload{ID: "job-1", OriginalContent: "backfilled from content words"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "backfilled from content words...", job.Record.Payload.Title)
}

func TestReconcileRegenerateMergesFromJobThenArtifact(t *testing.T) {
	jobs := newMemJobStorage()
	artifacts := newMemArtifactStorage()
	r := newTestReconciler(jobs, artifacts)
	ctx := context.Background()

	// Completed first pass: job record holds the original payload, artifact
	// holds the generated content.
	jobs.records["job-1"] = models.JobRecord{
		JobID:      "job-1",
		Action:     models.ActionCreated,
		State:      models.JobStateCompleted,
		ArtifactID: "job-1",
		Payload: models.JobPayload{
			ID:       "job-1",
			Title:    "Original title",
			Content:  "original content",
			Keywords: []string{"k1", "k2"},
			Focus:    "original focus",
		},
	}
	artifacts.artifacts["job-1"] = models.ArtifactRecord{
		SourceJobID:      "job-1",
		Title:            "Artifact title",
		GeneratedContent: "the first article",
		GeneratedAt:      "2026-01-01T00:00:00Z",
		State:            models.ArtifactStateGenerated,
	}

	msg := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionRegenerate,
		Payload: models.JobPayload{ID: "job-1", Feedback: "make it punchier"},
	}

	job, err := r.Reconcile(ctx, msg)
	require.NoError(t, err)

	record := job.Record
	assert.Equal(t, "job-1", record.PriorArtifactID)
	assert.Equal(t, 1, record.RegenerationAttempt)
	require.Len(t, record.RegenerationHistory, 1)
	assert.Equal(t, "job-1", record.RegenerationHistory[0].PriorArtifactID)
	assert.Equal(t, fixedTime.UnixMilli(), record.RegenerationHistory[0].At)

	// Original job payload is the source of truth for backfill
	assert.Equal(t, "Original title", record.Payload.Title)
	assert.Equal(t, []string{"k1", "k2"}, record.Payload.Keywords)
	assert.Equal(t, "original focus", record.Payload.Focus)
	assert.Equal(t, "original content", record.Payload.OriginalContent)
	assert.Equal(t, "make it punchier", record.Payload.Feedback)

	// Prior artifact content is captured for the generation prompt
	require.NotNil(t, job.PreviousGeneration)
	assert.Equal(t, "the first article", job.PreviousGeneration.Content)
	assert.Equal(t, "2026-01-01T00:00:00Z", job.PreviousGeneration.GeneratedAt)
	require.NotNil(t, record.Payload.PreviousGeneration)
	assert.Equal(t, "the first article", record.Payload.PreviousGeneration.Content)
}

func TestReconcileRegenerateAttemptsMonotonic(t *testing.T) {
	jobs := newMemJobStorage()
	artifacts := newMemArtifactStorage()
	r := newTestReconciler(jobs, artifacts)
	ctx := context.Background()

	jobs.records["job-1"] = models.JobRecord{
		JobID:      "job-1",
		State:      models.JobStateCompleted,
		ArtifactID: "job-1",
		Payload:    models.JobPayload{ID: "job-1", Title: "T", Content: "C"},
	}

	for attempt := 1; attempt <= 3; attempt++ {
		msg := &models.JobMessage{
			JobID:   "job-1",
			Action:  models.ActionRegenerate,
			Payload: models.JobPayload{ID: "job-1"},
		}
		job, err := r.Reconcile(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, attempt, job.Record.RegenerationAttempt)
		assert.Len(t, job.Record.RegenerationHistory, attempt)

		// Simulate the orchestrator completing the pass
		job.Record.MarkCompleted("job-1", "2026-01-01T00:00:00Z")
		require.NoError(t, jobs.Update(ctx, job.Record))
	}
}

func TestReconcileRegenerateOfNothing(t *testing.T) {
	r := newTestReconciler(newMemJobStorage(), newMemArtifactStorage())

	msg := &models.JobMessage{
		JobID:   "ghost",
		Action:  models.ActionRegenerate,
		Payload: models.JobPayload{ID: "ghost", Content: "fresh content"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, 1, job.Record.RegenerationAttempt)
	require.Len(t, job.Record.RegenerationHistory, 1)
	assert.Equal(t, "no previous version found", job.Record.RegenerationHistory[0].Note)
	assert.Empty(t, job.Record.PriorArtifactID)
	assert.Nil(t, job.PreviousGeneration)
}

func TestReconcileVirtualViewFromSurvivingArtifact(t *testing.T) {
	jobs := newMemJobStorage()
	artifacts := newMemArtifactStorage()
	r := newTestReconciler(jobs, artifacts)

	// Job record pruned, artifact survives
	artifacts.artifacts["job-1"] = models.ArtifactRecord{
		SourceJobID:      "job-1",
		Title:            "Surviving title",
		OriginalContent:  "surviving content",
		Keywords:         []string{"kept"},
		Focus:            "kept focus",
		GeneratedContent: "prior article",
		GeneratedAt:      "2026-01-01T00:00:00Z",
		State:            models.ArtifactStateGenerated,
	}

	msg := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionRegenerate,
		Payload: models.JobPayload{ID: "job-1"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.Record.PriorArtifactID)
	assert.Equal(t, "Surviving title", job.Record.Payload.Title)
	assert.Equal(t, "surviving content", job.Record.Payload.OriginalContent)
	assert.Equal(t, []string{"kept"}, job.Record.Payload.Keywords)
	require.NotNil(t, job.PreviousGeneration)
	assert.Equal(t, "prior article", job.PreviousGeneration.Content)

	// The synthesized view is never persisted as a job record; only the new
	// processing record exists.
	stored, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateProcessing, stored.State)
}

func TestReconcileRegenerateRecoversArtifactLinkAfterError(t *testing.T) {
	jobs := newMemJobStorage()
	artifacts := newMemArtifactStorage()
	r := newTestReconciler(jobs, artifacts)

	// An errored record without its artifact link, while the artifact
	// survives under the job's id.
	jobs.records["job-1"] = models.JobRecord{
		JobID:        "job-1",
		State:        models.JobStateError,
		ErrorMessage: "model unavailable",
		Payload:      models.JobPayload{ID: "job-1", Title: "T", Content: "C"},
	}
	artifacts.artifacts["job-1"] = models.ArtifactRecord{
		SourceJobID:      "job-1",
		Title:            "T",
		GeneratedContent: "the surviving article",
		GeneratedAt:      "2026-01-01T00:00:00Z",
		State:            models.ArtifactStateGenerated,
	}

	msg := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionRegenerate,
		Payload: models.JobPayload{ID: "job-1"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.Record.PriorArtifactID)
	require.Len(t, job.Record.RegenerationHistory, 1)
	assert.Equal(t, "job-1", job.Record.RegenerationHistory[0].PriorArtifactID)
	require.NotNil(t, job.PreviousGeneration)
	assert.Equal(t, "the surviving article", job.PreviousGeneration.Content)
}

func TestReconcileLineageLookupFailureIsNonFatal(t *testing.T) {
	jobs := newMemJobStorage()
	artifacts := newMemArtifactStorage()
	r := newTestReconciler(jobs, artifacts)

	jobs.records["job-1"] = models.JobRecord{
		JobID:      "job-1",
		State:      models.JobStateCompleted,
		ArtifactID: "job-1",
		Payload:    models.JobPayload{ID: "job-1", Title: "T", Content: "C"},
	}
	artifacts.failOn = "get"

	msg := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionRegenerate,
		Payload: models.JobPayload{ID: "job-1"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err, "lineage lookup failure must not abort regeneration")
	assert.Equal(t, 1, job.Record.RegenerationAttempt)
	assert.Equal(t, "T", job.Record.Payload.Title)
	assert.Nil(t, job.PreviousGeneration)
}

func TestReconcileRetryBudget(t *testing.T) {
	jobs := newMemJobStorage()
	r := newTestReconciler(jobs, newMemArtifactStorage())
	ctx := context.Background()

	msg := &models.JobMessage{
		JobID:     "job-1",
		Action:    models.ActionCreated,
		Timestamp: 42,
		Payload:   models.JobPayload{ID: "job-1", Content: "C"},
	}

	// First delivery
	job, err := r.Reconcile(ctx, msg)
	require.NoError(t, err)
	assert.Zero(t, job.Record.RetryCount)

	// Redeliveries of the same message while not completed
	for i := 1; i <= 3; i++ {
		job, err = r.Reconcile(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, HaltNone, job.Halt)
		assert.Equal(t, i, job.Record.RetryCount)
	}

	// Budget exhausted on the next redelivery
	job, err = r.Reconcile(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, HaltRetriesExhausted, job.Halt)
}

func TestReconcileNewMessageResetsBudget(t *testing.T) {
	jobs := newMemJobStorage()
	r := newTestReconciler(jobs, newMemArtifactStorage())
	ctx := context.Background()

	jobs.records["job-1"] = models.JobRecord{
		JobID:      "job-1",
		State:      models.JobStateError,
		Timestamp:  100,
		RetryCount: 3,
		MaxRetries: 3,
		Payload:    models.JobPayload{ID: "job-1", Content: "C"},
	}

	// A later update message carries a new timestamp
	msg := &models.JobMessage{
		JobID:     "job-1",
		Action:    models.ActionUpdated,
		Timestamp: 200,
		Payload:   models.JobPayload{ID: "job-1", Content: "C2"},
	}

	job, err := r.Reconcile(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, HaltNone, job.Halt)
	assert.Zero(t, job.Record.RetryCount)
}

func TestReconcilePermanentlyFailedHalts(t *testing.T) {
	jobs := newMemJobStorage()
	r := newTestReconciler(jobs, newMemArtifactStorage())

	jobs.records["job-1"] = models.JobRecord{
		JobID:   "job-1",
		State:   models.JobStateFailedPermanently,
		Payload: models.JobPayload{ID: "job-1"},
	}

	msg := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionCreated,
		Payload: models.JobPayload{ID: "job-1"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, HaltPermanentlyFailed, job.Halt)

	// Regenerate is still allowed to revive a dead record
	regen := &models.JobMessage{
		JobID:   "job-1",
		Action:  models.ActionRegenerate,
		Payload: models.JobPayload{ID: "job-1", Content: "retry me"},
	}
	job, err = r.Reconcile(context.Background(), regen)
	require.NoError(t, err)
	assert.Equal(t, HaltNone, job.Halt)
	assert.Zero(t, job.Record.RetryCount)
}

func TestReconcileClearsTerminalFields(t *testing.T) {
	jobs := newMemJobStorage()
	r := newTestReconciler(jobs, newMemArtifactStorage())

	jobs.records["job-1"] = models.JobRecord{
		JobID:        "job-1",
		State:        models.JobStateError,
		ErrorMessage: "old failure",
		ErrorAt:      "2026-01-01T00:00:00Z",
		Payload:      models.JobPayload{ID: "job-1", Title: "T", Content: "C"},
	}

	msg := &models.JobMessage{
		JobID:     "job-1",
		Action:    models.ActionUpdated,
		Timestamp: 500,
		Payload:   models.JobPayload{ID: "job-1", Title: "T2", Content: "C2"},
	}

	job, err := r.Reconcile(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateProcessing, job.Record.State)
	assert.Empty(t, job.Record.ErrorMessage)
	assert.Empty(t, job.Record.ErrorAt)
	assert.Equal(t, "T2", job.Record.Payload.Title)
}
