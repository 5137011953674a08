package processor

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// HaltReason tells the orchestrator to stop before generation.
type HaltReason string

const (
	// HaltNone means processing continues normally
	HaltNone HaltReason = ""
	// HaltPermanentlyFailed means the record is already dead; ack and skip
	HaltPermanentlyFailed HaltReason = "permanently_failed"
	// HaltRetriesExhausted means this delivery pushed the record past its
	// retry budget; the orchestrator marks it permanently failed
	HaltRetriesExhausted HaltReason = "retries_exhausted"
)

// ReconciledJob is the reconciler's output: a job record ready for
// generation, plus transient regeneration context that is never persisted
// as-is.
type ReconciledJob struct {
	Record *models.JobRecord

	// PreviousGeneration snapshots the prior artifact's content for the
	// generation prompt; carried on the payload and the new artifact.
	PreviousGeneration *models.PreviousGeneration

	// PreviousTitle is the prior artifact's title, used only for backfill.
	PreviousTitle string

	Halt HaltReason
}

// virtualJobView is a job record synthesized from a surviving artifact when
// the job record itself was pruned. It exists only for merging and is a
// distinct type so it can never be persisted by accident.
type virtualJobView struct {
	artifactID string
	payload    models.JobPayload
}

// Reconciler merges an inbound message with any existing job record and
// prior artifact, builds regeneration lineage, and persists the initial
// processing-state upsert. It never calls the generator and never writes a
// terminal state.
type Reconciler struct {
	jobs       interfaces.JobStorage
	artifacts  interfaces.ArtifactStorage
	maxRetries int
	logger     arbor.ILogger
	now        func() time.Time
}

// NewReconciler creates a Reconciler
func NewReconciler(jobs interfaces.JobStorage, artifacts interfaces.ArtifactStorage, maxRetries int, logger arbor.ILogger) *Reconciler {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Reconciler{
		jobs:       jobs,
		artifacts:  artifacts,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the reconciler's clock. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile looks up prior state for the message's jobId, merges sources of
// truth, and upserts the record in processing state. Store read failures are
// non-fatal; reconciliation proceeds with whatever context is available.
func (r *Reconciler) Reconcile(ctx context.Context, msg *models.JobMessage) (*ReconciledJob, error) {
	now := r.now()

	existing, virtual := r.lookupExisting(ctx, msg.JobID)

	if existing != nil && existing.State == models.JobStateFailedPermanently && msg.Action != models.ActionRegenerate {
		r.logger.Warn().
			Str("job_id", msg.JobID).
			Msg("Record is permanently failed, skipping redelivery")
		return &ReconciledJob{Record: existing, Halt: HaltPermanentlyFailed}, nil
	}

	record := r.buildRecord(msg, existing, now)
	result := &ReconciledJob{Record: record}

	if msg.Action == models.ActionRegenerate {
		r.reconcileRegeneration(ctx, msg, existing, virtual, record, result, now)
	} else if existing != nil {
		if existing.Timestamp == msg.Timestamp && existing.State != models.JobStateCompleted {
			// Redelivery of the same message whose earlier pass did not
			// complete: count it against the retry budget.
			record.RetryCount = existing.RetryCount + 1
			if record.RetryCount > record.MaxRetries {
				r.logger.Warn().
					Str("job_id", msg.JobID).
					Int("retry_count", record.RetryCount).
					Int("max_retries", record.MaxRetries).
					Msg("Retry budget exhausted")
				result.Halt = HaltRetriesExhausted
				return result, nil
			}
		} else {
			// A fresh message for the same id starts a new delivery budget
			record.RetryCount = 0
		}
	}

	// Backfill a missing title last so regeneration merges get first say
	if record.Payload.Title == "" {
		record.Payload.Title = DeriveTitle(record.Payload, now)
	}

	if err := r.jobs.Save(ctx, record); err != nil {
		return nil, &models.PersistenceError{Op: "save job", Err: err}
	}

	return result, nil
}

// lookupExisting loads the job record for the id; when absent it falls back
// to the artifact under the same id, synthesizing a virtual view purely for
// merging. Store errors degrade to a nil result.
func (r *Reconciler) lookupExisting(ctx context.Context, jobID string) (*models.JobRecord, *virtualJobView) {
	existing, err := r.jobs.Get(ctx, jobID)
	if err == nil {
		return existing, nil
	}
	if err != models.ErrNotFound {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Job record lookup failed, continuing without it")
		return nil, nil
	}

	artifact, err := r.artifacts.Get(ctx, jobID)
	if err != nil {
		if err != models.ErrNotFound {
			r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Artifact fallback lookup failed, continuing without it")
		}
		return nil, nil
	}

	return nil, &virtualJobView{
		artifactID: jobID,
		payload: models.JobPayload{
			ID:              jobID,
			Title:           artifact.Title,
			OriginalContent: artifact.OriginalContent,
			Keywords:        artifact.Keywords,
			Focus:           artifact.Focus,
		},
	}
}

// buildRecord merges the inbound message onto the existing record. Terminal
// fields from the previous pass are cleared; lineage and bookkeeping survive.
func (r *Reconciler) buildRecord(msg *models.JobMessage, existing *models.JobRecord, now time.Time) *models.JobRecord {
	record := &models.JobRecord{
		JobID:      msg.JobID,
		Action:     msg.Action,
		Timestamp:  msg.Timestamp,
		ReceivedAt: now.UTC().Format(time.RFC3339),
		Payload:    msg.Payload.Clone(),
		State:      models.JobStateProcessing,
		MaxRetries: r.maxRetries,
	}

	if existing != nil {
		record.CreatedAt = existing.CreatedAt
		// The artifact link survives a new pass; completion overwrites it,
		// and a failed pass must not orphan the artifact it points at.
		record.ArtifactID = existing.ArtifactID
		record.PriorArtifactID = existing.PriorArtifactID
		record.RegenerationAttempt = existing.RegenerationAttempt
		record.RegenerationHistory = existing.RegenerationHistory
		record.RetryCount = existing.RetryCount
		if existing.MaxRetries > 0 {
			record.MaxRetries = existing.MaxRetries
		}
	}

	return record
}

// reconcileRegeneration fills the regeneration merge: prior artifact lineage,
// payload backfill from the original job then the prior artifact, and the
// history trail.
func (r *Reconciler) reconcileRegeneration(
	ctx context.Context,
	msg *models.JobMessage,
	existing *models.JobRecord,
	virtual *virtualJobView,
	record *models.JobRecord,
	result *ReconciledJob,
	now time.Time,
) {
	// A regenerate request starts a fresh delivery budget
	record.RetryCount = 0

	var originalPayload *models.JobPayload
	var priorArtifactID string

	switch {
	case existing != nil:
		originalPayload = &existing.Payload
		priorArtifactID = existing.ArtifactID
	case virtual != nil:
		originalPayload = &virtual.payload
		priorArtifactID = virtual.artifactID
	}

	// A failed pass can leave the record without its artifact link while the
	// artifact itself survives under the job's id, so fall back to that key.
	lookupID := priorArtifactID
	if lookupID == "" && existing != nil {
		lookupID = msg.JobID
	}

	var artifact *models.ArtifactRecord
	if lookupID != "" {
		var err error
		artifact, err = r.artifacts.Get(ctx, lookupID)
		if err != nil {
			// Lineage lookup failure never aborts a regeneration
			if err != models.ErrNotFound {
				r.logger.Warn().Err(err).
					Str("job_id", msg.JobID).
					Str("artifact_id", lookupID).
					Msg("Prior artifact lookup failed, regenerating with degraded context")
			}
			artifact = nil
		} else if priorArtifactID == "" {
			priorArtifactID = lookupID
		}
	}

	if originalPayload == nil {
		// Regeneration of nothing: record that and proceed as a first pass
		r.logger.Info().
			Str("job_id", msg.JobID).
			Msg("Regenerate requested but no previous version found")
		record.RegenerationAttempt = 1
		record.RegenerationHistory = []models.RegenerationEvent{{
			At:   now.UnixMilli(),
			Note: "no previous version found",
		}}
		return
	}

	// Only a found prior replaces the inherited lineage pointer; an empty id
	// must not erase it.
	if priorArtifactID != "" {
		record.PriorArtifactID = priorArtifactID
	}

	// Backfill: the original job's stored payload is the source of truth;
	// the prior artifact fills only what the job payload itself lacks.
	backfill := func(dst *string, fromJob, fromArtifact string) {
		if *dst != "" {
			return
		}
		if fromJob != "" {
			*dst = fromJob
			return
		}
		*dst = fromArtifact
	}

	var artTitle, artOriginal, artFocus string
	var artKeywords []string
	if artifact != nil {
		artTitle = artifact.Title
		artOriginal = artifact.OriginalContent
		artFocus = artifact.Focus
		artKeywords = artifact.Keywords
	}

	backfill(&record.Payload.Title, originalPayload.Title, artTitle)
	backfill(&record.Payload.OriginalContent, originalPayload.OriginalContent, artOriginal)
	backfill(&record.Payload.Focus, originalPayload.Focus, artFocus)
	if record.Payload.OriginalContent == "" {
		backfill(&record.Payload.OriginalContent, originalPayload.Content, "")
	}
	if len(record.Payload.Keywords) == 0 {
		if len(originalPayload.Keywords) > 0 {
			record.Payload.Keywords = append([]string(nil), originalPayload.Keywords...)
		} else if len(artKeywords) > 0 {
			record.Payload.Keywords = append([]string(nil), artKeywords...)
		}
	}

	if artifact != nil && artifact.GeneratedContent != "" {
		prev := &models.PreviousGeneration{
			Content:     artifact.GeneratedContent,
			GeneratedAt: artifact.GeneratedAt,
		}
		record.Payload.PreviousGeneration = prev
		result.PreviousGeneration = prev
		result.PreviousTitle = artifact.Title
	}

	event := models.RegenerationEvent{At: now.UnixMilli()}
	if priorArtifactID != "" {
		event.PriorArtifactID = priorArtifactID
	}
	record.RegenerationHistory = append(record.RegenerationHistory, event)
	record.RegenerationAttempt++
	if record.RegenerationAttempt < 1 {
		record.RegenerationAttempt = 1
	}
}
