package processor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// Options configures processing behavior.
type Options struct {
	// AckGenerationErrors treats a failed generation as processed: the job
	// record carries the error state and a manual regenerate retries it.
	// When false the failure propagates so the transport redelivers.
	AckGenerationErrors bool

	// MaxRetries bounds redelivery processing per jobId.
	MaxRetries int

	// GenerationTimeout bounds a single generator call.
	GenerationTimeout time.Duration
}

// Processor is the top-level pipeline: normalize, reconcile, generate,
// persist. It implements interfaces.MessageProcessor.
type Processor struct {
	normalizer *Normalizer
	reconciler *Reconciler
	generator  interfaces.ContentGenerator
	jobs       interfaces.JobStorage
	artifacts  interfaces.ArtifactStorage
	blobs      interfaces.BlobStorage
	opts       Options
	logger     arbor.ILogger
	now        func() time.Time
}

// NewProcessor creates a Processor. blobs may be nil when attachment
// offloading is disabled.
func NewProcessor(
	generator interfaces.ContentGenerator,
	jobs interfaces.JobStorage,
	artifacts interfaces.ArtifactStorage,
	blobs interfaces.BlobStorage,
	opts Options,
	logger arbor.ILogger,
) *Processor {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 5 * time.Minute
	}

	return &Processor{
		normalizer: NewNormalizer(),
		reconciler: NewReconciler(jobs, artifacts, opts.MaxRetries, logger),
		generator:  generator,
		jobs:       jobs,
		artifacts:  artifacts,
		blobs:      blobs,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the processor's and reconciler's clock. Used by tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	p.reconciler.WithClock(now)
	return p
}

// Process runs the full pipeline on a raw inbound message and returns the
// jobId of the durable job record.
func (p *Processor) Process(ctx context.Context, raw []byte) (string, error) {
	msg, err := p.normalizer.Normalize(raw)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to normalize inbound message")
		return "", err
	}

	log := p.logger.WithCorrelationId(msg.JobID)
	log.Info().
		Str("job_id", msg.JobID).
		Str("action", string(msg.Action)).
		Msg("Processing message")

	if err := p.offloadAttachments(ctx, msg); err != nil {
		log.Warn().Err(err).Str("job_id", msg.JobID).Msg("Attachment offload failed, continuing with inline data")
	}

	job, err := p.reconciler.Reconcile(ctx, msg)
	if err != nil {
		return msg.JobID, err
	}

	switch job.Halt {
	case HaltPermanentlyFailed:
		// Already dead, nothing more to do; ack the delivery
		return msg.JobID, nil
	case HaltRetriesExhausted:
		return msg.JobID, p.markFailedPermanently(ctx, job.Record)
	}

	if msg.Action == models.ActionDeleted {
		return msg.JobID, p.completeWithoutGeneration(ctx, job.Record)
	}

	return msg.JobID, p.generateAndPersist(ctx, msg, job, log)
}

// generateAndPersist runs the AI call and drives the two-phase write:
// artifact first, then the job record's terminal update.
func (p *Processor) generateAndPersist(ctx context.Context, msg *models.JobMessage, job *ReconciledJob, log arbor.ILogger) error {
	record := job.Record

	genCtx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
	defer cancel()

	start := p.now()
	generated, genErr := p.generator.Generate(genCtx, record.Payload, p.generationContext(msg, job))
	if genErr == nil && strings.TrimSpace(generated) == "" {
		genErr = fmt.Errorf("generator returned empty content")
	}

	if genErr != nil {
		log.Error().Err(genErr).
			Str("job_id", record.JobID).
			Dur("duration", p.now().Sub(start)).
			Msg("Generation failed")

		// The job record carries the failure; the prior artifact, if any,
		// stays untouched.
		record.MarkError(genErr.Error(), p.iso())
		if err := p.jobs.Update(ctx, record); err != nil {
			return &models.PersistenceError{Op: "update job", Err: err}
		}

		if p.opts.AckGenerationErrors {
			return nil
		}
		return &models.GenerationError{JobID: record.JobID, Err: genErr}
	}

	log.Info().
		Str("job_id", record.JobID).
		Dur("duration", p.now().Sub(start)).
		Int("length", len(generated)).
		Msg("Generation succeeded")

	artifact := p.buildArtifact(record, job, generated)
	if err := p.artifacts.Save(ctx, artifact); err != nil {
		return &models.PersistenceError{Op: "save artifact", Err: err}
	}

	record.GeneratedContent = generated
	record.Sections = artifact.Sections
	record.MarkCompleted(record.JobID, p.iso())
	if err := p.jobs.Update(ctx, record); err != nil {
		// Dangling artifact with a processing-state record; redelivery
		// re-derives the artifact and retries this update.
		return &models.PersistenceError{Op: "update job", Err: err}
	}

	return nil
}

// buildArtifact constructs the artifact record carried forward from the
// reconciled payload.
func (p *Processor) buildArtifact(record *models.JobRecord, job *ReconciledJob, generated string) *models.ArtifactRecord {
	artifact := &models.ArtifactRecord{
		SourceJobID:      record.JobID,
		Title:            record.Payload.Title,
		OriginalContent:  record.Payload.OriginalContent,
		Keywords:         record.Payload.Keywords,
		Focus:            record.Payload.Focus,
		GeneratedContent: generated,
		GeneratedAt:      p.iso(),
		State:            models.ArtifactStateGenerated,
	}
	if artifact.OriginalContent == "" {
		artifact.OriginalContent = record.Payload.Content
	}
	if job.PreviousGeneration != nil {
		artifact.PreviousGeneration = job.PreviousGeneration
	}
	if sections, ok := models.ParseSections(generated); ok {
		artifact.Sections = sections
	}
	return artifact
}

// completeWithoutGeneration closes out a delete action: no generator call,
// no artifact write.
func (p *Processor) completeWithoutGeneration(ctx context.Context, record *models.JobRecord) error {
	record.State = models.JobStateCompleted
	record.CompletedAt = p.iso()
	record.Note = "no generation required"
	if err := p.jobs.Update(ctx, record); err != nil {
		return &models.PersistenceError{Op: "update job", Err: err}
	}
	p.logger.Info().Str("job_id", record.JobID).Msg("Delete processed, generation skipped")
	return nil
}

func (p *Processor) markFailedPermanently(ctx context.Context, record *models.JobRecord) error {
	record.MarkFailedPermanently(
		fmt.Sprintf("retry budget exhausted after %d deliveries", record.RetryCount),
		p.iso(),
	)
	if err := p.jobs.Update(ctx, record); err != nil {
		return &models.PersistenceError{Op: "update job", Err: err}
	}
	return nil
}

// generationContext builds the free-form context string handed to the
// generator alongside the payload.
func (p *Processor) generationContext(msg *models.JobMessage, job *ReconciledJob) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("action=%s", msg.Action))
	if msg.Timestamp > 0 {
		parts = append(parts, fmt.Sprintf("submitted=%s", time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339)))
	}
	if msg.Action == models.ActionRegenerate {
		parts = append(parts, fmt.Sprintf("regeneration attempt %d", job.Record.RegenerationAttempt))
		if job.Record.Payload.Feedback != "" {
			parts = append(parts, "feedback provided")
		}
		if job.PreviousGeneration != nil {
			parts = append(parts, fmt.Sprintf("previous generation at %s", job.PreviousGeneration.GeneratedAt))
		}
	}
	return strings.Join(parts, ", ")
}

// offloadAttachments uploads inline attachment data to blob storage and
// swaps it for a URL. A nil blob store or upload failure leaves the inline
// data in place.
func (p *Processor) offloadAttachments(ctx context.Context, msg *models.JobMessage) error {
	if p.blobs == nil {
		return nil
	}

	for i := range msg.Payload.Attachments {
		att := &msg.Payload.Attachments[i]
		if att.Data == "" || att.URL != "" {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			return fmt.Errorf("attachment %s is not valid base64: %w", att.Filename, err)
		}

		url, err := p.blobs.Upload(ctx, att.Filename, data)
		if err != nil {
			return fmt.Errorf("failed to upload attachment %s: %w", att.Filename, err)
		}

		att.URL = url
		att.Data = ""
	}

	return nil
}

func (p *Processor) iso() string {
	return p.now().UTC().Format(time.RFC3339)
}
