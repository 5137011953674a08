package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArtifactStorage implements the ArtifactStorage interface for Badger.
// Artifacts are keyed by the source job's id; a regeneration for the same
// job overwrites the prior artifact in place.
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArtifactStorage) Save(ctx context.Context, artifact *models.ArtifactRecord) error {
	if artifact.SourceJobID == "" {
		return fmt.Errorf("source job ID is required")
	}

	now := time.Now()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now

	s.logger.Trace().
		Str("job_id", artifact.SourceJobID).
		Str("state", string(artifact.State)).
		Msg("BadgerDB: Upserting ArtifactRecord")

	if err := s.db.Store().Upsert(artifact.SourceJobID, *artifact); err != nil {
		s.logger.Error().Err(err).Str("job_id", artifact.SourceJobID).Msg("BadgerDB: Failed to upsert ArtifactRecord")
		return fmt.Errorf("failed to save artifact: %w", err)
	}

	return nil
}

func (s *ArtifactStorage) Get(ctx context.Context, jobID string) (*models.ArtifactRecord, error) {
	var artifact models.ArtifactRecord
	if err := s.db.Store().Get(jobID, &artifact); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrNotFound
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("BadgerDB: Failed to get ArtifactRecord")
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

func (s *ArtifactStorage) Delete(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.ArtifactRecord{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
