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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Save(ctx context.Context, record *models.JobRecord) error {
	if record.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	s.logger.Trace().
		Str("job_id", record.JobID).
		Str("state", string(record.State)).
		Msg("BadgerDB: Upserting JobRecord")

	// IMPORTANT: Dereference pointer to ensure consistent type with Find
	// operations. BadgerHold uses type name for key prefix; storing
	// *JobRecord vs JobRecord creates different prefixes.
	if err := s.db.Store().Upsert(record.JobID, *record); err != nil {
		s.logger.Error().Err(err).Str("job_id", record.JobID).Msg("BadgerDB: Failed to upsert JobRecord")
		return fmt.Errorf("failed to save job record: %w", err)
	}

	return nil
}

func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := s.db.Store().Get(jobID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrNotFound
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("BadgerDB: Failed to get JobRecord")
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return &record, nil
}

func (s *JobStorage) Update(ctx context.Context, record *models.JobRecord) error {
	return s.Save(ctx, record)
}

func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.JobRecord, error) {
	// Fetch all records and filter in memory. The record count stays small
	// enough that a typed query buys nothing here.
	var records []models.JobRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	var result []*models.JobRecord
	for i := range records {
		if opts != nil && opts.State != "" && records[i].State != opts.State {
			continue
		}
		result = append(result, &records[i])
	}

	// Newest first
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(result) {
				return []*models.JobRecord{}, nil
			}
			result = result[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(result) {
			result = result[:opts.Limit]
		}
	}

	return result, nil
}

func (s *JobStorage) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	var records []models.JobRecord
	err := s.db.Store().Find(&records, badgerhold.Where("State").Eq(models.JobStateProcessing))
	if err != nil {
		return nil, fmt.Errorf("failed to find processing records: %w", err)
	}

	var result []*models.JobRecord
	for i := range records {
		if records[i].UpdatedAt.Before(olderThan) {
			result = append(result, &records[i])
		}
	}

	return result, nil
}

func (s *JobStorage) Delete(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.JobRecord{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete job record: %w", err)
	}
	return nil
}
