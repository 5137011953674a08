package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/scribo/internal/models"
)

// JobListOptions filters and paginates job record listings.
type JobListOptions struct {
	State  models.JobState
	Limit  int
	Offset int
}

// JobStorage persists job bookkeeping records, one per jobId.
type JobStorage interface {
	// Save upserts a record under its JobID.
	Save(ctx context.Context, record *models.JobRecord) error

	// Get returns the record for a jobId, or models.ErrNotFound.
	Get(ctx context.Context, jobID string) (*models.JobRecord, error)

	// Update upserts an existing record (same semantics as Save).
	Update(ctx context.Context, record *models.JobRecord) error

	// List returns records matching the options, newest first.
	List(ctx context.Context, opts *JobListOptions) ([]*models.JobRecord, error)

	// ListStuck returns records still in processing whose last update is
	// older than the threshold. Used by the maintenance sweep.
	ListStuck(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, jobID string) error
}

// ArtifactStorage persists generated artifacts, keyed by the source job's id.
type ArtifactStorage interface {
	// Save upserts an artifact under its SourceJobID, overwriting any prior
	// generation for the same job.
	Save(ctx context.Context, artifact *models.ArtifactRecord) error

	// Get returns the artifact for a jobId, or models.ErrNotFound.
	Get(ctx context.Context, jobID string) (*models.ArtifactRecord, error)

	// Delete removes an artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, jobID string) error
}

// KeyValueStorage holds generic string key/value pairs (API keys, settings).
type KeyValueStorage interface {
	// Get retrieves a value by key, returns models.ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or updates a key/value pair.
	Set(ctx context.Context, key, value string) error

	// GetAll returns all pairs as a map.
	GetAll(ctx context.Context) (map[string]string, error)
}
