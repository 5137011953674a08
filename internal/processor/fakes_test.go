package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// memJobStorage is an in-memory JobStorage for tests
type memJobStorage struct {
	mu      sync.Mutex
	records map[string]models.JobRecord
	failOn  string // op name that should fail: "save", "update", "get"
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{records: make(map[string]models.JobRecord)}
}

func (s *memJobStorage) Save(ctx context.Context, record *models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "save" {
		return errors.New("save failed")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()
	s.records[record.JobID] = *record
	return nil
}

func (s *memJobStorage) Get(ctx context.Context, jobID string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "get" {
		return nil, errors.New("get failed")
	}
	record, ok := s.records[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &record, nil
}

func (s *memJobStorage) Update(ctx context.Context, record *models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "update" {
		return errors.New("update failed")
	}
	record.UpdatedAt = time.Now()
	s.records[record.JobID] = *record
	return nil
}

func (s *memJobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.JobRecord
	for id := range s.records {
		record := s.records[id]
		if opts != nil && opts.State != "" && record.State != opts.State {
			continue
		}
		result = append(result, &record)
	}
	return result, nil
}

func (s *memJobStorage) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.JobRecord
	for id := range s.records {
		record := s.records[id]
		if record.State == models.JobStateProcessing && record.UpdatedAt.Before(olderThan) {
			result = append(result, &record)
		}
	}
	return result, nil
}

func (s *memJobStorage) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jobID)
	return nil
}

// memArtifactStorage is an in-memory ArtifactStorage for tests
type memArtifactStorage struct {
	mu        sync.Mutex
	artifacts map[string]models.ArtifactRecord
	failOn    string
}

func newMemArtifactStorage() *memArtifactStorage {
	return &memArtifactStorage{artifacts: make(map[string]models.ArtifactRecord)}
}

func (s *memArtifactStorage) Save(ctx context.Context, artifact *models.ArtifactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "save" {
		return errors.New("artifact save failed")
	}
	s.artifacts[artifact.SourceJobID] = *artifact
	return nil
}

func (s *memArtifactStorage) Get(ctx context.Context, jobID string) (*models.ArtifactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "get" {
		return nil, errors.New("artifact get failed")
	}
	artifact, ok := s.artifacts[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &artifact, nil
}

func (s *memArtifactStorage) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, jobID)
	return nil
}

// fakeGenerator records calls and returns canned output
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	output  string
	err     error
	lastCtx string
	lastPay models.JobPayload
}

func (g *fakeGenerator) Generate(ctx context.Context, payload models.JobPayload, additionalContext string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastCtx = additionalContext
	g.lastPay = payload
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

// fakeBlobStorage records uploads
type fakeBlobStorage struct {
	uploads map[string][]byte
}

func (b *fakeBlobStorage) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if b.uploads == nil {
		b.uploads = make(map[string][]byte)
	}
	b.uploads[filename] = data
	return "/attachments/" + filename, nil
}
