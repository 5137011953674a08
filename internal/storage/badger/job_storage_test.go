package badger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func openTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badger-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestJobRecordPersistence(t *testing.T) {
	db := openTestDB(t)
	logger := arbor.NewLogger()
	storage := NewJobStorage(db, logger)

	ctx := context.Background()

	record := &models.JobRecord{
		JobID:      "job-1",
		Action:     models.ActionCreated,
		Timestamp:  time.Now().UnixMilli(),
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		State:      models.JobStateProcessing,
		Payload: models.JobPayload{
			ID:      "post-1",
			Title:   "First post",
			Content: "some raw content",
		},
		MaxRetries: 3,
	}
	if err := storage.Save(ctx, record); err != nil {
		t.Fatalf("Failed to save job record: %v", err)
	}

	loaded, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job record: %v", err)
	}
	if loaded.State != models.JobStateProcessing {
		t.Errorf("Expected state processing, got %s", loaded.State)
	}
	if loaded.Payload.Title != "First post" {
		t.Errorf("Expected payload title to survive round-trip, got %q", loaded.Payload.Title)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set on save")
	}

	// Upsert with a terminal state must overwrite in place
	loaded.MarkCompleted("job-1", time.Now().UTC().Format(time.RFC3339))
	if err := storage.Update(ctx, loaded); err != nil {
		t.Fatalf("Failed to update job record: %v", err)
	}

	updated, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get updated record: %v", err)
	}
	if updated.State != models.JobStateCompleted {
		t.Errorf("Expected state completed, got %s", updated.State)
	}
	if updated.ArtifactID != "job-1" {
		t.Errorf("Expected artifact ID job-1, got %s", updated.ArtifactID)
	}
}

func TestJobRecordNotFound(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	_, err := storage.Get(context.Background(), "missing")
	if err != models.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// Deleting a missing record is not an error
	if err := storage.Delete(context.Background(), "missing"); err != nil {
		t.Errorf("Expected nil deleting missing record, got %v", err)
	}
}

func TestJobRecordListByState(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	states := []models.JobState{
		models.JobStateProcessing,
		models.JobStateCompleted,
		models.JobStateError,
		models.JobStateCompleted,
	}
	for i, state := range states {
		record := &models.JobRecord{
			JobID:  string(rune('a' + i)),
			Action: models.ActionCreated,
			State:  state,
		}
		if err := storage.Save(ctx, record); err != nil {
			t.Fatalf("Failed to save record %d: %v", i, err)
		}
	}

	completed, err := storage.List(ctx, &interfaces.JobListOptions{State: models.JobStateCompleted})
	if err != nil {
		t.Fatalf("Failed to list completed: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("Expected 2 completed records, got %d", len(completed))
	}

	all, err := storage.List(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to list all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Expected 4 records, got %d", len(all))
	}

	limited, err := storage.List(ctx, &interfaces.JobListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Failed to list with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 records with limit, got %d", len(limited))
	}
}

func TestListStuckReturnsOnlyStaleProcessing(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	stale := &models.JobRecord{JobID: "stale", State: models.JobStateProcessing}
	if err := storage.Save(ctx, stale); err != nil {
		t.Fatal(err)
	}
	fresh := &models.JobRecord{JobID: "fresh", State: models.JobStateProcessing}
	done := &models.JobRecord{JobID: "done", State: models.JobStateCompleted}

	// Save sets UpdatedAt to now; push the threshold past the stale record
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)

	if err := storage.Save(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if err := storage.Save(ctx, done); err != nil {
		t.Fatal(err)
	}

	stuck, err := storage.ListStuck(ctx, cutoff)
	if err != nil {
		t.Fatalf("Failed to list stuck: %v", err)
	}
	if len(stuck) != 1 {
		t.Fatalf("Expected 1 stuck record, got %d", len(stuck))
	}
	if stuck[0].JobID != "stale" {
		t.Errorf("Expected stale record, got %s", stuck[0].JobID)
	}
}

func TestArtifactOverwriteInPlace(t *testing.T) {
	db := openTestDB(t)
	storage := NewArtifactStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := &models.ArtifactRecord{
		SourceJobID:      "job-1",
		Title:            "Original title",
		GeneratedContent: "first generation",
		State:            models.ArtifactStateGenerated,
	}
	if err := storage.Save(ctx, first); err != nil {
		t.Fatalf("Failed to save artifact: %v", err)
	}

	second := &models.ArtifactRecord{
		SourceJobID:      "job-1",
		Title:            "Original title",
		GeneratedContent: "second generation",
		State:            models.ArtifactStateGenerated,
		PreviousGeneration: &models.PreviousGeneration{
			Content:     "first generation",
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := storage.Save(ctx, second); err != nil {
		t.Fatalf("Failed to overwrite artifact: %v", err)
	}

	loaded, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get artifact: %v", err)
	}
	if loaded.GeneratedContent != "second generation" {
		t.Errorf("Expected second generation content, got %q", loaded.GeneratedContent)
	}
	if loaded.PreviousGeneration == nil || loaded.PreviousGeneration.Content != "first generation" {
		t.Error("Expected previous generation snapshot to be carried")
	}
}

func TestKVStorageRoundTrip(t *testing.T) {
	db := openTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	if _, err := storage.Get(ctx, "gemini_api_key"); err != models.ErrNotFound {
		t.Errorf("Expected ErrNotFound for missing key, got %v", err)
	}

	if err := storage.Set(ctx, "gemini_api_key", "secret"); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}

	value, err := storage.Get(ctx, "gemini_api_key")
	if err != nil {
		t.Fatalf("Failed to get key: %v", err)
	}
	if value != "secret" {
		t.Errorf("Expected secret, got %q", value)
	}

	all, err := storage.GetAll(ctx)
	if err != nil {
		t.Fatalf("Failed to get all: %v", err)
	}
	if len(all) != 1 || all["gemini_api_key"] != "secret" {
		t.Errorf("Unexpected GetAll result: %v", all)
	}
}
