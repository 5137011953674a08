package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
)

// BlobStore writes attachment blobs under a local directory and returns
// stable URLs built from the configured base URL.
type BlobStore struct {
	root    string
	baseURL string
	logger  arbor.ILogger
}

// NewBlobStore creates a filesystem-backed blob store
func NewBlobStore(config *common.FilesystemConfig, logger arbor.ILogger) (interfaces.BlobStorage, error) {
	if err := os.MkdirAll(config.Attachments, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachments directory: %w", err)
	}

	return &BlobStore{
		root:    config.Attachments,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		logger:  logger,
	}, nil
}

func (s *BlobStore) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	// Prefix with a uuid so repeated uploads of the same filename never collide
	name := uuid.New().String() + "_" + sanitizeFilename(filename)
	path := filepath.Join(s.root, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment %s: %w", filename, err)
	}

	s.logger.Debug().
		Str("filename", filename).
		Str("path", path).
		Int("size", len(data)).
		Msg("Stored attachment blob")

	return s.baseURL + "/" + name, nil
}

// sanitizeFilename strips path separators and keeps only the base name
func sanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.ReplaceAll(base, string(os.PathSeparator), "_")
	if base == "." || base == "" {
		return "attachment"
	}
	return base
}
