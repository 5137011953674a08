package interfaces

import "context"

// BlobStorage stores opaque file content and returns a stable URL for it.
// Exercised only when a payload carries inline attachments.
type BlobStorage interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}
