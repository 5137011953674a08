package interfaces

import (
	"context"

	"github.com/ternarybob/scribo/internal/models"
)

// ContentGenerator produces article text from a payload and a free-form
// context string describing the processing pass. Implementations may take on
// the order of a minute; callers bound the call with a context deadline.
type ContentGenerator interface {
	Generate(ctx context.Context, payload models.JobPayload, additionalContext string) (string, error)
}

// MessageProcessor is the top-level entry point exposed to transports. It
// accepts a raw inbound message in any recognized shape and returns the jobId
// of the durable job record.
type MessageProcessor interface {
	Process(ctx context.Context, raw []byte) (string, error)
}
