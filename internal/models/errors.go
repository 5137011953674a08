package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by storage adapters when a document does not exist.
var ErrNotFound = errors.New("document not found")

// MalformedInputError reports an inbound message that matched none of the
// recognized shapes, or failed validation after decoding. Redelivering the
// same bytes can never succeed, so the ingress may ack-and-drop it.
type MalformedInputError struct {
	Stage string // which interpretation stage failed
	Err   error
}

func (e *MalformedInputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed input at stage %q", e.Stage)
	}
	return fmt.Sprintf("malformed input at stage %q: %v", e.Stage, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// IsMalformedInput reports whether err is (or wraps) a MalformedInputError.
func IsMalformedInput(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}

// GenerationError reports a failed or empty AI generation. It is fatal to the
// current processing pass; the job record carries the error state.
type GenerationError struct {
	JobID string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for job %s: %v", e.JobID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError reports a failed store write. It propagates to the
// transport so the message is redelivered.
type PersistenceError struct {
	Op  string // "save job", "update job", "save artifact"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
