package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewMessageID generates a unique queue message ID
// Format: msg_<uuid>
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}
