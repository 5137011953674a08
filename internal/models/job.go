// -----------------------------------------------------------------------
// JobRecord - Persistent bookkeeping record, one per jobId
// -----------------------------------------------------------------------

package models

import "time"

// JobState is the processing state of a job record.
type JobState string

const (
	JobStateProcessing        JobState = "processing"
	JobStateCompleted         JobState = "completed"
	JobStateError             JobState = "error"
	JobStateFailedPermanently JobState = "failed_permanently"
)

// IsTerminal reports whether the state ends a processing pass.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateError || s == JobStateFailedPermanently
}

// RegenerationEvent is one entry in a job's regeneration lineage. The artifact
// record itself is overwritten in place, so this trail is the only durable
// trace of earlier generations' identity.
type RegenerationEvent struct {
	At              int64  `json:"at"` // epoch ms
	PriorArtifactID string `json:"priorArtifactId,omitempty"`
	Note            string `json:"note,omitempty"`
}

// JobRecord is the persisted job document, keyed by JobID. It is created with
// state=processing, moved to a terminal state exactly once per processing
// pass, and merged back to processing on subsequent regenerations.
type JobRecord struct {
	JobID     string     `json:"jobId"`
	Action    Action     `json:"action"`
	Timestamp int64      `json:"timestamp"` // submission time, epoch ms
	ReceivedAt string    `json:"receivedAt"` // ISO 8601
	Payload   JobPayload `json:"payload"`

	State JobState `json:"state" badgerhold:"index"`

	// Generation result (set on completion)
	ArtifactID       string    `json:"artifactId,omitempty"`
	GeneratedContent string    `json:"generatedContent,omitempty"`
	Sections         []Section `json:"sections,omitempty"`
	CompletedAt      string    `json:"completedAt,omitempty"`

	// Error bookkeeping
	ErrorAt      string `json:"errorAt,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
	Note         string `json:"note,omitempty"`

	// Regeneration lineage
	PriorArtifactID     string              `json:"priorArtifactId,omitempty"`
	RegenerationAttempt int                 `json:"regenerationAttempt,omitempty"`
	RegenerationHistory []RegenerationEvent `json:"regenerationHistory,omitempty"`

	// Delivery accounting across redeliveries of the same message
	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarkCompleted moves the record to its completed terminal state.
func (j *JobRecord) MarkCompleted(artifactID, completedAt string) {
	j.State = JobStateCompleted
	j.ArtifactID = artifactID
	j.CompletedAt = completedAt
	j.ErrorAt = ""
	j.ErrorMessage = ""
}

// MarkError moves the record to its error terminal state.
func (j *JobRecord) MarkError(message, errorAt string) {
	j.State = JobStateError
	j.ErrorMessage = message
	j.ErrorAt = errorAt
}

// MarkFailedPermanently moves the record to the dead terminal state that
// blocks further redelivery processing.
func (j *JobRecord) MarkFailedPermanently(message, errorAt string) {
	j.State = JobStateFailedPermanently
	j.ErrorMessage = message
	j.ErrorAt = errorAt
}
