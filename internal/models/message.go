package models

import (
	"encoding/json"
	"fmt"
)

// Action identifies what the submitter did to the source post.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionDeleted    Action = "deleted"
	ActionRegenerate Action = "regenerate"
)

// IsValid reports whether the action is one of the known variants.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionRegenerate:
		return true
	}
	return false
}

// Section is a single subtitled block of an article.
type Section struct {
	Index    int    `json:"index,omitempty"`
	Subtitle string `json:"subtitle"`
	Content  string `json:"content"`
}

// PreviousGeneration is a snapshot of an earlier artifact carried along on a
// regeneration so the generator can reference the prior text.
type PreviousGeneration struct {
	Content     string `json:"content"`
	GeneratedAt string `json:"generatedAt"`
}

// Attachment carries inline file content on a payload. Data is base64; once
// offloaded to blob storage the URL replaces it.
type Attachment struct {
	Filename string `json:"filename"`
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

// JobPayload is the content portion of an inbound message. Keywords and Focus
// are always non-nil/non-absent after normalization.
type JobPayload struct {
	ID                       string              `json:"id" validate:"required"`
	Title                    string              `json:"title,omitempty"`
	Content                  string              `json:"content,omitempty"`
	Keywords                 []string            `json:"keywords"`
	Focus                    string              `json:"focus"`
	RegenerationInstructions string              `json:"regenerationInstructions,omitempty"`
	SelectedSections         []Section           `json:"selectedSections,omitempty"`
	OriginalContent          string              `json:"originalContent,omitempty"`
	Feedback                 string              `json:"feedback,omitempty"`
	PreviousGeneration       *PreviousGeneration `json:"previousGeneration,omitempty"`
	Attachments              []Attachment        `json:"attachments,omitempty"`

	// Extra holds fields present on the wire that this service does not model.
	// They round-trip through persistence untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// payloadFields lists the JSON keys owned by JobPayload's typed fields.
var payloadFields = []string{
	"id", "title", "content", "keywords", "focus",
	"regenerationInstructions", "selectedSections", "originalContent",
	"feedback", "previousGeneration", "attachments",
}

// UnmarshalJSON decodes the typed fields and captures unrecognized keys into
// Extra so legacy producers' fields survive the round trip.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type plain JobPayload
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range payloadFields {
		delete(all, key)
	}

	*p = JobPayload(known)
	if len(all) > 0 {
		p.Extra = all
	}
	return nil
}

// MarshalJSON emits the typed fields merged with any Extra fields.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type plain JobPayload
	data, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range p.Extra {
		if _, owned := merged[key]; !owned {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// ApplyDefaults fills the fields that must always be present after
// normalization.
func (p *JobPayload) ApplyDefaults() {
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
}

// Clone returns a deep copy of the payload.
func (p *JobPayload) Clone() JobPayload {
	out := *p

	if p.Keywords != nil {
		out.Keywords = append([]string(nil), p.Keywords...)
	}
	if p.SelectedSections != nil {
		out.SelectedSections = append([]Section(nil), p.SelectedSections...)
	}
	if p.Attachments != nil {
		out.Attachments = append([]Attachment(nil), p.Attachments...)
	}
	if p.PreviousGeneration != nil {
		prev := *p.PreviousGeneration
		out.PreviousGeneration = &prev
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// JobMessage is the canonical inbound message after normalization.
type JobMessage struct {
	JobID     string     `json:"jobId" validate:"required"`
	Action    Action     `json:"action" validate:"required,oneof=created updated deleted regenerate"`
	Timestamp int64      `json:"timestamp"`
	Payload   JobPayload `json:"payload" validate:"required"`
}

// ToJSON serializes the message for queue transport.
func (m *JobMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}
	return data, nil
}

// JobMessageFromJSON deserializes a message from queue transport.
func JobMessageFromJSON(data []byte) (*JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job message: %w", err)
	}
	return &msg, nil
}
