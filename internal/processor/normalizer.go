package processor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/scribo/internal/models"
)

// Shape classifies an inbound message into one of the recognized wire
// variants. Each shape has its own parse function so the mapping stays
// exhaustive and testable in isolation.
type Shape int

const (
	// ShapeUnknown matches nothing; normalization fails
	ShapeUnknown Shape = iota
	// ShapeString is a JSON-encoded string whose contents are the message JSON
	ShapeString
	// ShapeEnvelopeB64 is an envelope object whose data field is a base64 string
	ShapeEnvelopeB64
	// ShapeEnvelopeObject is an envelope object whose data field is the message object
	ShapeEnvelopeObject
	// ShapeFlat is a bare object already carrying jobId, action and payload
	ShapeFlat
	// ShapeLegacyFlat is a legacy object with post fields at the top level,
	// no payload wrapper and no action
	ShapeLegacyFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeEnvelopeB64:
		return "envelope_base64"
	case ShapeEnvelopeObject:
		return "envelope_object"
	case ShapeFlat:
		return "flat"
	case ShapeLegacyFlat:
		return "legacy_flat"
	default:
		return "unknown"
	}
}

// Normalizer converts raw inbound bytes of any recognized shape into a
// canonical JobMessage.
type Normalizer struct {
	validate *validator.Validate
}

// NewNormalizer creates a Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{
		validate: validator.New(),
	}
}

// envelope is the transport wrapper some producers send around the message
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// legacyPost is the flattened legacy producer shape: post fields at the top
// level, no payload wrapper, no action.
type legacyPost struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Focus    string   `json:"focus"`
}

// Classify determines which wire variant the raw bytes carry. It never
// parses deeper than needed to tell the shapes apart.
func (n *Normalizer) Classify(raw []byte) Shape {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return ShapeString
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ShapeUnknown
	}

	if data, ok := fields["data"]; ok {
		var b64 string
		if err := json.Unmarshal(data, &b64); err == nil {
			return ShapeEnvelopeB64
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err == nil {
			return ShapeEnvelopeObject
		}
		return ShapeUnknown
	}

	if _, ok := fields["jobId"]; ok {
		return ShapeFlat
	}

	_, hasID := fields["id"]
	_, hasTitle := fields["title"]
	_, hasContent := fields["content"]
	if hasID && (hasTitle || hasContent) {
		return ShapeLegacyFlat
	}

	return ShapeUnknown
}

// Normalize converts raw bytes into a canonical JobMessage, or returns a
// MalformedInputError naming the interpretation stage that failed.
func (n *Normalizer) Normalize(raw []byte) (*models.JobMessage, error) {
	shape := n.Classify(raw)

	var msg *models.JobMessage
	var err error

	switch shape {
	case ShapeString:
		msg, err = n.parseString(raw)
	case ShapeEnvelopeB64:
		msg, err = n.parseEnvelopeB64(raw)
	case ShapeEnvelopeObject:
		msg, err = n.parseEnvelopeObject(raw)
	case ShapeFlat:
		msg, err = n.parseFlat(raw)
	case ShapeLegacyFlat:
		msg, err = n.parseLegacyFlat(raw)
	default:
		return nil, &models.MalformedInputError{
			Stage: "classify",
			Err:   fmt.Errorf("no recognized message shape"),
		}
	}

	if err != nil {
		return nil, &models.MalformedInputError{Stage: shape.String(), Err: err}
	}

	if msg.Action == "" {
		msg.Action = models.ActionCreated
	}
	msg.Payload.ApplyDefaults()

	if err := n.validate.Struct(msg); err != nil {
		return nil, &models.MalformedInputError{Stage: "validate", Err: err}
	}
	if !msg.Action.IsValid() {
		return nil, &models.MalformedInputError{
			Stage: "validate",
			Err:   fmt.Errorf("unknown action %q", msg.Action),
		}
	}

	return msg, nil
}

func (n *Normalizer) parseString(raw []byte) (*models.JobMessage, error) {
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("failed to decode wrapping string: %w", err)
	}
	var msg models.JobMessage
	if err := json.Unmarshal([]byte(inner), &msg); err != nil {
		return nil, fmt.Errorf("failed to parse inner JSON: %w", err)
	}
	return &msg, nil
}

func (n *Normalizer) parseEnvelopeB64(raw []byte) (*models.JobMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	var b64 string
	if err := json.Unmarshal(env.Data, &b64); err != nil {
		return nil, fmt.Errorf("envelope data is not a string: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode envelope data: %w", err)
	}
	var msg models.JobMessage
	if err := json.Unmarshal(decoded, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse decoded envelope data: %w", err)
	}
	return &msg, nil
}

func (n *Normalizer) parseEnvelopeObject(raw []byte) (*models.JobMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	var msg models.JobMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse envelope data object: %w", err)
	}
	return &msg, nil
}

func (n *Normalizer) parseFlat(raw []byte) (*models.JobMessage, error) {
	var msg models.JobMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

func (n *Normalizer) parseLegacyFlat(raw []byte) (*models.JobMessage, error) {
	var post legacyPost
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, fmt.Errorf("failed to parse legacy post: %w", err)
	}
	if post.ID == "" {
		return nil, fmt.Errorf("legacy post has no id")
	}

	keywords := post.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	return &models.JobMessage{
		JobID:  post.ID,
		Action: models.ActionCreated,
		Payload: models.JobPayload{
			ID:       post.ID,
			Title:    post.Title,
			Content:  post.Content,
			Keywords: keywords,
			Focus:    post.Focus,
		},
	}, nil
}
