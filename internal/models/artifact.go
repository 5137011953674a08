package models

import (
	"encoding/json"
	"time"
)

// ArtifactState is the outcome state of a generated artifact.
type ArtifactState string

const (
	ArtifactStateGenerated ArtifactState = "generated"
	ArtifactStateError     ArtifactState = "error"
)

// ArtifactRecord is the persisted generation output, keyed by the source
// job's id. A new generation for the same job overwrites the prior record in
// place; lineage lives on the JobRecord.
type ArtifactRecord struct {
	SourceJobID      string              `json:"id"`
	Title            string              `json:"title"`
	OriginalContent  string              `json:"originalContent"`
	Keywords         []string            `json:"keywords"`
	Focus            string              `json:"focus"`
	GeneratedContent string              `json:"generatedContent"`
	Sections         []Section           `json:"sections,omitempty"`
	GeneratedAt      string              `json:"generatedAt"` // ISO 8601
	State            ArtifactState       `json:"status" badgerhold:"index"`
	ErrorMessage     string              `json:"error,omitempty"`
	PreviousGeneration *PreviousGeneration `json:"previousGeneration,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// structuredArticle mirrors the JSON shape requested from the generator.
type structuredArticle struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// ParseSections extracts sections from generated content when the generator
// returned the structured JSON article shape. Non-JSON content is left as is
// and (nil, false) is returned.
func ParseSections(generated string) ([]Section, bool) {
	var article structuredArticle
	if err := json.Unmarshal([]byte(generated), &article); err != nil {
		return nil, false
	}
	if len(article.Sections) == 0 {
		return nil, false
	}
	return article.Sections, true
}
