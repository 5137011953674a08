package processor

import (
	"strings"
	"time"

	"github.com/ternarybob/scribo/internal/models"
)

const titleWordLimit = 10

// DeriveTitle backfills a missing title from whatever content is available.
// Pure given the payload and the injected time; never fails.
//
// Order of attempts: the payload's own title; the introduction section of
// selectedSections; the original content; a synthetic timestamped fallback.
func DeriveTitle(payload models.JobPayload, now time.Time) string {
	if strings.TrimSpace(payload.Title) != "" {
		return payload.Title
	}

	if section := introSection(payload.SelectedSections); section != nil {
		if title := firstWords(section.Content, titleWordLimit); title != "" {
			return title
		}
	}

	if title := firstWords(payload.OriginalContent, titleWordLimit); title != "" {
		return title
	}

	return "Post " + now.UTC().Format(time.RFC3339)
}

// introSection picks the section whose subtitle names an introduction, or
// failing that the one at index 0.
func introSection(sections []models.Section) *models.Section {
	for i := range sections {
		if strings.Contains(strings.ToLower(sections[i].Subtitle), "intro") {
			return &sections[i]
		}
	}
	for i := range sections {
		if sections[i].Index == 0 {
			return &sections[i]
		}
	}
	return nil
}

// firstWords returns up to limit words of text with a trailing ellipsis, or
// empty when the text has no words.
func firstWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if len(words) > limit {
		words = words[:limit]
	}
	return strings.Join(words, " ") + "..."
}
