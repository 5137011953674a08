package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

const articleSystemInstruction = `You are a professional content writer. You expand short posts into
well-structured long-form articles. You write in a clear, engaging tone and
stay faithful to the source material and the author's stated focus.`

// articleSchema is the structured output shape requested from the provider.
// Gemini enforces it server-side; for Claude it is described in the prompt.
var articleSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"title": map[string]interface{}{
			"type":        "string",
			"description": "The article title",
		},
		"sections": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"subtitle": map[string]interface{}{
						"type":        "string",
						"description": "Section heading",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "Section body text",
					},
				},
				"required": []string{"subtitle", "content"},
			},
		},
	},
	"required": []string{"title", "sections"},
}

// ArticleGenerator turns a job payload into a generated article via the
// provider factory. It implements interfaces.ContentGenerator.
type ArticleGenerator struct {
	factory *ProviderFactory
	logger  arbor.ILogger
}

// NewArticleGenerator creates an ArticleGenerator backed by the factory
func NewArticleGenerator(factory *ProviderFactory, logger arbor.ILogger) interfaces.ContentGenerator {
	return &ArticleGenerator{
		factory: factory,
		logger:  logger,
	}
}

// Generate builds the prompt from the payload and requests a structured
// article from the configured provider.
func (g *ArticleGenerator) Generate(ctx context.Context, payload models.JobPayload, additionalContext string) (string, error) {
	prompt := g.buildPrompt(payload, additionalContext)

	resp, err := g.factory.GenerateContent(ctx, &ContentRequest{
		Prompt:            prompt,
		SystemInstruction: articleSystemInstruction,
		OutputSchema:      articleSchema,
	})
	if err != nil {
		return "", fmt.Errorf("content generation failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("provider returned empty content")
	}

	g.logger.Debug().
		Str("provider", string(resp.Provider)).
		Str("model", resp.Model).
		Int("length", len(text)).
		Msg("Article generated")

	return text, nil
}

// buildPrompt assembles the generation prompt from payload fields. Empty
// fields are omitted so the prompt stays compact.
func (g *ArticleGenerator) buildPrompt(payload models.JobPayload, additionalContext string) string {
	var b strings.Builder

	b.WriteString("Write a long-form article based on the following post.\n\n")

	if payload.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", payload.Title)
	}
	if len(payload.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(payload.Keywords, ", "))
	}
	if payload.Focus != "" {
		fmt.Fprintf(&b, "Focus: %s\n", payload.Focus)
	}

	content := payload.OriginalContent
	if content == "" {
		content = payload.Content
	}
	if content != "" {
		fmt.Fprintf(&b, "\nSource content:\n%s\n", content)
	}

	if payload.PreviousGeneration != nil && payload.PreviousGeneration.Content != "" {
		fmt.Fprintf(&b, "\nA previous version of this article was generated at %s:\n%s\n",
			payload.PreviousGeneration.GeneratedAt, payload.PreviousGeneration.Content)
	}

	if payload.Feedback != "" {
		fmt.Fprintf(&b, "\nReader feedback on the previous version:\n%s\n", payload.Feedback)
	}
	if payload.RegenerationInstructions != "" {
		fmt.Fprintf(&b, "\nRevision instructions:\n%s\n", payload.RegenerationInstructions)
	}

	if len(payload.SelectedSections) > 0 {
		b.WriteString("\nRework only these sections, keeping the rest intact:\n")
		for _, section := range payload.SelectedSections {
			fmt.Fprintf(&b, "- %s\n", section.Subtitle)
		}
	}

	if additionalContext != "" {
		fmt.Fprintf(&b, "\nContext: %s\n", additionalContext)
	}

	b.WriteString("\nRespond with JSON matching the requested schema: a title and an array of sections, each with a subtitle and content.")

	return b.String()
}
