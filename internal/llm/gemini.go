package llm

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"google.golang.org/genai"
)

// GeminiBackend streams replies from the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Stream(ctx context.Context, system string, turns []Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cfg := &genai.GenerateContentConfig{}
		if system != "" {
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
		}

		for resp, err := range b.client.Models.GenerateContentStream(ctx, b.model, geminiContents(turns), cfg) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

// geminiContents maps turns to Gemini contents; the API calls the assistant
// role "model".
func geminiContents(turns []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := string(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = string(genai.RoleModel)
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}
	return out
}
