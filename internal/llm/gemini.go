package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiSource streams from Google Gemini. Without an API key it answers
// with a local echo so the service stays usable in development.
type GeminiSource struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

var _ TokenSource = (*GeminiSource)(nil)

func NewGeminiSource(apiKey, model string) *GeminiSource {
	return &GeminiSource{
		apiKey: apiKey,
		model:  chooseModel(model, "gemini-2.5-flash"),
	}
}

func (s *GeminiSource) Name() string         { return "gemini" }
func (s *GeminiSource) DefaultModel() string { return s.model }

// DevFallback is the text produced when no Gemini key is configured.
func DevFallback(prompt string) string {
	return "[dev-fallback] You said: " + prompt
}

func (s *GeminiSource) Stream(ctx context.Context, req Request) Stream {
	if s.apiKey == "" {
		return NewSliceStream(WordTokens(DevFallback(req.Prompt))...)
	}
	return newTextStream(ctx, s.Name(), func(ctx context.Context, emit func(string) bool) error {
		client, err := s.getClient(ctx)
		if err != nil {
			return err
		}

		config := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(req.Temperature)),
		}
		if req.System != "" {
			config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}
		contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

		for resp, err := range client.Models.GenerateContentStream(ctx, chooseModel(req.Model, s.model), contents, config) {
			if err != nil {
				return fmt.Errorf("gemini request failed: %w", err)
			}
			for _, token := range WordTokens(responseText(resp)) {
				if !emit(token) {
					return ctx.Err()
				}
			}
		}
		return nil
	})
}

func (s *GeminiSource) getClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	s.client = client
	return client, nil
}

// responseText joins the visible text parts of a response, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out string
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			out += part.Text
		}
	}
	return out
}
