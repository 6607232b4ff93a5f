package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const openAIDefaultSystem = "You are a helpful assistant."

// OpenAISource streams chat completions from the OpenAI API, or from any
// server speaking the same protocol when a base URL is supplied.
type OpenAISource struct {
	client *openai.Client
	name   string
	model  string
	// split re-tokenizes deltas into word increments.
	split bool
}

var _ TokenSource = (*OpenAISource)(nil)

// NewOpenAISource creates a source for the hosted OpenAI API.
func NewOpenAISource(apiKey, model string) *OpenAISource {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAISource{
		client: &client,
		name:   "openai",
		model:  chooseModel(model, "gpt-4o-mini"),
	}
}

func (s *OpenAISource) Name() string         { return s.name }
func (s *OpenAISource) DefaultModel() string { return s.model }

func (s *OpenAISource) Stream(ctx context.Context, req Request) Stream {
	return newTextStream(ctx, s.name, func(ctx context.Context, emit func(string) bool) error {
		system := strings.TrimSpace(req.System)
		if system == "" {
			system = openAIDefaultSystem
		}
		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(chooseModel(req.Model, s.model)),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(req.Prompt),
			},
			Temperature: openai.Float(req.Temperature),
		}

		stream := s.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			if !s.emitText(text, emit) {
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("streaming: %w", err)
		}
		return nil
	})
}

func (s *OpenAISource) emitText(text string, emit func(string) bool) bool {
	if !s.split {
		return emit(text)
	}
	for _, token := range WordTokens(text) {
		if !emit(token) {
			return false
		}
	}
	return true
}
