package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type AnthropicSource struct {
	client *anthropic.Client
	model  string
}

var _ TokenSource = (*AnthropicSource)(nil)

func NewAnthropicSource(apiKey, model string) *AnthropicSource {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicSource{
		client: &client,
		model:  chooseModel(model, "claude-sonnet-4-5"),
	}
}

func (s *AnthropicSource) Name() string         { return "anthropic" }
func (s *AnthropicSource) DefaultModel() string { return s.model }

func (s *AnthropicSource) Stream(ctx context.Context, req Request) Stream {
	return newTextStream(ctx, s.Name(), func(ctx context.Context, emit func(string) bool) error {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(chooseModel(req.Model, s.model)),
			MaxTokens:   anthropicMaxTokens,
			Temperature: anthropic.Float(req.Temperature),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
			},
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		stream := s.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			if !emit(text.Text) {
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic API error: %w", err)
		}
		return nil
	})
}
