package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIBatchSize = 256

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client, model: chooseModel(model, "text-embedding-3-small")}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, openAIBatchSize) {
		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(p.model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embed: got %d vectors for %d texts", len(resp.Data), len(batch))
		}
		out := make([][]float64, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(out) {
				return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		vectors = append(vectors, out...)
	}
	return vectors, nil
}
