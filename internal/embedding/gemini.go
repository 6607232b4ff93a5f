package embedding

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// geminiBatchSize is the most texts the API accepts per request.
const geminiBatchSize = 100

type GeminiProvider struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: chooseModel(model, "text-embedding-004")}
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.model }

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, geminiBatchSize) {
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}
		resp, err := client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
			TaskType: "RETRIEVAL_DOCUMENT",
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("gemini embed: got %d vectors for %d texts", len(resp.Embeddings), len(batch))
		}
		for _, e := range resp.Embeddings {
			vec := make([]float64, len(e.Values))
			for i, v := range e.Values {
				vec[i] = float64(v)
			}
			vectors = append(vectors, vec)
		}
	}
	return vectors, nil
}

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	return client, nil
}
