// Package embedding turns text into vectors for similarity retrieval.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/samsaffron/chatstream/internal/config"
)

// Provider generates embeddings for a batch of texts. The returned slice
// has one vector per input, in input order.
type Provider interface {
	Name() string
	DefaultModel() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// New creates a provider from cfg.Retrieval.Provider, which accepts
// "provider" or "provider:model". When it is empty the provider is inferred
// from the configured API keys. New returns nil, nil when nothing is
// configured; retrieval is then disabled.
func New(cfg *config.Config) (Provider, error) {
	providerStr := strings.TrimSpace(cfg.Retrieval.Provider)
	if providerStr == "" {
		providerStr = inferProvider(cfg)
	}
	if providerStr == "" || providerStr == "none" {
		return nil, nil
	}

	provider, model := parseProviderModel(providerStr)
	switch provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not configured. Set the environment variable or gemini.api_key in config")
		}
		return NewGeminiProvider(cfg.Gemini.APIKey, chooseModel(model, cfg.Gemini.EmbeddingModel)), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not configured. Set the environment variable or openai.api_key in config")
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, chooseModel(model, cfg.OpenAI.EmbeddingModel)), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid: gemini, openai, none)", provider)
	}
}

// inferProvider prefers gemini, then openai.
func inferProvider(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if strings.TrimSpace(cfg.Gemini.APIKey) != "" {
		return "gemini"
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		return "openai"
	}
	return ""
}

// parseProviderModel parses "provider:model" or just "provider" from a string.
func parseProviderModel(s string) (string, string) {
	parts := strings.SplitN(s, ":", 2)
	provider := strings.TrimSpace(parts[0])
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	return provider, model
}

func chooseModel(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

// batches splits texts into groups of at most size.
func batches(texts []string, size int) [][]string {
	var out [][]string
	for len(texts) > size {
		out = append(out, texts[:size])
		texts = texts[size:]
	}
	if len(texts) > 0 {
		out = append(out, texts)
	}
	return out
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}
