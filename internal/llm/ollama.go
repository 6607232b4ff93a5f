package llm

import (
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOllamaHost is the address of a local Ollama daemon.
const DefaultOllamaHost = "http://localhost:11434"

// NewOllamaSource talks to a local Ollama daemon through its
// OpenAI-compatible endpoint. Deltas are re-split into word tokens.
func NewOllamaSource(host, model string) *OpenAISource {
	host = strings.TrimRight(chooseModel(host, DefaultOllamaHost), "/")
	client := openai.NewClient(
		option.WithBaseURL(host+"/v1/"),
		// Ollama ignores the key but the SDK requires one.
		option.WithAPIKey("ollama"),
	)
	return &OpenAISource{
		client: &client,
		name:   "ollama",
		model:  chooseModel(model, "llama3.2"),
		split:  true,
	}
}
