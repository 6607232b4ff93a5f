package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samsaffron/chatstream/internal/config"
)

// Registry maps backend keys to token sources. Resolution never fails:
// an empty or unknown key resolves to the default backend.
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]TokenSource
	defaultKey string
}

// NewRegistry creates a registry from sources. It fails when defaultKey is
// not among them.
func NewRegistry(defaultKey string, sources ...TokenSource) (*Registry, error) {
	r := &Registry{sources: make(map[string]TokenSource, len(sources))}
	for _, src := range sources {
		r.Register(src)
	}
	key := normalizeKey(defaultKey)
	if _, ok := r.sources[key]; !ok {
		return nil, fmt.Errorf("default backend %q is not registered (have %s)", defaultKey, strings.Join(r.Keys(), ", "))
	}
	r.defaultKey = key
	return r, nil
}

// NewRegistryFromConfig registers gemini and ollama unconditionally and the
// hosted backends whose API keys are configured.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	sources := []TokenSource{
		NewGeminiSource(cfg.Gemini.APIKey, cfg.Gemini.Model),
		NewOllamaSource(cfg.Ollama.Host, cfg.Ollama.Model),
	}
	if cfg.OpenAI.APIKey != "" {
		sources = append(sources, NewOpenAISource(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	}
	if cfg.Anthropic.APIKey != "" {
		sources = append(sources, NewAnthropicSource(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	return NewRegistry(cfg.DefaultBackend, sources...)
}

// Register adds or replaces a source under its Name.
func (r *Registry) Register(src TokenSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[normalizeKey(src.Name())] = src
}

// Resolve returns the source for key and the key actually used.
func (r *Registry) Resolve(key string) (TokenSource, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key = normalizeKey(key)
	if src, ok := r.sources[key]; ok {
		return src, key
	}
	return r.sources[r.defaultKey], r.defaultKey
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[normalizeKey(key)]
	return ok
}

// Default returns the default backend key.
func (r *Registry) Default() string {
	return r.defaultKey
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sources))
	for k := range r.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
