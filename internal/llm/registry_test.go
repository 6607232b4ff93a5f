package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/chatstream/internal/config"
)

func TestRegistryResolveFallsBackToDefault(t *testing.T) {
	reg, err := NewRegistry("gemini", NewScriptedSource("gemini"), NewScriptedSource("openai"))
	require.NoError(t, err)

	tests := []struct {
		key, want string
	}{
		{"openai", "openai"},
		{"OpenAI ", "openai"},
		{"gemini", "gemini"},
		{"", "gemini"},
		{"nonexistent", "gemini"},
	}
	for _, tc := range tests {
		src, key := reg.Resolve(tc.key)
		require.NotNil(t, src, tc.key)
		assert.Equal(t, tc.want, key, tc.key)
		assert.Equal(t, tc.want, src.Name(), tc.key)
	}
}

func TestRegistryRequiresDefault(t *testing.T) {
	_, err := NewRegistry("anthropic", NewScriptedSource("gemini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestRegistryKeys(t *testing.T) {
	reg, err := NewRegistry("b", NewScriptedSource("b"), NewScriptedSource("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.Keys())
	assert.True(t, reg.Has("A"))
	assert.False(t, reg.Has("c"))
	assert.Equal(t, "b", reg.Default())
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{DefaultBackend: "gemini"}
	reg, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini", "ollama"}, reg.Keys())

	cfg.OpenAI.APIKey = "sk-test"
	cfg.Anthropic.APIKey = "ak-test"
	reg, err = NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "gemini", "ollama", "openai"}, reg.Keys())

	src, _ := reg.Resolve("ollama")
	assert.Equal(t, "llama3.2", src.DefaultModel())

	cfg.DefaultBackend = "openai"
	cfg.OpenAI.APIKey = ""
	_, err = NewRegistryFromConfig(cfg)
	assert.Error(t, err)
}
