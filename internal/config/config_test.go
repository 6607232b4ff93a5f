package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every lookup location at a temp dir so a developer's own
// config or .env never leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, key := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST", "OLLAMA_MODEL"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.DefaultBackend)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, 100, cfg.Server.QueueSize)
	assert.Equal(t, 10, cfg.Prompt.HistoryTurns)
	assert.Equal(t, 4, cfg.Prompt.RetrievalK)
	assert.Equal(t, 50, cfg.Session.MaxHistory)
	assert.Equal(t, 800, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 100, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, filepath.Join(dir, "data", "chatstream", "chat.db"), cfg.Storage.Path)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Empty(t, cfg.Gemini.APIKey)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_backend: openai
server:
  addr: ":9000"
  heartbeat: 2s
openai:
  api_key: ${MY_OPENAI_KEY}
`), 0o600))
	t.Setenv("MY_OPENAI_KEY", "sk-from-file-ref")
	t.Setenv("CHATSTREAM_PROMPT_RETRIEVAL_K", "7")
	t.Setenv("GEMINI_API_KEY", "gm-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.DefaultBackend)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, "sk-from-file-ref", cfg.OpenAI.APIKey)
	assert.Equal(t, 7, cfg.Prompt.RetrievalK)
	assert.Equal(t, "gm-key", cfg.Gemini.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATSTREAM_DEFAULT_BACKEND=ollama\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CHATSTREAM_DEFAULT_BACKEND") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.DefaultBackend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DefaultBackend: "gemini",
			Temperature:    0.3,
			Server:         ServerConfig{Heartbeat: time.Second, QueueSize: 100, MaxConcurrentStreams: 1},
			Session:        SessionConfig{MaxHistory: 50},
			Retrieval:      RetrievalConfig{ChunkSize: 800, ChunkOverlap: 100},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Retrieval.ChunkOverlap = 800 }},
		{"negative overlap", func(c *Config) { c.Retrieval.ChunkOverlap = -1 }},
		{"zero queue", func(c *Config) { c.Server.QueueSize = 0 }},
		{"zero heartbeat", func(c *Config) { c.Server.Heartbeat = 0 }},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }},
		{"empty backend", func(c *Config) { c.DefaultBackend = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveValue(t *testing.T) {
	t.Setenv("CHATSTREAM_TEST_SECRET", "s3cret")

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"${CHATSTREAM_TEST_SECRET}", "s3cret"},
		{"$CHATSTREAM_TEST_SECRET", "s3cret"},
		{"$(echo from-command)", "from-command"},
	}
	for _, tc := range tests {
		got, err := ResolveValue(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ResolveValue("$(exit 3)")
	assert.Error(t, err)
}
