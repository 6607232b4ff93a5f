package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const appName = "chatstream"

type Config struct {
	DefaultBackend string  `mapstructure:"default_backend"`
	Temperature    float64 `mapstructure:"temperature"`

	Server    ServerConfig    `mapstructure:"server"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Session   SessionConfig   `mapstructure:"session"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Log       LogConfig       `mapstructure:"log"`
	Usage     UsageConfig     `mapstructure:"usage"`

	Gemini    ProviderConfig `mapstructure:"gemini"`
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Ollama    OllamaConfig   `mapstructure:"ollama"`
}

type ServerConfig struct {
	Addr                 string        `mapstructure:"addr"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins"`
	Token                string        `mapstructure:"token"`
	Heartbeat            time.Duration `mapstructure:"heartbeat"`
	QueueSize            int           `mapstructure:"queue_size"`
	MaxConcurrentStreams int           `mapstructure:"max_concurrent_streams"`
}

type PromptConfig struct {
	HistoryTurns int    `mapstructure:"history_turns"`
	RetrievalK   int    `mapstructure:"retrieval_k"`
	Persona      string `mapstructure:"persona"`
}

type SessionConfig struct {
	MaxHistory int `mapstructure:"max_history"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RetrievalConfig struct {
	// Provider is "gemini", "openai" or empty to infer from configured keys.
	Provider     string `mapstructure:"provider"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type UsageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type ProviderConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type OllamaConfig struct {
	Host  string `mapstructure:"host"`
	Model string `mapstructure:"model"`
}

// Load reads configuration from path (or the default search locations when
// path is empty), the environment and a .env file in the working directory.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHATSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindProviderEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path == "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_backend", "gemini")
	v.SetDefault("temperature", 0.3)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.heartbeat", 15*time.Second)
	v.SetDefault("server.queue_size", 100)
	v.SetDefault("server.max_concurrent_streams", 8)

	v.SetDefault("prompt.history_turns", 10)
	v.SetDefault("prompt.retrieval_k", 4)
	v.SetDefault("prompt.persona", "alfred")

	v.SetDefault("session.max_history", 50)

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", filepath.Join(GetDataDir(), "chat.db"))

	v.SetDefault("retrieval.chunk_size", 800)
	v.SetDefault("retrieval.chunk_overlap", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("usage.enabled", true)
	v.SetDefault("usage.dir", filepath.Join(GetDataDir(), "usage"))

	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.embedding_model", "text-embedding-004")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")

	// Keys without a default are bound explicitly so AutomaticEnv sees them.
	for _, key := range []string{"server.token", "retrieval.provider", "log.file"} {
		v.SetDefault(key, "")
	}
}

// bindProviderEnv lets the conventional provider variables stand in for
// the prefixed ones.
func bindProviderEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"gemini.api_key":    "GEMINI_API_KEY",
		"openai.api_key":    "OPENAI_API_KEY",
		"anthropic.api_key": "ANTHROPIC_API_KEY",
		"ollama.host":       "OLLAMA_HOST",
		"ollama.model":      "OLLAMA_MODEL",
	}
	for key, env := range bindings {
		prefixed := "CHATSTREAM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// resolveSecrets expands secret references (env vars, 1Password, commands).
func (c *Config) resolveSecrets() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"gemini.api_key", &c.Gemini.APIKey},
		{"openai.api_key", &c.OpenAI.APIKey},
		{"anthropic.api_key", &c.Anthropic.APIKey},
		{"ollama.host", &c.Ollama.Host},
		{"server.token", &c.Server.Token},
	}
	for _, f := range fields {
		resolved, err := ResolveValue(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = resolved
	}
	return nil
}

// Validate checks values that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.DefaultBackend == "" {
		return fmt.Errorf("default_backend must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.Server.Heartbeat <= 0 {
		return fmt.Errorf("server.heartbeat must be positive")
	}
	if c.Server.QueueSize <= 0 {
		return fmt.Errorf("server.queue_size must be positive")
	}
	if c.Server.MaxConcurrentStreams <= 0 {
		return fmt.Errorf("server.max_concurrent_streams must be positive")
	}
	if c.Session.MaxHistory <= 0 {
		return fmt.Errorf("session.max_history must be positive")
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive")
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size), got %d", c.Retrieval.ChunkOverlap)
	}
	return nil
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns $XDG_CONFIG_HOME/chatstream or ~/.config/chatstream.
func GetConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetDataDir returns $XDG_DATA_HOME/chatstream or ~/.local/share/chatstream.
func GetDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}
