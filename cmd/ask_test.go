package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/chatstream/internal/config"
	"github.com/samsaffron/chatstream/internal/exitcode"
	"github.com/samsaffron/chatstream/internal/orchestrator"
	"github.com/samsaffron/chatstream/internal/session"
	"github.com/samsaffron/chatstream/internal/sse"
	"github.com/samsaffron/chatstream/internal/usage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DefaultBackend: "gemini",
		Temperature:    0.3,
		Server: config.ServerConfig{
			Heartbeat: time.Second,
			QueueSize: 16,
		},
		Prompt:  config.PromptConfig{HistoryTurns: 4, Persona: "none"},
		Session: config.SessionConfig{MaxHistory: 20},
		Storage: config.StorageConfig{Path: filepath.Join(dir, "data", "chats.db")},
		Log:     config.LogConfig{Level: "error"},
		Usage:   config.UsageConfig{Enabled: true, Dir: filepath.Join(dir, "usage")},
		Ollama:  config.OllamaConfig{Host: "http://127.0.0.1:1"},
	}
}

func testApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := buildApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAskPrintsDevFallback(t *testing.T) {
	cfg := testConfig(t)
	a := testApp(t, cfg)

	var stdout, events bytes.Buffer
	out, err := ask(context.Background(), a, orchestrator.StreamRequest{
		SessionKey:  "cli",
		Prompt:      "hello world",
		Temperature: cfg.Temperature,
	}, &stdout, &events)
	require.NoError(t, err)

	assert.False(t, out.Disconnected)
	assert.Equal(t, "[dev-fallback] You said: hello world", out.Text)
	assert.Equal(t, "[dev-fallback] You said: hello world\n", stdout.String())

	frames := events.String()
	assert.True(t, strings.HasPrefix(frames, "event: start\n"), frames)
	assert.Contains(t, frames, `"backend":"gemini"`)
	assert.Contains(t, frames, "event: thinking\n")
	assert.Contains(t, frames, "event: done\n")

	turns := a.sessions.History("cli", 0)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hello world", turns[0].Content)
	assert.Equal(t, out.Text, turns[1].Content)

	logged := usage.NewLogger(cfg.Usage.Dir).Load(time.Now().AddDate(0, 0, -1), time.Now())
	require.Len(t, logged.Entries, 1)
	assert.Equal(t, "gemini", logged.Entries[0].Backend)
}

func TestAskWithoutEventsWritesOnlyContent(t *testing.T) {
	a := testApp(t, testConfig(t))

	var stdout bytes.Buffer
	_, err := ask(context.Background(), a, orchestrator.StreamRequest{SessionKey: "cli", Prompt: "ping"}, &stdout, nil)
	require.NoError(t, err)
	assert.Equal(t, "[dev-fallback] You said: ping\n", stdout.String())
}

func TestAskUnknownChatIsNotFound(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Enabled = true
	a := testApp(t, cfg)

	var stdout bytes.Buffer
	_, err := ask(context.Background(), a, orchestrator.StreamRequest{
		SessionKey:     "cli",
		Prompt:         "hi",
		ConversationID: 42,
	}, &stdout, nil)

	var exitErr exitcode.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, exitcode.NotFound, exitErr.Code)
	assert.Empty(t, stdout.String())
}

func TestAskContinuesPersistedChat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Enabled = true
	a := testApp(t, cfg)
	ctx := context.Background()

	_, err := ask(ctx, a, orchestrator.StreamRequest{SessionKey: "cli", Prompt: "first"}, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	chats, err := a.store.ListConversations(ctx, "cli")
	require.NoError(t, err)
	require.Len(t, chats, 1)

	_, err = ask(ctx, a, orchestrator.StreamRequest{
		SessionKey:     "cli",
		Prompt:         "second",
		ConversationID: chats[0].ID,
	}, &bytes.Buffer{}, nil)
	require.NoError(t, err)

	messages, err := a.store.Messages(ctx, chats[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "second", messages[2].Content)
	assert.Equal(t, "[dev-fallback] You said: second", messages[3].Content)
}

func TestTerminalEmitter(t *testing.T) {
	var out, events bytes.Buffer
	em := &terminalEmitter{out: &out, events: &events}

	require.NoError(t, em.Event(sse.EventThinking, sse.TextPayload{RequestID: "r", Content: sse.ThinkingText}))
	require.NoError(t, em.Event(sse.EventContent, sse.TextPayload{RequestID: "r", Content: "hi"}))
	require.NoError(t, em.Event(sse.EventDone, sse.TextPayload{RequestID: "r", Content: "hi"}))
	require.NoError(t, em.Heartbeat())

	assert.Equal(t, "hi", out.String())
	assert.Contains(t, events.String(), "event: content\ndata: {\"requestId\":\"r\",\"content\":\"hi\"}\n\n")
	assert.True(t, strings.HasSuffix(events.String(), ": heartbeat\n\n"))

	quiet := &terminalEmitter{out: &out}
	assert.NoError(t, quiet.Heartbeat())
}

func TestBackendFlagCompletion(t *testing.T) {
	got, directive := backendFlagCompletion(&cobra.Command{}, nil, "O")
	assert.Equal(t, []string{"ollama", "openai"}, got)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	got, _ = backendFlagCompletion(&cobra.Command{}, nil, "")
	assert.Equal(t, knownBackends, got)
}

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"0", "-3", "abc"} {
		_, err := parseChatID(bad)
		var exitErr exitcode.ExitError
		require.True(t, errors.As(err, &exitErr), bad)
		assert.Equal(t, exitcode.Usage, exitErr.Code)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "chatstream version dev (commit: unknown, built: unknown)\n", out.String())
}

func TestProfilerWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	p := &profiler{cpuPath: filepath.Join(dir, "cpu.pprof"), memPath: filepath.Join(dir, "mem.pprof")}

	require.NoError(t, p.start())
	require.NoError(t, p.stop())

	assert.FileExists(t, p.cpuPath)
	assert.FileExists(t, p.memPath)
	assert.NoError(t, p.stop(), "stopping twice only rewrites the heap profile")

	idle := &profiler{}
	assert.NoError(t, idle.start())
	assert.NoError(t, idle.stop())
}
