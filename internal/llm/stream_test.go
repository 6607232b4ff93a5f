package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedSourceStreamsChunks(t *testing.T) {
	src := NewScriptedSource("mock").AddChunks("Hel", "lo", "")
	stream := src.Stream(context.Background(), Request{Prompt: "hi", Temperature: 0.5})

	var got []string
	for {
		piece, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, piece)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)

	req, ok := src.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "hi", req.Prompt)
	assert.Equal(t, 1, src.RequestCount())
}

func TestBackendFailureBecomesDiagnostic(t *testing.T) {
	src := NewScriptedSource("openai").
		AddTurn(ScriptedTurn{Chunks: []string{"partial "}, Err: errors.New("401 unauthorized")})

	text, err := Collect(src.Stream(context.Background(), Request{Prompt: "x"}))
	require.NoError(t, err)
	assert.Equal(t, "partial [openai-error] 401 unauthorized", text)
}

func TestScriptedSourceOutOfTurns(t *testing.T) {
	src := NewScriptedSource("mock")
	text, err := Collect(src.Stream(context.Background(), Request{}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "[mock-error] no more turns"), text)
}

func TestTextStreamCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewScriptedSource("slow").AddTurn(ScriptedTurn{Text: "never", Delay: time.Hour})
	stream := src.Stream(ctx, Request{})
	cancel()

	piece, err := stream.Recv()
	assert.Empty(t, piece)
	assert.Error(t, err)
	require.NoError(t, stream.Close())
}

func TestSliceStream(t *testing.T) {
	text, err := Collect(NewSliceStream("a", "", "b"))
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestChunkText(t *testing.T) {
	chunks := chunkText("The quick brown fox jumps over the lazy dog", 10)
	assert.Equal(t, "The quick brown fox jumps over the lazy dog", strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 10)
	}
	assert.Nil(t, chunkText("", 10))
}
