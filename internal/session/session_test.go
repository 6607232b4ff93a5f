package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryIsBounded(t *testing.T) {
	s := NewStore(50)
	for i := range 51 {
		s.Append("k", RoleUser, fmt.Sprintf("turn-%d", i))
	}

	h := s.History("k", 0)
	require.Len(t, h, 50)
	assert.Equal(t, "turn-1", h[0].Content, "oldest turn evicted")
	assert.Equal(t, "turn-50", h[49].Content)
}

func TestHistoryLimitReturnsTail(t *testing.T) {
	s := NewStore(0)
	for i := range 5 {
		s.Append("k", RoleUser, fmt.Sprintf("t%d", i))
	}
	h := s.History("k", 2)
	require.Len(t, h, 2)
	assert.Equal(t, "t3", h[0].Content)
	assert.Equal(t, "t4", h[1].Content)
	assert.Less(t, h[0].Seq, h[1].Seq)

	assert.Len(t, s.History("k", 99), 5)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(10)
	s.Append("k", RoleUser, "hello")
	snap := s.Snapshot("k")
	snap.History[0].Content = "mutated"
	assert.Equal(t, "hello", s.History("k", 0)[0].Content)
}

func TestLazyCreationAndDefaults(t *testing.T) {
	s := NewStore(10)
	snap := s.Snapshot("new")
	assert.Equal(t, "new", snap.Key)
	assert.Empty(t, snap.Context)
	assert.Empty(t, snap.History)
	backend, model := s.Preferences("new")
	assert.Empty(t, backend)
	assert.Empty(t, model)
	assert.Contains(t, s.Keys(), "new")
}

func TestClearKeepsPreferences(t *testing.T) {
	s := NewStore(10)
	s.SetContext("k", "doc text")
	s.SetPreferences("k", "ollama", "llama3.2")
	s.Append("k", RoleUser, "hi")

	s.Clear("k")

	assert.Empty(t, s.Context("k"))
	assert.Empty(t, s.History("k", 0))
	backend, model := s.Preferences("k")
	assert.Equal(t, "ollama", backend)
	assert.Equal(t, "llama3.2", model)
}

func TestClearHistoryKeepsContext(t *testing.T) {
	s := NewStore(10)
	s.SetContext("k", "doc")
	s.Append("k", RoleAssistant, "answer")
	s.ClearHistory("k")
	assert.Equal(t, "doc", s.Context("k"))
	assert.Empty(t, s.History("k", 0))
}

func TestConcurrentAppends(t *testing.T) {
	s := NewStore(1000)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				s.Append("shared", RoleUser, fmt.Sprintf("%d-%d", i, j))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.History("shared", 0), 200)
}
