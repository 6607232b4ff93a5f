// Package session holds per-session in-memory state: uploaded raw context,
// backend preferences and a bounded turn history. Entries are created on
// first access and live for the lifetime of the process.
package session

import (
	"sync"
	"time"
)

// DefaultMaxHistory is the number of turns kept per session.
const DefaultMaxHistory = 50

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable history entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Seq orders turns with equal timestamps.
	Seq uint64 `json:"-"`
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	Key     string
	Context string
	Backend string
	Model   string
	History []Turn
}

type entry struct {
	mu      sync.Mutex
	context string
	backend string
	model   string
	history []Turn
}

// Store is safe for concurrent use. Appends to the same key are
// serialized; their relative order is the order they acquire the lock.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	maxHistory int
	seq        uint64
	now        func() time.Time
}

func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		sessions:   make(map[string]*entry),
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

func (s *Store) get(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		e = &entry{}
		s.sessions[key] = e
	}
	return e
}

func (s *Store) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Snapshot returns a copy of the session, creating it if needed.
func (s *Store) Snapshot(key string) Snapshot {
	e := s.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Key:     key,
		Context: e.context,
		Backend: e.backend,
		Model:   e.model,
		History: append([]Turn(nil), e.history...),
	}
}

// SetContext replaces the raw uploaded context. Last write wins.
func (s *Store) SetContext(key, text string) {
	e := s.get(key)
	e.mu.Lock()
	e.context = text
	e.mu.Unlock()
}

func (s *Store) Context(key string) string {
	e := s.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.context
}

func (s *Store) SetPreferences(key, backend, model string) {
	e := s.get(key)
	e.mu.Lock()
	e.backend, e.model = backend, model
	e.mu.Unlock()
}

// Preferences returns the stored backend and model; empty means unset.
func (s *Store) Preferences(key string) (backend, model string) {
	e := s.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend, e.model
}

// Append records a turn, evicting the oldest turns beyond the cap.
func (s *Store) Append(key string, role Role, content string) Turn {
	e := s.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	turn := Turn{Role: role, Content: content, Timestamp: s.now(), Seq: s.nextSeq()}
	e.history = append(e.history, turn)
	if over := len(e.history) - s.maxHistory; over > 0 {
		e.history = append([]Turn(nil), e.history[over:]...)
	}
	return turn
}

// History returns the last limit turns, oldest first. limit <= 0 returns
// all of them.
func (s *Store) History(key string, limit int) []Turn {
	e := s.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history
	if limit > 0 && limit < len(h) {
		h = h[len(h)-limit:]
	}
	return append([]Turn(nil), h...)
}

func (s *Store) ClearHistory(key string) {
	e := s.get(key)
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

// Clear empties context and history but keeps preferences.
func (s *Store) Clear(key string) {
	e := s.get(key)
	e.mu.Lock()
	e.context = ""
	e.history = nil
	e.mu.Unlock()
}

// Keys returns the keys of all sessions seen so far.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}
