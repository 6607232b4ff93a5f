// Package retrieval keeps a per-session similarity index over uploaded text.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/samsaffron/chatstream/internal/embedding"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
	DefaultK            = 4
)

// Snippet is a retrieved chunk and its cosine similarity to the query.
type Snippet struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type entry struct {
	text   string
	vector []float64
}

// Index stores chunk vectors in memory, keyed by session. A nil embedder
// disables it: upserts report false and queries return nothing.
type Index struct {
	embedder embedding.Provider
	size     int
	overlap  int
	logger   *log.Logger

	mu       sync.RWMutex
	sessions map[string][]entry
}

type Option func(*Index)

func WithChunking(size, overlap int) Option {
	return func(ix *Index) {
		ix.size, ix.overlap = size, overlap
	}
}

func WithLogger(l *log.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

func NewIndex(embedder embedding.Provider, opts ...Option) *Index {
	ix := &Index{
		embedder: embedder,
		size:     DefaultChunkSize,
		overlap:  DefaultChunkOverlap,
		logger:   log.Default(),
		sessions: make(map[string][]entry),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Enabled reports whether an embedder is configured.
func (ix *Index) Enabled() bool {
	return ix != nil && ix.embedder != nil
}

// Upsert chunks and embeds text, appending it to the session's index.
// It reports whether anything was indexed.
func (ix *Index) Upsert(ctx context.Context, key, text string) bool {
	if !ix.Enabled() || strings.TrimSpace(text) == "" {
		return false
	}
	chunks := Chunk(text, ix.size, ix.overlap)
	vectors, err := ix.embedder.Embed(ctx, chunks)
	if err != nil {
		ix.logger.Warn("embedding failed, document not indexed", "session", key, "chunks", len(chunks), "err", err)
		return false
	}
	if len(vectors) != len(chunks) {
		ix.logger.Warn("embedding count mismatch", "session", key, "chunks", len(chunks), "vectors", len(vectors))
		return false
	}

	entries := make([]entry, len(chunks))
	for i := range chunks {
		entries[i] = entry{text: chunks[i], vector: vectors[i]}
	}
	ix.mu.Lock()
	ix.sessions[key] = append(ix.sessions[key], entries...)
	ix.mu.Unlock()
	ix.logger.Debug("indexed document", "session", key, "chunks", len(chunks))
	return true
}

// Query returns up to k snippets most similar to text, best first. It
// never fails: a missing index, an empty query or an embedding error all
// yield no snippets.
func (ix *Index) Query(ctx context.Context, key, text string, k int) []Snippet {
	if !ix.Enabled() || strings.TrimSpace(text) == "" || k <= 0 {
		return nil
	}
	ix.mu.RLock()
	entries := ix.sessions[key]
	ix.mu.RUnlock()
	if len(entries) == 0 {
		return nil
	}

	vectors, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil || len(vectors) != 1 {
		ix.logger.Warn("query embedding failed", "session", key, "err", err)
		return nil
	}
	query := vectors[0]

	snippets := make([]Snippet, len(entries))
	for i, e := range entries {
		snippets[i] = Snippet{Text: e.text, Score: embedding.CosineSimilarity(query, e.vector)}
	}
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > k {
		snippets = snippets[:k]
	}
	return snippets
}

// Clear drops the session's index.
func (ix *Index) Clear(key string) {
	if ix == nil {
		return
	}
	ix.mu.Lock()
	delete(ix.sessions, key)
	ix.mu.Unlock()
}

// Size returns the number of indexed chunks for a session.
func (ix *Index) Size(key string) int {
	if ix == nil {
		return 0
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.sessions[key])
}
