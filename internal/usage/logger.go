// Package usage keeps a daily JSONL log of completed assistant turns.
package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogEntry describes one persisted assistant turn.
type LogEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	SessionKey     string    `json:"session_key"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	Backend        string    `json:"backend"`
	Model          string    `json:"model"`
	PromptChars    int       `json:"prompt_chars"`
	OutputChars    int       `json:"output_chars"`
	Increments     int       `json:"increments"`
	DurationMs     int64     `json:"duration_ms"`
}

// Logger writes usage entries to daily JSONL files.
type Logger struct {
	baseDir string
	mu      sync.Mutex
}

func NewLogger(dir string) *Logger {
	return &Logger{baseDir: dir}
}

// Dir returns the directory holding the daily files.
func (l *Logger) Dir() string {
	return l.baseDir
}

// Log appends entry to the file for its date.
func (l *Logger) Log(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.baseDir, 0755); err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	filename := filepath.Join(l.baseDir, entry.Timestamp.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return w.Flush()
}
