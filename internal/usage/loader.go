package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LoadResult holds entries read from the log and any per-file errors.
type LoadResult struct {
	Entries []LogEntry
	Errors  []error
}

// Load reads entries logged between since and until, inclusive by date.
// Only the files for those dates are opened.
func (l *Logger) Load(since, until time.Time) LoadResult {
	var result LoadResult
	if _, err := os.Stat(l.baseDir); os.IsNotExist(err) {
		return result
	}

	since = truncateDay(since)
	for d := since; !d.After(until); d = d.AddDate(0, 0, 1) {
		path := filepath.Join(l.baseDir, d.Format("2006-01-02")+".jsonl")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		entries, errs := loadFile(path)
		result.Entries = append(result.Entries, entries...)
		result.Errors = append(result.Errors, errs...)
	}
	return result
}

func loadFile(path string) ([]LogEntry, []error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, []error{err}
	}
	defer file.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip invalid lines
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, []error{err}
	}
	return entries, nil
}

// Summary aggregates entries per backend/model pair.
type Summary struct {
	Backend     string
	Model       string
	Turns       int
	OutputChars int
	DurationMs  int64
}

// Summarize groups entries by backend and model, sorted by turn count.
func Summarize(entries []LogEntry) []Summary {
	byKey := make(map[string]*Summary)
	for _, e := range entries {
		key := e.Backend + "\x00" + e.Model
		s, ok := byKey[key]
		if !ok {
			s = &Summary{Backend: e.Backend, Model: e.Model}
			byKey[key] = s
		}
		s.Turns++
		s.OutputChars += e.OutputChars
		s.DurationMs += e.DurationMs
	}

	out := make([]Summary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Turns != out[j].Turns {
			return out[i].Turns > out[j].Turns
		}
		if out[i].Backend != out[j].Backend {
			return out[i].Backend < out[j].Backend
		}
		return out[i].Model < out[j].Model
	})
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
