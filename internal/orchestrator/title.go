package orchestrator

import (
	"regexp"
	"strings"

	"github.com/samsaffron/chatstream/internal/store"
)

const (
	titleMaxWords = 10
	titleMaxRunes = 80
)

var sentenceEnd = regexp.MustCompile(`[.?!]\s`)

// DeriveTitle makes a short conversation title from the first prompt:
// the first sentence, at most ten words and eighty characters, with "..."
// appended when anything was cut.
func DeriveTitle(prompt string) string {
	text := strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(prompt))
	if text == "" {
		return store.DefaultTitle
	}

	cut := false
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
		cut = true
	}
	if words := strings.Fields(text); len(words) > titleMaxWords {
		text = strings.Join(words[:titleMaxWords], " ")
		cut = true
	}
	if runes := []rune(text); len(runes) > titleMaxRunes {
		text = strings.TrimRight(string(runes[:titleMaxRunes]), " \t")
		cut = true
	}

	text = strings.TrimSpace(text)
	if cut {
		text = strings.TrimSpace(strings.TrimRight(text, ".…"))
	}
	if text == "" {
		return store.DefaultTitle
	}
	if cut {
		text += "..."
	}
	return text
}
