package llm

import (
	"regexp"
	"strings"
)

func chooseModel(requested, fallback string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return fallback
}

// wordTokenPattern matches whitespace runs, punctuation/symbol runs and word runs.
var wordTokenPattern = regexp.MustCompile(`\s+|[^\p{L}\p{N}_\s]+|[\p{L}\p{N}_]+`)

// WordTokens splits text into word-level increments, keeping whitespace and
// punctuation as their own tokens so that joining them restores the input.
func WordTokens(text string) []string {
	if text == "" {
		return nil
	}
	return wordTokenPattern.FindAllString(text, -1)
}
