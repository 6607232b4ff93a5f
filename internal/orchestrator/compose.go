package orchestrator

import (
	"fmt"
	"strings"

	"github.com/samsaffron/chatstream/internal/retrieval"
)

// DefaultInstructions lead every prompt that carries context.
const DefaultInstructions = "You are a helpful assistant. When answering, rely primarily on the provided context. " +
	"If the answer cannot be found in the context, say you don't know."

// HistoryLine is one prior turn as shown to the model.
type HistoryLine struct {
	Role    string
	Content string
}

// PromptInput is everything the composer needs for one turn.
type PromptInput struct {
	Prompt     string
	RawContext string
	Snippets   []retrieval.Snippet
	History    []HistoryLine
}

// Compose builds the effective prompt. Context sections appear in a fixed
// order and only when non-empty. With no context at all the result is the
// prompt itself.
func Compose(in PromptInput) string {
	var sections []string
	if in.RawContext != "" {
		sections = append(sections, "Uploaded context (raw):\n"+in.RawContext)
	}
	if len(in.Snippets) > 0 {
		blocks := make([]string, len(in.Snippets))
		for i, s := range in.Snippets {
			blocks[i] = fmt.Sprintf("[Doc %d | score=%.3f]\n%s", i+1, s.Score, s.Text)
		}
		sections = append(sections, "Top relevant snippets from uploaded files:\n"+strings.Join(blocks, "\n\n"))
	}
	if len(in.History) > 0 {
		lines := make([]string, len(in.History))
		for i, h := range in.History {
			lines[i] = capitalize(h.Role) + ": " + h.Content
		}
		sections = append(sections, "Recent conversation:\n"+strings.Join(lines, "\n"))
	}

	if len(sections) == 0 {
		return in.Prompt
	}
	return DefaultInstructions + "\n\nContext:\n" + strings.Join(sections, "\n\n") +
		"\n\nUser: " + in.Prompt + "\nAssistant:"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
