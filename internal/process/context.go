package process

import (
	"strings"

	"github.com/flowkan/process-ai/internal/ai"
)

type ContextOptions struct {
	// WindowSize caps how many history entries survive the window cut.
	WindowSize int
	// MaxTokensBudget, when positive, trims oldest entries until the
	// estimated token total fits. Zero disables trimming.
	MaxTokensBudget int
	// SystemPrompt, when non-empty, is prepended as a system message.
	SystemPrompt string
}

// estimateTokens is a cheap byte-length proxy: ceil(len/4).
func estimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// BuildContext assembles the bounded, role-tagged message list for one
// generation call. Only user/assistant history survives (role matching
// is case-insensitive); stored system messages are dropped because a
// fresh system prompt is supplied separately. Ordering is chronological
// with the optional system message first; no entry is ever reordered.
func BuildContext(history []Message, opts ContextOptions) []ai.Message {
	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = 20
	}

	filtered := make([]Message, 0, len(history))
	for _, m := range history {
		switch strings.ToLower(m.Role) {
		case RoleUser, RoleAssistant:
			filtered = append(filtered, m)
		}
	}

	start := 0
	if len(filtered) > windowSize {
		start = len(filtered) - windowSize
	}

	out := make([]ai.Message, 0, windowSize+1)
	if opts.SystemPrompt != "" {
		out = append(out, ai.Message{Role: RoleSystem, Content: opts.SystemPrompt})
	}
	for _, m := range filtered[start:] {
		out = append(out, ai.Message{Role: strings.ToLower(m.Role), Content: m.Content})
	}

	// Budget trim: drop the oldest non-system entry while over budget,
	// but keep the system message and a floor of one prior exchange.
	if opts.MaxTokensBudget > 0 {
		total := 0
		for _, m := range out {
			total += estimateTokens(m.Content)
		}
		for total > opts.MaxTokensBudget && len(out) > 2 {
			idx := 0
			if out[0].Role == RoleSystem {
				idx = 1
			}
			total -= estimateTokens(out[idx].Content)
			out = append(out[:idx], out[idx+1:]...)
		}
	}

	// Floor guarantee: never hand back an empty or single-orphan context
	// while conversation exists.
	if len(out) < 2 && len(filtered) > 0 {
		out = append(out, ai.Message{Role: RoleUser, Content: filtered[len(filtered)-1].Content})
	}

	return out
}
