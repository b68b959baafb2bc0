// Package requirements derives requirement entries from a conversation.
// Runs in the background worker; its output feeds the completeness score.
package requirements

import (
	"strings"
	"time"

	"github.com/flowkan/process-ai/internal/process"
)

// markers flag user sentences that likely state a constraint or need.
var markers = []string{
	"must", "need", "require", "should", "deadline",
	"approve", "approval", "review", "sign-off", "depends on",
}

const maxRequirements = 30

// ExtractFromConversation scans user messages for constraint-bearing
// sentences and folds in the session context facts. Deterministic for a
// given conversation snapshot (timestamps aside).
func ExtractFromConversation(msgs []process.Message, sessionContext map[string]string) []process.Requirement {
	now := time.Now()
	out := make([]process.Requirement, 0, 8)

	for key, value := range sessionContext {
		if strings.TrimSpace(value) == "" {
			continue
		}
		out = append(out, process.Requirement{
			Key:         "context:" + key,
			Value:       value,
			Source:      "session_context",
			ExtractedAt: now,
		})
	}

	for _, m := range msgs {
		if !strings.EqualFold(m.Role, process.RoleUser) {
			continue
		}
		for _, sentence := range splitSentences(m.Content) {
			if len(out) >= maxRequirements {
				return out
			}
			lower := strings.ToLower(sentence)
			for _, marker := range markers {
				if strings.Contains(lower, marker) {
					out = append(out, process.Requirement{
						Key:         "stated:" + marker,
						Value:       sentence,
						Source:      "conversation",
						ExtractedAt: now,
					})
					break
				}
			}
		}
	}

	return out
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '\n', '；', '。':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
