package process

import (
	"strings"
	"testing"
)

func msg(role, content string) Message {
	return Message{Role: role, Content: content}
}

func TestBuildContext_WindowKeepsMostRecent(t *testing.T) {
	var history []Message
	for i := 0; i < 30; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, msg(role, strings.Repeat("x", i+1)))
	}

	out := BuildContext(history, ContextOptions{WindowSize: 10})
	if len(out) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(out))
	}
	// most recent entry survives in original order
	if out[len(out)-1].Content != history[len(history)-1].Content {
		t.Fatalf("last entry should be the newest message")
	}
	if out[0].Content != history[len(history)-10].Content {
		t.Fatalf("first entry should be the oldest inside the window")
	}
}

func TestBuildContext_DropsSystemAndInternalRoles(t *testing.T) {
	history := []Message{
		msg("system", "old system prompt"),
		msg("User", "hello"),
		msg("ASSISTANT", "hi"),
		msg("internal", "bookkeeping"),
	}

	out := BuildContext(history, ContextOptions{WindowSize: 10})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0].Role != RoleUser || out[1].Role != RoleAssistant {
		t.Fatalf("unexpected roles: %+v", out)
	}
}

func TestBuildContext_SystemPromptFirst(t *testing.T) {
	history := []Message{msg(RoleUser, "hello"), msg(RoleAssistant, "hi")}

	out := BuildContext(history, ContextOptions{WindowSize: 10, SystemPrompt: "be helpful"})
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if out[0].Role != RoleSystem || out[0].Content != "be helpful" {
		t.Fatalf("system prompt must come first, got %+v", out[0])
	}
}

func TestBuildContext_BudgetTrimPreservesSystemAndFloor(t *testing.T) {
	big := strings.Repeat("a", 400) // ~100 tokens each
	history := []Message{
		msg(RoleUser, big),
		msg(RoleAssistant, big),
		msg(RoleUser, big),
		msg(RoleAssistant, big),
	}

	out := BuildContext(history, ContextOptions{
		WindowSize:      10,
		MaxTokensBudget: 50,
		SystemPrompt:    "sys",
	})

	// budget is unsatisfiable, but the system message and one prior
	// exchange must survive
	if len(out) != 2 {
		t.Fatalf("expected 2 entries after trim, got %d", len(out))
	}
	if out[0].Role != RoleSystem {
		t.Fatalf("system message must never be trimmed")
	}
	if out[1].Content != big {
		t.Fatalf("newest message must survive trimming")
	}
}

func TestBuildContext_BudgetTrimDropsOldestFirst(t *testing.T) {
	history := []Message{
		msg(RoleUser, strings.Repeat("a", 400)),
		msg(RoleAssistant, strings.Repeat("b", 40)),
		msg(RoleUser, strings.Repeat("c", 40)),
	}

	out := BuildContext(history, ContextOptions{WindowSize: 10, MaxTokensBudget: 30})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if strings.Contains(out[0].Content, "a") {
		t.Fatalf("oldest message should have been dropped first")
	}
}

func TestBuildContext_SingleMessageHistory(t *testing.T) {
	history := []Message{msg(RoleUser, "only one")}

	out := BuildContext(history, ContextOptions{WindowSize: 10})
	if len(out) == 0 {
		t.Fatalf("context must not be empty when conversation exists")
	}
	last := out[len(out)-1]
	if last.Role != RoleUser || last.Content != "only one" {
		t.Fatalf("last entry should be the lone user message, got %+v", last)
	}
}

func TestBuildContext_EmptyHistory(t *testing.T) {
	out := BuildContext(nil, ContextOptions{WindowSize: 10})
	if len(out) != 0 {
		t.Fatalf("expected empty context, got %d entries", len(out))
	}
}
