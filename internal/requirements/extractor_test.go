package requirements

import (
	"testing"

	"github.com/flowkan/process-ai/internal/process"
)

func TestExtractFromConversation(t *testing.T) {
	msgs := []process.Message{
		{Role: process.RoleUser, Content: "We must finish hiring before Q3. The office tour is optional."},
		{Role: process.RoleAssistant, Content: "You must consider compliance."}, // assistant text is ignored
		{Role: process.RoleUser, Content: "Each offer needs approval from the VP."},
	}
	ctx := map[string]string{"industry": "construction", "goal": ""}

	reqs := ExtractFromConversation(msgs, ctx)

	var contextReqs, stated int
	for _, r := range reqs {
		switch r.Source {
		case "session_context":
			contextReqs++
		case "conversation":
			stated++
		}
	}
	if contextReqs != 1 {
		t.Fatalf("blank context values must be skipped, got %d context requirements", contextReqs)
	}
	if stated < 2 {
		t.Fatalf("expected at least 2 stated requirements, got %d", stated)
	}
	for _, r := range reqs {
		if r.Value == "" || r.Key == "" {
			t.Fatalf("empty requirement emitted: %+v", r)
		}
	}
}

func TestExtractFromConversation_Empty(t *testing.T) {
	if reqs := ExtractFromConversation(nil, nil); len(reqs) != 0 {
		t.Fatalf("expected no requirements, got %d", len(reqs))
	}
}

func TestExtractFromConversation_Capped(t *testing.T) {
	var msgs []process.Message
	for i := 0; i < 100; i++ {
		msgs = append(msgs, process.Message{Role: process.RoleUser, Content: "We must do this."})
	}
	reqs := ExtractFromConversation(msgs, nil)
	if len(reqs) > 30 {
		t.Fatalf("requirement list must be capped, got %d", len(reqs))
	}
}
