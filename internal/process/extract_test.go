package process

import (
	"strings"
	"testing"
)

const validDraftDoc = `{"schema":"ai_chat_process_template.v1","answer":"here you go","process_template_draft":{"name":"Onboarding","stepTemplates":[{"seq":1,"name":"s1","basis":"goal","offsetDays":0},{"seq":2,"name":"s2","basis":"prev","offsetDays":1,"dependsOn":[1]}]}}`

func fence(tag, body string) string {
	return "```" + tag + "\n" + body + "\n```"
}

func assertFail(t *testing.T, text, wantCode string) {
	t.Helper()
	res := Extract(text)
	if res.OK {
		t.Fatalf("expected failure %s, got ok", wantCode)
	}
	if len(res.Errors) != 1 || res.Errors[0] != wantCode {
		t.Fatalf("expected errors [%s], got %v", wantCode, res.Errors)
	}
}

func TestExtract_MissingFence(t *testing.T) {
	assertFail(t, "no fenced block here at all", ErrMissingFence)
}

func TestExtract_ValidTwoSteps(t *testing.T) {
	res := Extract("Sure, here is the draft:\n" + fence("json", validDraftDoc))
	if !res.OK {
		t.Fatalf("expected ok, got %v", res.Errors)
	}
	if res.Schema != DraftSchema {
		t.Fatalf("unexpected schema %q", res.Schema)
	}
	steps := res.Document.ProcessTemplateDraft.StepTemplates
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
}

func TestExtract_CRLF(t *testing.T) {
	text := "```json\r\n" + validDraftDoc + "\r\n```"
	res := Extract(text)
	if !res.OK {
		t.Fatalf("expected ok with CRLF endings, got %v", res.Errors)
	}
}

func TestExtract_LastBlockWins(t *testing.T) {
	bad := `{"schema":"wrong"}`
	text := fence("", bad) + "\n\n" + fence("", validDraftDoc)
	res := Extract(text)
	if !res.OK {
		t.Fatalf("expected the last block to win, got %v", res.Errors)
	}
}

func TestExtract_JSONTaggedBlockWinsOverTrailingSnippet(t *testing.T) {
	text := fence("json", validDraftDoc) + "\n\nAnd to automate it:\n" + fence("python", "print('hi')")
	res := Extract(text)
	if !res.OK {
		t.Fatalf("expected json-tagged block to win, got %v", res.Errors)
	}
	if len(res.Document.ProcessTemplateDraft.StepTemplates) != 2 {
		t.Fatalf("picked the wrong block")
	}
}

func TestExtract_FenceTooLarge(t *testing.T) {
	huge := "{" + strings.Repeat(" ", 33*1024) + "}"
	assertFail(t, fence("json", huge), ErrFenceTooLarge)
}

func TestExtract_FenceSizeCountedInCharacters(t *testing.T) {
	// over the cap in bytes but well under it in characters
	pad := strings.Repeat("步", 15000)
	doc := `{"schema":"ai_chat_process_template.v1","answer":"` + pad + `"}`
	res := Extract(fence("json", doc))
	if !res.OK {
		t.Fatalf("multi-byte text within the character cap must pass, got %v", res.Errors)
	}
}

func TestExtract_NonJSONFence(t *testing.T) {
	assertFail(t, fence("json", "not an object"), ErrNonJSONFence)
}

func TestExtract_JSONParseError(t *testing.T) {
	assertFail(t, fence("json", `{"schema": "x",}`), ErrJSONParse)
}

func TestExtract_SchemaMismatch(t *testing.T) {
	assertFail(t, fence("json", `{"schema":"other.v2","answer":"hi"}`), ErrSchemaMismatch)
}

func TestExtract_EmptyStepsIsValid(t *testing.T) {
	doc := `{"schema":"ai_chat_process_template.v1","answer":"hi","process_template_draft":{"stepTemplates":[]}}`
	res := Extract(fence("json", doc))
	if !res.OK {
		t.Fatalf("empty stepTemplates should be valid, got %v", res.Errors)
	}
}

func TestExtract_SeqNotContinuous(t *testing.T) {
	doc := `{"schema":"ai_chat_process_template.v1","process_template_draft":{"stepTemplates":[{"seq":1,"name":"a","basis":"goal","offsetDays":0},{"seq":3,"name":"b","basis":"prev","offsetDays":0}]}}`
	assertFail(t, fence("json", doc), ErrSeqNotContinuous)
}

func TestExtract_DuplicateSeq(t *testing.T) {
	doc := `{"schema":"ai_chat_process_template.v1","process_template_draft":{"stepTemplates":[{"seq":1,"name":"a","basis":"goal","offsetDays":0},{"seq":1,"name":"b","basis":"prev","offsetDays":0}]}}`
	assertFail(t, fence("json", doc), ErrSeqNotContinuous)
}

func TestExtract_FirstBasisMustBeGoal(t *testing.T) {
	doc := `{"schema":"ai_chat_process_template.v1","process_template_draft":{"stepTemplates":[{"seq":1,"name":"a","basis":"prev","offsetDays":0}]}}`
	assertFail(t, fence("json", doc), ErrFirstBasisMustBeGoal)
}

func TestExtract_DependsOnOutOfRange(t *testing.T) {
	doc := `{"schema":"ai_chat_process_template.v1","process_template_draft":{"stepTemplates":[{"seq":1,"name":"a","basis":"goal","offsetDays":0},{"seq":2,"name":"b","basis":"prev","offsetDays":0,"dependsOn":[5]}]}}`
	assertFail(t, fence("json", doc), ErrDependsOnOutOfRange)
}

func TestExtract_DependsOnFuture(t *testing.T) {
	doc := `{"schema":"ai_chat_process_template.v1","process_template_draft":{"stepTemplates":[{"seq":1,"name":"a","basis":"goal","offsetDays":0},{"seq":2,"name":"b","basis":"prev","offsetDays":0,"dependsOn":[2]}]}}`
	assertFail(t, fence("json", doc), ErrDependsOnFuture)
}

func TestExtract_Deterministic(t *testing.T) {
	text := "intro\n" + fence("json", validDraftDoc)
	a := Extract(text)
	b := Extract(text)
	if a.OK != b.OK || a.Schema != b.Schema {
		t.Fatalf("extraction must be deterministic")
	}
}
