package process

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DraftSchema is the schema identifier a reply's embedded document must
// carry. This string is the wire contract with the generation prompt.
const DraftSchema = "ai_chat_process_template.v1"

// Extraction error codes. A failed extraction carries exactly one.
const (
	ErrMissingFence         = "MissingFence"
	ErrNonJSONFence         = "NonJsonFence"
	ErrFenceTooLarge        = "FenceTooLarge"
	ErrJSONParse            = "JsonParseError"
	ErrSchemaMismatch       = "SchemaMismatch"
	ErrSeqNotContinuous     = "ValidationFailed:SeqNotContinuous"
	ErrFirstBasisMustBeGoal = "ValidationFailed:FirstBasisMustBeGoal"
	ErrDependsOnOutOfRange  = "ValidationFailed:DependsOnOutOfRange"
	ErrDependsOnFuture      = "ValidationFailed:DependsOnFuture"
)

// maxFenceChars caps the candidate body, counted in characters so
// multi-byte text gets the same budget as ASCII.
const maxFenceChars = 32 * 1024

type ExtractResult struct {
	OK       bool
	Schema   string
	Document *StructuredDraftDocument
	Errors   []string
}

func extractFail(code string) ExtractResult {
	return ExtractResult{Errors: []string{code}}
}

// Matches ```tag\n ... ``` with an optional language tag, LF or CRLF.
var fenceRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+.-]*)[ \t]*\r?\n(.*?)```")

type fencedBlock struct {
	tag  string
	body string
}

func scanFences(text string) []fencedBlock {
	matches := fenceRe.FindAllStringSubmatch(text, -1)
	blocks := make([]fencedBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fencedBlock{tag: strings.ToLower(m[1]), body: m[2]})
	}
	return blocks
}

// Extract scans a freeform reply for the embedded structured document and
// validates it. Pure: no I/O, never panics; every failure mode maps to a
// named code.
//
// Candidate selection is last-wins with a json-tag override: models often
// emit explanatory fenced snippets before the final structured answer, so
// when the last block carries a non-json tag we fall back to the last
// json-tagged block if one exists.
func Extract(text string) ExtractResult {
	blocks := scanFences(text)
	if len(blocks) == 0 {
		return extractFail(ErrMissingFence)
	}

	candidate := blocks[len(blocks)-1]
	if candidate.tag != "" && candidate.tag != "json" {
		for i := len(blocks) - 1; i >= 0; i-- {
			if blocks[i].tag == "json" {
				candidate = blocks[i]
				break
			}
		}
	}

	body := strings.TrimSpace(candidate.body)
	if utf8.RuneCountInString(body) > maxFenceChars {
		return extractFail(ErrFenceTooLarge)
	}
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return extractFail(ErrNonJSONFence)
	}

	var doc StructuredDraftDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return extractFail(ErrJSONParse)
	}
	if doc.Schema != DraftSchema {
		return extractFail(ErrSchemaMismatch)
	}

	if doc.ProcessTemplateDraft != nil && len(doc.ProcessTemplateDraft.StepTemplates) > 0 {
		if code := validateSteps(doc.ProcessTemplateDraft.StepTemplates); code != "" {
			return extractFail(code)
		}
	}

	return ExtractResult{OK: true, Schema: doc.Schema, Document: &doc}
}

// validateSteps runs the structural invariants in their fixed order and
// returns the first violated code, or "".
func validateSteps(steps []StepTemplate) string {
	n := len(steps)

	// seq multiset must be exactly 1..N
	seen := make(map[int]bool, n)
	for _, st := range steps {
		if st.Seq < 1 || st.Seq > n || seen[st.Seq] {
			return ErrSeqNotContinuous
		}
		seen[st.Seq] = true
	}

	for _, st := range steps {
		if st.Seq == 1 && st.Basis != BasisGoal {
			return ErrFirstBasisMustBeGoal
		}
	}

	for _, st := range steps {
		for _, dep := range st.DependsOn {
			if dep < 1 || dep > n {
				return ErrDependsOnOutOfRange
			}
		}
	}

	// forward and self references are forbidden; seq order is the DAG's
	// total order
	for _, st := range steps {
		for _, dep := range st.DependsOn {
			if dep >= st.Seq {
				return ErrDependsOnFuture
			}
		}
	}

	return ""
}
