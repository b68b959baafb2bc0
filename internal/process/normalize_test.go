package process

import (
	"math"
	"strings"
	"testing"
)

func draftDoc(steps ...StepTemplate) *StructuredDraftDocument {
	return &StructuredDraftDocument{
		Schema: DraftSchema,
		Answer: "ok",
		ProcessTemplateDraft: &ProcessTemplateDraft{
			Name:          "Hiring",
			StepTemplates: steps,
		},
	}
}

func TestToGeneratedTemplate_CopiesWithoutClamping(t *testing.T) {
	doc := draftDoc(
		StepTemplate{Seq: 1, Name: "kickoff", Basis: BasisGoal, OffsetDays: -400},
		StepTemplate{Seq: 2, Name: "  review  ", Basis: BasisPrev, OffsetDays: 3, DependsOn: []int{1}},
	)

	tpl := ToGeneratedTemplate(doc)
	if tpl.Name != "Hiring" {
		t.Fatalf("unexpected name %q", tpl.Name)
	}
	if len(tpl.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(tpl.Steps))
	}
	// no clamping at this stage
	if tpl.Steps[0].Duration != -400 {
		t.Fatalf("expected duration -400, got %d", tpl.Steps[0].Duration)
	}
	if tpl.Steps[1].Name != "review" {
		t.Fatalf("step name should be trimmed, got %q", tpl.Steps[1].Name)
	}
	if len(tpl.Steps[1].Dependencies) != 1 || tpl.Steps[1].Dependencies[0] != 1 {
		t.Fatalf("dependencies should be copied verbatim: %v", tpl.Steps[1].Dependencies)
	}
}

func TestToGeneratedTemplate_DefaultsNonFiniteDuration(t *testing.T) {
	doc := draftDoc(StepTemplate{Seq: 1, Name: "a", Basis: BasisGoal, OffsetDays: math.NaN()})
	tpl := ToGeneratedTemplate(doc)
	if tpl.Steps[0].Duration != 0 {
		t.Fatalf("non-finite offset should default to 0, got %d", tpl.Steps[0].Duration)
	}
}

func TestToGeneratedTemplate_FallbackNames(t *testing.T) {
	doc := draftDoc(StepTemplate{Seq: 2, Name: "   ", Basis: BasisGoal, OffsetDays: 0})
	doc.ProcessTemplateDraft.Name = ""

	tpl := ToGeneratedTemplate(doc)
	if !strings.HasPrefix(tpl.Name, "AI Draft (") {
		t.Fatalf("expected fallback template name, got %q", tpl.Name)
	}
	if tpl.Steps[0].Name != "Step 2" {
		t.Fatalf("expected seq-based step name, got %q", tpl.Steps[0].Name)
	}
}

func TestToGeneratedTemplate_NilDocument(t *testing.T) {
	tpl := ToGeneratedTemplate(nil)
	if tpl == nil || len(tpl.Steps) != 0 {
		t.Fatalf("nil document should yield an empty template")
	}
	if tpl.Name == "" {
		t.Fatalf("template name must never be empty")
	}
}

func TestToCreateRequest_ClampsAndForcesBasis(t *testing.T) {
	doc := draftDoc(
		StepTemplate{Seq: 1, Name: "a", Basis: BasisPrev, OffsetDays: 1000},
		StepTemplate{Seq: 2, Name: "b", Basis: BasisGoal, OffsetDays: -1000, DependsOn: []int{1}},
	)

	req := ToCreateRequest(doc)
	if req.StepTemplates[0].OffsetDays != 365 {
		t.Fatalf("expected clamp to 365, got %d", req.StepTemplates[0].OffsetDays)
	}
	if req.StepTemplates[1].OffsetDays != -365 {
		t.Fatalf("expected clamp to -365, got %d", req.StepTemplates[1].OffsetDays)
	}
	// position, not the source basis, is authoritative
	if req.StepTemplates[0].Basis != BasisGoal {
		t.Fatalf("first step basis must be goal, got %q", req.StepTemplates[0].Basis)
	}
	if req.StepTemplates[1].Basis != BasisPrev {
		t.Fatalf("later step basis must be prev, got %q", req.StepTemplates[1].Basis)
	}
	for _, st := range req.StepTemplates {
		if st.RequiredArtifacts == nil || len(st.RequiredArtifacts) != 0 {
			t.Fatalf("requiredArtifacts must be an empty list")
		}
	}
}

func TestToCreateRequest_ClampsBeyondIntRange(t *testing.T) {
	doc := draftDoc(
		StepTemplate{Seq: 1, Name: "a", Basis: BasisGoal, OffsetDays: 1e300},
		StepTemplate{Seq: 2, Name: "b", Basis: BasisPrev, OffsetDays: -1e300},
	)

	req := ToCreateRequest(doc)
	if req.StepTemplates[0].OffsetDays != 365 {
		t.Fatalf("huge positive offset must clamp to 365, got %d", req.StepTemplates[0].OffsetDays)
	}
	if req.StepTemplates[1].OffsetDays != -365 {
		t.Fatalf("huge negative offset must clamp to -365, got %d", req.StepTemplates[1].OffsetDays)
	}
}

func TestToCreateRequest_DefaultsMissingSeq(t *testing.T) {
	doc := draftDoc(
		StepTemplate{Name: "a", Basis: BasisGoal, OffsetDays: 0},
		StepTemplate{Name: "b", Basis: BasisPrev, OffsetDays: 1},
	)

	req := ToCreateRequest(doc)
	if req.StepTemplates[0].Seq != 1 || req.StepTemplates[1].Seq != 2 {
		t.Fatalf("missing seq should default to position, got %d and %d",
			req.StepTemplates[0].Seq, req.StepTemplates[1].Seq)
	}
}

func TestToCreateRequestFromTemplate_Idempotent(t *testing.T) {
	doc := draftDoc(
		StepTemplate{Seq: 1, Name: "a", Basis: BasisGoal, OffsetDays: 900},
		StepTemplate{Seq: 2, Name: "b", Basis: BasisPrev, OffsetDays: -12, DependsOn: []int{1}},
	)

	first := ToCreateRequest(doc)

	// feed the already-clamped values back through the template mapping
	tpl := &GeneratedTemplate{Name: first.Name}
	for _, st := range first.StepTemplates {
		tpl.Steps = append(tpl.Steps, GeneratedStep{
			Name:         st.Name,
			Duration:     st.OffsetDays,
			Dependencies: st.DependsOn,
		})
	}

	second := ToCreateRequestFromTemplate(tpl)
	if second.Name != first.Name {
		t.Fatalf("name changed on re-run: %q vs %q", second.Name, first.Name)
	}
	for i := range first.StepTemplates {
		a, b := first.StepTemplates[i], second.StepTemplates[i]
		if a.Seq != b.Seq || a.Basis != b.Basis || a.OffsetDays != b.OffsetDays {
			t.Fatalf("step %d changed on re-run: %+v vs %+v", i, a, b)
		}
	}
}
