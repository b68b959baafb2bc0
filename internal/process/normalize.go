package process

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"
)

// Offset bounds for normalized outputs, in days.
const (
	minOffsetDays = -365
	maxOffsetDays = 365
)

func fallbackDraftName() string {
	return "AI Draft (" + time.Now().Local().Format("2006-01-02 15:04") + ")"
}

func draftName(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallbackDraftName()
}

func stepName(name string, seq, index int) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if seq > 0 {
		return fmt.Sprintf("Step %d", seq)
	}
	return fmt.Sprintf("Step %d", index+1)
}

// clampOffset degrades rather than fails: non-finite input becomes 0,
// out-of-range input snaps to the nearest bound. Bounds are checked on
// the float, since converting a value beyond the int range first would
// give an architecture-defined result.
func clampOffset(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > maxOffsetDays {
		return maxOffsetDays
	}
	if v < minOffsetDays {
		return minOffsetDays
	}
	return int(v)
}

func positionalBasis(index int) string {
	if index == 0 {
		return BasisGoal
	}
	return BasisPrev
}

// ToGeneratedTemplate maps an extracted document into the internal draft
// shape. Durations are copied without clamping; dependencies verbatim.
// Total: a nil document or draft yields an empty named template.
func ToGeneratedTemplate(doc *StructuredDraftDocument) *GeneratedTemplate {
	tpl := &GeneratedTemplate{
		Name:  fallbackDraftName(),
		Steps: []GeneratedStep{},
		Metadata: TemplateMetadata{
			GeneratedAt: time.Now(),
			Sources:     []string{"ai_chat"},
		},
	}
	if doc == nil || doc.ProcessTemplateDraft == nil {
		return tpl
	}

	draft := doc.ProcessTemplateDraft
	tpl.Name = draftName(draft.Name)

	for i, st := range draft.StepTemplates {
		duration := 0
		if math.IsNaN(st.OffsetDays) || math.IsInf(st.OffsetDays, 0) {
			log.Printf("normalize: defaulted non-finite offsetDays step=%d", i+1)
		} else {
			duration = int(st.OffsetDays)
		}

		deps := make([]int, 0, len(st.DependsOn))
		deps = append(deps, st.DependsOn...)

		tpl.Steps = append(tpl.Steps, GeneratedStep{
			Name:         stepName(st.Name, st.Seq, i),
			Duration:     duration,
			Dependencies: deps,
		})
	}
	return tpl
}

// ToCreateRequest maps an extracted document straight into the
// persistence-ready shape. OffsetDays is clamped, basis is recomputed
// from the emitted position, and seq defaults to index+1 when the source
// did not carry a usable one.
func ToCreateRequest(doc *StructuredDraftDocument) *CreateTemplateRequest {
	req := &CreateTemplateRequest{
		Name:          fallbackDraftName(),
		StepTemplates: []CreateStepTemplate{},
	}
	if doc == nil || doc.ProcessTemplateDraft == nil {
		return req
	}

	draft := doc.ProcessTemplateDraft
	req.Name = draftName(draft.Name)

	for i, st := range draft.StepTemplates {
		offset := clampOffset(st.OffsetDays)
		if float64(offset) != st.OffsetDays {
			log.Printf("normalize: clamped offsetDays step=%d from=%v to=%d", i+1, st.OffsetDays, offset)
		}

		seq := st.Seq
		if seq <= 0 {
			seq = i + 1
		}

		deps := make([]int, 0, len(st.DependsOn))
		deps = append(deps, st.DependsOn...)

		req.StepTemplates = append(req.StepTemplates, CreateStepTemplate{
			Seq:               seq,
			Name:              stepName(st.Name, st.Seq, i),
			Basis:             positionalBasis(i),
			OffsetDays:        offset,
			RequiredArtifacts: []string{},
			DependsOn:         deps,
		})
	}
	return req
}

// ToCreateRequestFromTemplate applies the same clamping and defaulting to
// an internal GeneratedTemplate. Already-clamped values pass unchanged,
// so re-running the mapping is idempotent.
func ToCreateRequestFromTemplate(tpl *GeneratedTemplate) *CreateTemplateRequest {
	req := &CreateTemplateRequest{
		Name:          fallbackDraftName(),
		StepTemplates: []CreateStepTemplate{},
	}
	if tpl == nil {
		return req
	}

	req.Name = draftName(tpl.Name)

	for i, st := range tpl.Steps {
		offset := clampOffset(float64(st.Duration))
		if offset != st.Duration {
			log.Printf("normalize: clamped duration step=%d from=%d to=%d", i+1, st.Duration, offset)
		}

		deps := make([]int, 0, len(st.Dependencies))
		deps = append(deps, st.Dependencies...)

		req.StepTemplates = append(req.StepTemplates, CreateStepTemplate{
			Seq:               i + 1,
			Name:              stepName(st.Name, i+1, i),
			Basis:             positionalBasis(i),
			OffsetDays:        offset,
			RequiredArtifacts: []string{},
			DependsOn:         deps,
		})
	}
	return req
}
