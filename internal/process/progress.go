package process

import "strings"

// Progress is the conversation-completeness signal returned with every
// turn: how close the conversation is to yielding a usable draft.
type Progress struct {
	Score          int      `json:"score"`
	Exchanges      int      `json:"exchanges"`
	Requirements   int      `json:"requirements"`
	MissingContext []string `json:"missing_context,omitempty"`
	ReadyForDraft  bool     `json:"ready_for_draft"`
}

// contextKeys are the facts a template conversation is expected to pin
// down before a draft is worth persisting.
var contextKeys = []string{"industry", "process_type", "goal"}

// Completeness scores the conversation from context coverage, exchange
// depth and previously extracted requirements. Pure and cheap; called on
// every turn.
func Completeness(msgs []Message, reqs []Requirement, sessionContext map[string]string) Progress {
	p := Progress{Requirements: len(reqs)}

	for _, m := range msgs {
		if strings.EqualFold(m.Role, RoleUser) {
			p.Exchanges++
		}
	}

	score := 0
	for _, key := range contextKeys {
		if strings.TrimSpace(sessionContext[key]) != "" {
			score += 15
		} else {
			p.MissingContext = append(p.MissingContext, key)
		}
	}

	exchanges := p.Exchanges
	if exchanges > 5 {
		exchanges = 5
	}
	score += exchanges * 5

	nreq := len(reqs)
	if nreq > 6 {
		nreq = 6
	}
	score += nreq * 5

	if score > 100 {
		score = 100
	}
	p.Score = score
	p.ReadyForDraft = score >= 70
	return p
}
