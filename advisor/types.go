package advisor

import (
	"encoding/json"
	"errors"

	"github.com/debashishroy00/wpa-sub002/gate"
	"github.com/debashishroy00/wpa-sub002/trust"
)

const (
	ModeConcise  = "concise"
	ModeDetailed = "detailed"
)

// ErrNoRounds reports that the turn deadline fired before a single
// assessment round completed, so there is nothing to synthesize from.
var ErrNoRounds = errors.New("no assessment round completed")

type Query struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
}

// Answer is the structured result of one turn. Every numeric figure in
// Response traces to a profile claim, a calculation output, or a cited
// knowledge document.
type Answer struct {
	Response            string     `json:"response"`
	Citations           []string   `json:"citations"`
	Confidence          float64    `json:"confidence"`
	GapsIdentified      []string   `json:"gaps_identified"`
	IterationsPerformed int        `json:"iterations_performed"`
	TrustTier           trust.Tier `json:"trust_tier"`
	CalculationID       string     `json:"calculation_id,omitempty"`
	Clarify             *gate.Card `json:"clarify,omitempty"`
}

const (
	sourceProfile   = "profile"
	sourceKnowledge = "knowledge"
)

type plannedQuery struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type planPayload struct {
	Queries []plannedQuery `json:"queries"`
}

type assessPayload struct {
	Sufficient bool    `json:"sufficient"`
	Confidence float64 `json:"confidence"`
	Gaps       []Gap   `json:"gaps"`
}

// Gap is one missing piece of information named by a sufficiency
// assessment. Type steers the follow-up retrieval toward the profile
// index or the knowledge base.
type Gap struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts the object form and the bare description string
// smaller models tend to emit instead.
func (g *Gap) UnmarshalJSON(data []byte) error {
	var description string
	if err := json.Unmarshal(data, &description); err == nil {
		g.Description = description
		return nil
	}
	type plain Gap
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*g = Gap(p)
	return nil
}

// excerpt is one retrieved piece of context, from either source.
type excerpt struct {
	ID      string
	Title   string
	Source  string
	Content string
	Score   float64
	KBID    string
}
