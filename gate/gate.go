// Package gate decides whether a message carries enough signal to answer,
// or whether the turn should stop and ask. It runs before any model call.
package gate

import "strings"

const SchemaVersion = "v1"

const ReasonAmbiguousShortMessage = "ambiguous_short_message"

const (
	minTokens     = 4
	minConfidence = 0.6
)

type Input struct {
	Message    string
	Intent     string
	Confidence float64
	Slots      map[string]string
}

// Card is the structured clarification shown instead of an answer.
type Card struct {
	SchemaVersion string   `json:"schema_version"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
}

type Result struct {
	NeedsClarification bool
	Reason             string
	Card               *Card
}

// Evaluate is pure and never errors. A message only trips the gate when it
// is short AND low-confidence AND carries no resolvable slots; any one
// strong signal lets the turn proceed.
func Evaluate(in Input) Result {
	tokens := len(strings.Fields(in.Message))
	if tokens < minTokens && in.Confidence < minConfidence && len(in.Slots) == 0 {
		return Result{
			NeedsClarification: true,
			Reason:             ReasonAmbiguousShortMessage,
			Card:               CardFor(in.Intent),
		}
	}
	return Result{}
}

// CardFor builds the clarify card for a coarse intent. Unknown intents get
// the general card.
func CardFor(intent string) *Card {
	options, ok := intentOptions[intent]
	if !ok {
		options = intentOptions[IntentGeneral]
	}
	return &Card{
		SchemaVersion: SchemaVersion,
		Question:      "I want to make sure I answer the right question. Which of these is closest?",
		Options:       options,
	}
}

const (
	IntentRetirement = "retirement"
	IntentGoal       = "goal"
	IntentDebt       = "debt"
	IntentWithdrawal = "withdrawal"
	IntentSpending   = "spending"
	IntentGeneral    = "general"
)

// Keyword families checked in a fixed order; ties go to the earlier family.
var intentFamilies = []struct {
	intent   string
	keywords []string
}{
	{IntentRetirement, []string{"retire", "retirement", "401k", "401(k)", "ira", "pension"}},
	{IntentGoal, []string{"goal", "target", "milestone"}},
	{IntentDebt, []string{"debt", "loan", "card", "mortgage", "interest", "payoff"}},
	{IntentWithdrawal, []string{"withdraw", "withdrawal", "drawdown"}},
	{IntentSpending, []string{"spend", "spending", "expense", "expenses", "budget", "surplus"}},
}

var intentOptions = map[string][]string{
	IntentRetirement: {
		"Project my net worth at retirement",
		"Check progress toward my retirement goal",
		"Estimate my odds of reaching the goal",
	},
	IntentGoal: {
		"Review my current retirement goal",
		"See how changing the goal moves my timeline",
		"Compare my savings against the goal",
	},
	IntentDebt: {
		"Order my debts for fastest payoff",
		"Show my highest-interest balances",
		"Compare my total debt against my income",
	},
	IntentWithdrawal: {
		"Check a safe withdrawal rate for my balances",
		"See how long my savings would last",
		"Test the 4% rule against my portfolio",
	},
	IntentSpending: {
		"Review my monthly surplus",
		"Compare my income against my expenses",
		"Check my savings rate",
	},
	IntentGeneral: {
		"Show my net worth summary",
		"Review my retirement outlook",
		"Order my debts by interest rate",
	},
}

// GuessIntent picks the keyword family with the most hits. The confidence
// is coarse: it feeds Evaluate, not any user-facing score.
func GuessIntent(message string) (string, float64) {
	lowered := strings.ToLower(message)

	best := IntentGeneral
	bestHits := 0
	for _, family := range intentFamilies {
		hits := 0
		for _, kw := range family.keywords {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = family.intent
			bestHits = hits
		}
	}

	confidence := 0.3 + 0.2*float64(bestHits)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return best, confidence
}
