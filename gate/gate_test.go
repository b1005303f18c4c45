package gate

import "testing"

func TestEvaluateClarifiesShortAmbiguous(t *testing.T) {
	res := Evaluate(Input{Message: "help", Intent: IntentGeneral, Confidence: 0.5})
	if !res.NeedsClarification {
		t.Fatal("short low-confidence message with no slots should clarify")
	}
	if res.Reason != ReasonAmbiguousShortMessage {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonAmbiguousShortMessage)
	}
	if res.Card == nil {
		t.Fatal("clarification without a card")
	}
	if res.Card.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", res.Card.SchemaVersion, SchemaVersion)
	}
	if len(res.Card.Options) < 3 {
		t.Errorf("Options = %v, want at least 3", res.Card.Options)
	}
}

func TestEvaluateCardFollowsIntent(t *testing.T) {
	res := Evaluate(Input{Message: "retire?", Intent: IntentRetirement, Confidence: 0.3})
	if !res.NeedsClarification {
		t.Fatal("expected clarification")
	}
	want := intentOptions[IntentRetirement][0]
	if res.Card.Options[0] != want {
		t.Errorf("Options[0] = %q, want %q", res.Card.Options[0], want)
	}
}

func TestEvaluateProceeds(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"enough tokens", Input{Message: "how is my portfolio", Confidence: 0.1}},
		{"high confidence", Input{Message: "retirement goal?", Confidence: 0.8}},
		{"resolvable slot", Input{Message: "2.5M", Confidence: 0.2, Slots: map[string]string{"amount": "2500000"}}},
	}
	for _, tt := range tests {
		if res := Evaluate(tt.in); res.NeedsClarification {
			t.Errorf("%s: Evaluate(%+v) clarified, want proceed", tt.name, tt.in)
		}
	}
}

func TestGuessIntent(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"when can I retire", IntentRetirement},
		{"lower my goal", IntentGoal},
		{"pay off my credit card", IntentDebt},
		{"how much can I withdraw", IntentWithdrawal},
		{"my monthly budget", IntentSpending},
		{"hello there", IntentGeneral},
	}
	for _, tt := range tests {
		intent, confidence := GuessIntent(tt.message)
		if intent != tt.want {
			t.Errorf("GuessIntent(%q) = %s, want %s", tt.message, intent, tt.want)
		}
		if confidence < 0.3 || confidence > 0.9 {
			t.Errorf("GuessIntent(%q) confidence = %v, out of range", tt.message, confidence)
		}
	}
}

func TestGuessIntentUnknownStaysGeneral(t *testing.T) {
	intent, confidence := GuessIntent("xyzzy")
	if intent != IntentGeneral || confidence != 0.3 {
		t.Errorf("GuessIntent = (%s, %v), want (%s, 0.3)", intent, confidence, IntentGeneral)
	}
}
