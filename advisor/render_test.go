package advisor

import (
	"strings"
	"testing"
	"time"

	"github.com/debashishroy00/wpa-sub002/calc"
	"github.com/debashishroy00/wpa-sub002/facts"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{950, "$950"},
		{40800, "$40,800"},
		{1020000, "$1,020,000"},
		{2500000, "$2,500,000"},
		{3036130, "$3,036,130"},
		{1234.5, "$1,234.50"},
		{99.99, "$99.99"},
		{-2500, "-$2,500"},
	}
	for _, tc := range cases {
		if got := formatUSD(tc.in); got != tc.want {
			t.Errorf("formatUSD(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{7, "7%"},
		{4, "4%"},
		{58.3333333, "58.3%"},
		{12.35, "12.4%"},
		{0, "0%"},
		{22.9, "22.9%"},
	}
	for _, tc := range cases {
		if got := formatPercent(tc.in); got != tc.want {
			t.Errorf("formatPercent(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatParamConventions(t *testing.T) {
	cases := []struct {
		key  string
		val  float64
		want string
	}{
		{"rate", 0.07, "7%"},
		{"growth_rate", 0.05, "5%"},
		{"weighted_rate_pct", 7.1, "7.1%"},
		{"success_pct", 83.5, "83.5%"},
		{"alloc_stocks", 0.6, "60%"},
		{"years", 30, "30"},
		{"debt_count", 3, "3"},
		{"paths", 1000, "1000"},
		{"original_target_year", 2036, "2036"},
		{"principal", 2500000, "$2,500,000"},
		{"balance_after_2", 3036130, "$3,036,130"},
		{"annual_withdrawal", 40800, "$40,800"},
	}
	for _, tc := range cases {
		if got := formatParam(tc.key, tc.val); got != tc.want {
			t.Errorf("formatParam(%q, %v) = %q, want %q", tc.key, tc.val, got, tc.want)
		}
	}
}

func TestRenderExplanation(t *testing.T) {
	rec := calc.NewRecord("123", "s1", calc.TypeWithdrawal)
	rec.Inputs["assets"] = 1020000
	rec.Inputs["rate"] = 0.04
	rec.Inputs["years"] = 30
	rec.Assumptions["growth"] = "conservative 5% annual growth on the remaining balance"
	rec.Outputs["annual_withdrawal"] = 40800

	out := renderExplanation(rec)
	for _, want := range []string{
		"withdrawal sustainability calculation",
		rec.CalculationID,
		"Inputs:",
		"- assets: $1,020,000",
		"- rate: 4%",
		"- years: 30",
		"Assumptions:",
		"- growth: conservative 5% annual growth on the remaining balance",
		"Outputs:",
		"- annual withdrawal: $40,800",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("explanation missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFallback(t *testing.T) {
	empty := renderFallback(nil)
	if !strings.Contains(empty, "no verified profile data") {
		t.Errorf("empty-claims fallback unexpected:\n%s", empty)
	}

	now := time.Now().UTC()
	claims := []facts.Claim{
		{Key: facts.KeyNetWorth, Value: 2500000, Unit: facts.UnitUSD, ComputedAt: now},
		{Key: facts.KeySavingsRate, Value: 58.3333333, Unit: facts.UnitPercent, ComputedAt: now},
	}
	out := renderFallback(claims)
	if !strings.Contains(out, "- net worth: $2,500,000") {
		t.Errorf("fallback missing the net worth claim:\n%s", out)
	}
	if !strings.Contains(out, "- savings rate: 58.3%") {
		t.Errorf("fallback missing the savings rate claim:\n%s", out)
	}
}

func TestIsExplainRequest(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"How did you get that number?", true},
		{"How did you calculate that?", true},
		{"how did you arrive at that figure", true},
		{"Explain that calculation please", true},
		{"explain your math", true},
		{"Where did that number come from?", true},
		{"Show me your assumptions", true},
		{"show the work", true},
		{"What assumptions did you make?", true},
		{"Break that down for me", true},
		{"Explain the 4% rule", false},
		{"How do I calculate compound interest?", false},
		{"What number should I aim for?", false},
		{"Can I retire in 2 years?", false},
	}
	for _, tc := range cases {
		if got := isExplainRequest(tc.message); got != tc.want {
			t.Errorf("isExplainRequest(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestMessageSlots(t *testing.T) {
	slots := messageSlots("Could I get to $2 million in 10 years at 6%?")
	if slots["amount"] != "2000000" {
		t.Errorf("amount slot = %q, want 2000000", slots["amount"])
	}
	if slots["percent"] != "6" {
		t.Errorf("percent slot = %q, want 6", slots["percent"])
	}
	if slots["years"] != "10" {
		t.Errorf("years slot = %q, want 10", slots["years"])
	}

	if got := messageSlots("tell me something useful"); len(got) != 0 {
		t.Errorf("expected no slots, got %v", got)
	}
}
