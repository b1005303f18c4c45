// Package trust verifies that every currency and percentage figure in a
// candidate answer traces back to an authoritative value. Answers are
// checked after synthesis and never delivered with an unverified number.
package trust

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/debashishroy00/wpa-sub002/calc"
)

type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

const (
	KindUnverifiedNumber = "unverified_number"
	KindBannedPhrase     = "banned_phrase"
)

type Violation struct {
	Kind   string
	Token  string
	Detail string
}

type Report struct {
	IsValid    bool
	Tier       Tier
	Violations []Violation
}

// Phrases that imply the model produced arithmetic of its own.
var bannedPhrases = []string{
	"i calculated",
	"i computed",
	"let me calculate",
	"let me compute",
	"that works out to",
	"doing the math",
	"if we do the math",
	"by my math",
	"my calculation",
}

var citationPattern = regexp.MustCompile(`\[KB-[A-Z]+-\d{3}\]`)

// Set holds the authoritative values an answer may state. Each value is
// stored alongside its display roundings so "58.3%" verifies against a
// derived 58.333.
type Set struct {
	values map[float64]struct{}
}

func NewSet() *Set {
	return &Set{values: make(map[float64]struct{})}
}

func (s *Set) Add(values ...float64) {
	for _, v := range values {
		s.values[v] = struct{}{}
		s.values[math.Round(v)] = struct{}{}
		s.values[math.Round(v*10)/10] = struct{}{}
		s.values[math.Round(v*100)/100] = struct{}{}
	}
}

// AddText extracts currency and percent tokens from a source text (a
// retrieved excerpt, typically) and admits their values.
func (s *Set) AddText(text string) {
	for _, tok := range calc.ParseCurrencyTokens(text) {
		s.Add(tok.Value)
	}
	for _, tok := range calc.ParsePercentTokens(text) {
		s.Add(tok.Value)
	}
}

func (s *Set) Contains(v float64) bool {
	_, ok := s.values[v]
	return ok
}

func (s *Set) Len() int {
	return len(s.values)
}

// Validate extracts every number token from the text and reports exactly
// one violation per token missing from the authoritative set, plus one per
// banned phrase found. Tier: HIGH needs a clean text with at least one
// citation, MEDIUM is clean without citations, LOW has any violation.
func Validate(text string, authoritative *Set) Report {
	var violations []Violation

	for _, tok := range calc.ParseCurrencyTokens(text) {
		if !authoritative.Contains(tok.Value) {
			violations = append(violations, Violation{
				Kind:   KindUnverifiedNumber,
				Token:  tok.Raw,
				Detail: fmt.Sprintf("amount %.2f has no authoritative source", tok.Value),
			})
		}
	}
	for _, tok := range calc.ParsePercentTokens(text) {
		if !authoritative.Contains(tok.Value) {
			violations = append(violations, Violation{
				Kind:   KindUnverifiedNumber,
				Token:  tok.Raw,
				Detail: fmt.Sprintf("percentage %.2f has no authoritative source", tok.Value),
			})
		}
	}

	lowered := strings.ToLower(text)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lowered, phrase) {
			violations = append(violations, Violation{
				Kind:   KindBannedPhrase,
				Token:  phrase,
				Detail: "phrasing implies unverified arithmetic",
			})
		}
	}

	report := Report{
		IsValid:    len(violations) == 0,
		Violations: violations,
	}
	switch {
	case !report.IsValid:
		report.Tier = TierLow
	case citationPattern.MatchString(text):
		report.Tier = TierHigh
	default:
		report.Tier = TierMedium
	}
	return report
}
