package retrieval

import (
	"fmt"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "be": true, "by": true,
	"can": true, "do": true, "for": true, "how": true, "i": true, "in": true,
	"is": true, "it": true, "my": true, "of": true, "on": true, "or": true,
	"should": true, "the": true, "to": true, "what": true, "whats": true,
	"will": true, "with": true, "you": true,
}

// Tokenize lowercases, splits on non-alphanumeric runs, and drops stopwords
// and single-character fragments.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

const titleWeight = 3.0

// ScoreKeywords ranks a document against query terms. A term hitting the
// title counts titleWeight, a body-only hit counts 1, and the sum is
// normalized by the maximum attainable score so results stay in [0,1]
// regardless of query length.
func ScoreKeywords(terms []string, title, body string) (float64, string) {
	if len(terms) == 0 {
		return 0, "empty query"
	}

	titleSet := toSet(Tokenize(title))
	bodySet := toSet(Tokenize(body))

	var score float64
	var titleHits, bodyHits int
	for _, term := range terms {
		switch {
		case titleSet[term]:
			score += titleWeight
			titleHits++
		case bodySet[term]:
			score++
			bodyHits++
		}
	}

	score /= titleWeight * float64(len(terms))
	return score, fmt.Sprintf("keyword match: %d title, %d body of %d terms", titleHits, bodyHits, len(terms))
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
