package calc

import (
	"regexp"
	"strconv"
	"strings"
)

// Currency amounts appear either with a dollar sign (suffix optional) or as
// a bare number with a magnitude suffix. Bare unsuffixed numbers are never
// treated as money; that keeps horizons ("in 2 years") and account names out
// of the amount list.
var currencyPattern = regexp.MustCompile(
	`(?i)\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(million|billion|thousand|k)?|\b([0-9][0-9,]*(?:\.[0-9]+)?)\s*(million|billion|thousand|k)\b`)

var percentPattern = regexp.MustCompile(`(?i)\b([0-9]+(?:\.[0-9]+)?)\s*(?:%|percent\b)`)

var yearsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:in|over|within|next|for)\s+([0-9]{1,2})\s*(?:years?|yrs?)\b`),
	regexp.MustCompile(`(?i)\b([0-9]{1,2})[-\s]year\b`),
}

// Retirement plan names that look like amount-with-suffix.
var planNames = map[string]bool{"401": true, "403": true, "457": true, "529": true}

// NumberToken pairs a matched literal with its normalized value. Currency
// tokens normalize to dollars, percent tokens to percent points.
type NumberToken struct {
	Raw   string
	Value float64
}

// ParseCurrencyTokens returns every currency amount in the message with the
// literal that produced it, in order of appearance ("$2.5 million" ->
// 2500000, "200k" -> 200000).
func ParseCurrencyTokens(message string) []NumberToken {
	matches := currencyPattern.FindAllStringSubmatch(message, -1)
	tokens := make([]NumberToken, 0, len(matches))
	for _, m := range matches {
		digits, suffix := m[1], m[2]
		dollarSign := digits != ""
		if digits == "" {
			digits, suffix = m[3], m[4]
		}
		if !dollarSign && planNames[digits] {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, NumberToken{
			Raw:   strings.TrimSpace(m[0]),
			Value: value * suffixMultiplier(suffix),
		})
	}
	return tokens
}

// ParseCurrency returns just the normalized dollar values.
func ParseCurrency(message string) []float64 {
	tokens := ParseCurrencyTokens(message)
	amounts := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		amounts = append(amounts, tok.Value)
	}
	return amounts
}

func suffixMultiplier(suffix string) float64 {
	switch strings.ToLower(suffix) {
	case "billion":
		return 1e9
	case "million":
		return 1e6
	case "thousand", "k":
		return 1e3
	default:
		return 1
	}
}

// ParsePercentTokens returns percentage tokens with their literals, in
// percent points ("7%" -> 7).
func ParsePercentTokens(message string) []NumberToken {
	matches := percentPattern.FindAllStringSubmatch(message, -1)
	tokens := make([]NumberToken, 0, len(matches))
	for _, m := range matches {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			tokens = append(tokens, NumberToken{Raw: strings.TrimSpace(m[0]), Value: value})
		}
	}
	return tokens
}

// ParsePercents returns just the percent-point values.
func ParsePercents(message string) []float64 {
	tokens := ParsePercentTokens(message)
	out := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Value)
	}
	return out
}

// ParseYears extracts an explicit horizon ("in 2 years", "10-year plan").
func ParseYears(message string) (int, bool) {
	for _, pattern := range yearsPatterns {
		if m := pattern.FindStringSubmatch(message); m != nil {
			if years, err := strconv.Atoi(m[1]); err == nil && years > 0 {
				return years, true
			}
		}
	}
	return 0, false
}
