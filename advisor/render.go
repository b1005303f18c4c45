package advisor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/debashishroy00/wpa-sub002/calc"
	"github.com/debashishroy00/wpa-sub002/facts"
	"github.com/debashishroy00/wpa-sub002/gate"
)

func formatUSD(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	rounded := math.Round(v*100) / 100
	whole := int64(rounded)
	cents := int64(math.Round((rounded - float64(whole)) * 100))

	out := "$" + groupThousands(whole)
	if cents > 0 {
		out = fmt.Sprintf("$%s.%02d", groupThousands(whole), cents)
	}
	if neg {
		out = "-" + out
	}
	return out
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatPercent renders percent points with one decimal at most.
func formatPercent(points float64) string {
	return strconv.FormatFloat(math.Round(points*10)/10, 'f', -1, 64) + "%"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

// formatParam picks a rendering by key convention: "_pct" keys hold percent
// points, "rate" keys hold fractions, year/count keys are plain numbers,
// everything else is dollars.
func formatParam(key string, v float64) string {
	switch {
	case strings.HasSuffix(key, "_pct"):
		return formatPercent(v)
	case key == "rate" || strings.HasSuffix(key, "_rate") || strings.HasPrefix(key, "alloc_"):
		return formatPercent(v * 100)
	case strings.Contains(key, "year") || strings.Contains(key, "count") ||
		strings.Contains(key, "paths") || strings.Contains(key, "priority"):
		return formatNumber(v)
	default:
		return formatUSD(v)
	}
}

func paramLabel(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

func formatClaim(c facts.Claim) string {
	if c.Unit == facts.UnitPercent {
		return formatPercent(c.Value)
	}
	return formatUSD(c.Value)
}

func claimsBlock(claims []facts.Claim) string {
	var sb strings.Builder
	for _, c := range claims {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", paramLabel(c.Key), formatClaim(c)))
	}
	return sb.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderExplanation walks a stored calculation record: inputs, assumptions,
// outputs, and the id that names it.
func renderExplanation(rec calc.Record) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("That answer came from the %s calculation (id %s).\n",
		paramLabel(rec.CalcType), rec.CalculationID))

	sb.WriteString("\nInputs:\n")
	for _, key := range sortedKeys(rec.Inputs) {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", paramLabel(key), formatParam(key, rec.Inputs[key])))
	}

	if len(rec.Assumptions) > 0 {
		sb.WriteString("\nAssumptions:\n")
		keys := make([]string, 0, len(rec.Assumptions))
		for k := range rec.Assumptions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", paramLabel(key), rec.Assumptions[key]))
		}
	}

	sb.WriteString("\nOutputs:\n")
	for _, key := range sortedKeys(rec.Outputs) {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", paramLabel(key), formatParam(key, rec.Outputs[key])))
	}
	return sb.String()
}

func renderClarify(card *gate.Card, preamble string) string {
	var sb strings.Builder
	sb.WriteString(preamble)
	sb.WriteString("\n")
	for _, opt := range card.Options {
		sb.WriteString("- ")
		sb.WriteString(opt)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderFallback is the templated answer used when synthesis cannot be
// verified. It states only claim values, so it passes validation by
// construction.
func renderFallback(claims []facts.Claim) string {
	if len(claims) == 0 {
		return "I couldn't verify an answer this time and no verified profile data is available. " +
			"Please try again shortly, or re-link your accounts so I can ground every number."
	}
	var sb strings.Builder
	sb.WriteString("I couldn't produce a fully verified answer to that. Here is what your profile supports right now:\n")
	sb.WriteString(claimsBlock(claims))
	sb.WriteString("\nAsk about any of these and I can go deeper.")
	return sb.String()
}
