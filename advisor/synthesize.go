package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/debashishroy00/wpa-sub002/calc"
	"github.com/debashishroy00/wpa-sub002/facts"
	"github.com/debashishroy00/wpa-sub002/trust"
)

type synthesisInput struct {
	message    string
	mode       string
	claims     []facts.Claim
	record     *calc.Record
	excerpts   []excerpt
	related    []string
	violations []trust.Violation
}

const synthesisPrompt = "You are a grounded financial advisor. Write the answer using only numbers that appear in the verified facts, the calculation, and the excerpts provided. Never invent or recompute a figure. Cite knowledge excerpts by their bracketed id, for example [KB-RET-001], whenever you draw on them. If the material does not support an answer, say what is missing instead of guessing."

func (s *Service) synthesize(ctx context.Context, in synthesisInput) (string, error) {
	system := synthesisPrompt
	if in.mode == ModeDetailed {
		system += " Use short sections or bullets where they help; it is fine to be thorough."
	} else {
		system += " Keep the answer to one short paragraph."
	}

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(in.message)

	sb.WriteString("\n\nVerified facts:\n")
	if len(in.claims) == 0 {
		sb.WriteString("(none available)\n")
	} else {
		sb.WriteString(claimsBlock(in.claims))
	}

	if in.record != nil {
		sb.WriteString("\nMost recent calculation:\n")
		sb.WriteString(renderExplanation(*in.record))
		sb.WriteString("\n")
	}

	if len(in.excerpts) > 0 {
		sb.WriteString("\nExcerpts:\n")
		for _, e := range in.excerpts {
			if e.KBID != "" {
				sb.WriteString(fmt.Sprintf("[%s] %s\n%s\n\n", e.KBID, e.Title, snippet(e.Content, 400)))
			} else {
				sb.WriteString(fmt.Sprintf("Profile note: %s\n%s\n\n", e.Title, snippet(e.Content, 400)))
			}
		}
	}

	if len(in.related) > 0 {
		sb.WriteString("\nRelated guidance in the knowledge base:\n")
		for _, line := range in.related {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	if len(in.violations) > 0 {
		sb.WriteString("\nYour previous draft failed verification on these tokens:\n")
		for _, v := range in.violations {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", v.Token, v.Kind))
		}
		sb.WriteString("Rewrite the answer stating only numbers present in the material above.\n")
	}

	text, err := s.callLLM(ctx, system, sb.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
