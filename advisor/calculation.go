package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/debashishroy00/wpa-sub002/calc"
	"github.com/debashishroy00/wpa-sub002/facts"
	"github.com/debashishroy00/wpa-sub002/knowledge"
	"github.com/debashishroy00/wpa-sub002/trust"
)

const calcConfidence = 0.95

// runCalculation executes the detected calculator, overwrites the session
// record, and renders the answer without any generative call.
func (s *Service) runCalculation(ctx context.Context, det *calc.Detection, params map[string]float64, claims []facts.Claim, userID, sessionID, mode string) (*Answer, error) {
	rec := calc.NewRecord(userID, sessionID, det.Type)
	var response string

	switch det.Type {
	case calc.TypeNetWorthProjection:
		years := int(params["years"])
		monthly := params["monthly_contribution"]
		proj, err := calc.ProjectGrowth(params["principal"], years, monthly*12, params["rate"])
		if err != nil {
			return nil, fmt.Errorf("project growth: %w", err)
		}
		rec.Inputs["principal"] = params["principal"]
		rec.Inputs["monthly_contribution"] = monthly
		rec.Inputs["annual_contribution"] = monthly * 12
		rec.Inputs["rate"] = params["rate"]
		rec.Inputs["years"] = float64(years)
		rec.Assumptions["compounding"] = "annual, contributions added at year end"
		rec.Outputs["final_value"] = proj.FinalValue
		rec.Outputs["total_contributions"] = proj.TotalContributions
		rec.Outputs["growth"] = proj.Growth
		for _, point := range proj.Trajectory {
			rec.Outputs[fmt.Sprintf("balance_after_%d", point.Year)] = point.Value
		}
		if goal, ok := claimValue(claims, facts.KeyRetirementGoal); ok && goal > proj.FinalValue {
			rec.Outputs["goal_gap"] = goal - proj.FinalValue
		}
		response = renderProjection(rec, proj, claims, mode)

	case calc.TypeGoalAdjustment:
		tl, err := calc.AdjustGoalTimeline(params["current_goal"], params["new_goal"],
			params["current_assets"], params["monthly_contribution"], params["rate"], time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("adjust goal timeline: %w", err)
		}
		rec.Inputs["current_goal"] = params["current_goal"]
		rec.Inputs["new_goal"] = params["new_goal"]
		rec.Inputs["current_assets"] = params["current_assets"]
		rec.Inputs["monthly_contribution"] = params["monthly_contribution"]
		rec.Inputs["rate"] = params["rate"]
		rec.Assumptions["compounding"] = "monthly, contributions added each month"
		rec.Outputs["original_years"] = tl.OriginalYears
		rec.Outputs["new_years"] = tl.NewYears
		rec.Outputs["years_delta"] = tl.YearsDelta
		rec.Outputs["original_target_year"] = float64(tl.OriginalTargetYear)
		rec.Outputs["new_target_year"] = float64(tl.NewTargetYear)
		response = renderGoalTimeline(rec, tl, mode)

	case calc.TypeRetirementSuccess:
		alloc := calc.Allocation{
			Stocks: params["alloc_stocks"],
			Bonds:  params["alloc_bonds"],
			Cash:   params["alloc_cash"],
		}
		years := int(params["years"])
		est, err := calc.RetirementSuccess(params["current_assets"], params["target"],
			years, params["annual_contribution"], alloc, s.cfg.MonteCarloSeed)
		if err != nil {
			return nil, fmt.Errorf("retirement success: %w", err)
		}
		rec.Inputs["current_assets"] = params["current_assets"]
		rec.Inputs["target"] = params["target"]
		rec.Inputs["annual_contribution"] = params["annual_contribution"]
		rec.Inputs["years"] = float64(years)
		rec.Inputs["alloc_stocks"] = alloc.Stocks
		rec.Inputs["alloc_bonds"] = alloc.Bonds
		rec.Inputs["alloc_cash"] = alloc.Cash
		rec.Inputs["paths"] = float64(est.Paths)
		rec.Assumptions["returns"] = "stocks 9% mean 17% stddev, bonds 4% mean 6% stddev, cash 2% mean 1% stddev, classes independent"
		rec.Assumptions["seed"] = fmt.Sprintf("%d", s.cfg.MonteCarloSeed)
		rec.Outputs["success_pct"] = est.SuccessRate
		rec.Outputs["p10"] = est.Finals.P10
		rec.Outputs["p25"] = est.Finals.P25
		rec.Outputs["p50"] = est.Finals.P50
		rec.Outputs["p75"] = est.Finals.P75
		rec.Outputs["p90"] = est.Finals.P90
		response = renderSuccess(rec, est, mode)

	case calc.TypeDebtAvalanche:
		snap, err := s.facts.Profile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load debts: %w", err)
		}
		inputs := make([]calc.DebtInput, 0, len(snap.Debts))
		for _, d := range snap.Debts {
			inputs = append(inputs, calc.DebtInput{
				Name:       d.Name,
				Balance:    d.Balance,
				AnnualRate: d.AnnualRate,
				MinPayment: d.MinPayment,
			})
		}
		plan, err := calc.DebtAvalanche(inputs)
		if err != nil {
			return nil, fmt.Errorf("debt avalanche: %w", err)
		}
		rec.Inputs["debt_count"] = float64(len(plan.Ordered))
		rec.Outputs["total_debt"] = plan.TotalBalance
		rec.Outputs["weighted_rate_pct"] = plan.WeightedRate * 100
		names := make([]string, 0, len(plan.Ordered))
		for i, d := range plan.Ordered {
			prefix := fmt.Sprintf("debt_%d", i+1)
			rec.Outputs[prefix+"_balance"] = d.Balance
			rec.Outputs[prefix+"_rate_pct"] = d.AnnualRate * 100
			rec.Outputs[prefix+"_min_payment"] = d.MinPayment
			names = append(names, d.Name)
		}
		rec.Assumptions["order"] = strings.Join(names, ", ")
		response = renderAvalanche(rec, plan, mode)

	case calc.TypeWithdrawal:
		years := int(params["years"])
		plan, err := calc.WithdrawalSustainability(params["assets"], params["rate"], years)
		if err != nil {
			return nil, fmt.Errorf("withdrawal sustainability: %w", err)
		}
		rec.Inputs["assets"] = params["assets"]
		rec.Inputs["rate"] = params["rate"]
		rec.Inputs["years"] = float64(years)
		rec.Inputs["growth_rate"] = 0.05
		rec.Assumptions["growth"] = "conservative 5% annual growth on the remaining balance"
		rec.Outputs["annual_withdrawal"] = plan.AnnualWithdrawal
		rec.Outputs["years_lasted"] = float64(plan.YearsLasted)
		rec.Outputs["final_balance"] = plan.FinalBalance
		if plan.Shortfall > 0 {
			rec.Outputs["shortfall"] = plan.Shortfall
		}
		response = renderWithdrawal(rec, plan, mode)

	default:
		return nil, fmt.Errorf("unknown calculation type %q", det.Type)
	}

	s.sessions.Put(rec)

	answer := &Answer{
		Response:       response,
		Citations:      []string{},
		Confidence:     calcConfidence,
		GapsIdentified: []string{},
		TrustTier:      trust.TierMedium,
		CalculationID:  rec.CalculationID,
	}
	if id, title := s.calcCitation(det.Type); id != "" {
		answer.Response += fmt.Sprintf("\n\nRelated guidance: [%s] %s.", id, title)
		answer.Citations = []string{id}
		answer.TrustTier = trust.TierHigh
	}
	return answer, nil
}

// calcCitation finds the knowledge document that backs a calculation type,
// if the corpus has one.
func (s *Service) calcCitation(calcType string) (id, title string) {
	queries := map[string]string{
		calc.TypeNetWorthProjection: "retirement goal setting projection",
		calc.TypeGoalAdjustment:     "retirement goal setting",
		calc.TypeRetirementSuccess:  "monte carlo success probability",
		calc.TypeDebtAvalanche:      "avalanche highest interest payoff",
		calc.TypeWithdrawal:         "safe withdrawal rate",
	}
	query, ok := queries[calcType]
	if !ok || s.kb == nil {
		return "", ""
	}
	results := s.kb.Search(query, knowledge.Filters{}, 1)
	if len(results) == 0 {
		return "", ""
	}
	return results[0].Document.ID, results[0].Document.Title
}

func claimValue(claims []facts.Claim, key string) (float64, bool) {
	for _, c := range claims {
		if c.Key == key {
			return c.Value, true
		}
	}
	return 0, false
}

func pluralYears(years int) string {
	if years == 1 {
		return "1 year"
	}
	return fmt.Sprintf("%d years", years)
}

func renderProjection(rec calc.Record, proj calc.GrowthProjection, claims []facts.Claim, mode string) string {
	years := int(rec.Inputs["years"])
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Starting from %s and adding %s a month, %s annual growth puts you at %s in %s.\n",
		formatUSD(rec.Inputs["principal"]),
		formatUSD(rec.Inputs["monthly_contribution"]),
		formatPercent(rec.Inputs["rate"]*100),
		formatUSD(proj.FinalValue),
		pluralYears(years)))
	sb.WriteString(fmt.Sprintf("Of that, %s is new contributions and %s is growth.\n",
		formatUSD(proj.TotalContributions), formatUSD(proj.Growth)))

	if goal, ok := claimValue(claims, facts.KeyRetirementGoal); ok {
		if proj.FinalValue >= goal {
			sb.WriteString(fmt.Sprintf("That clears your current goal of %s.\n", formatUSD(goal)))
		} else {
			sb.WriteString(fmt.Sprintf("Your current goal is %s, which leaves a gap of %s at that horizon.\n",
				formatUSD(goal), formatUSD(rec.Outputs["goal_gap"])))
		}
	}

	if mode == ModeDetailed {
		sb.WriteString("\nYear by year:\n")
		for _, point := range proj.Trajectory {
			sb.WriteString(fmt.Sprintf("- after %s: %s\n", pluralYears(point.Year), formatUSD(point.Value)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderGoalTimeline(rec calc.Record, tl calc.GoalTimeline, mode string) string {
	current := rec.Inputs["current_goal"]
	next := rec.Inputs["new_goal"]

	var sb strings.Builder
	switch {
	case next < current:
		sb.WriteString(fmt.Sprintf("Lowering your goal from %s to %s moves the finish line from %s years out to %s years",
			formatUSD(current), formatUSD(next), formatNumber(tl.OriginalYears), formatNumber(tl.NewYears)))
	case next > current:
		sb.WriteString(fmt.Sprintf("Raising your goal from %s to %s moves the finish line from %s years out to %s years",
			formatUSD(current), formatUSD(next), formatNumber(tl.OriginalYears), formatNumber(tl.NewYears)))
	default:
		sb.WriteString(fmt.Sprintf("Keeping your goal at %s leaves the timeline at %s years",
			formatUSD(current), formatNumber(tl.OriginalYears)))
	}

	switch {
	case tl.YearsDelta > 0:
		sb.WriteString(fmt.Sprintf(", about %s years sooner (%s instead of %s).",
			formatNumber(tl.YearsDelta), formatNumber(float64(tl.NewTargetYear)), formatNumber(float64(tl.OriginalTargetYear))))
	case tl.YearsDelta < 0:
		sb.WriteString(fmt.Sprintf(", about %s years later (%s instead of %s).",
			formatNumber(-tl.YearsDelta), formatNumber(float64(tl.NewTargetYear)), formatNumber(float64(tl.OriginalTargetYear))))
	default:
		sb.WriteString(".")
	}

	if mode == ModeDetailed {
		sb.WriteString(fmt.Sprintf("\nThis assumes %s on hand today, %s added monthly, and %s annual growth.",
			formatUSD(rec.Inputs["current_assets"]),
			formatUSD(rec.Inputs["monthly_contribution"]),
			formatPercent(rec.Inputs["rate"]*100)))
	}
	return sb.String()
}

func renderSuccess(rec calc.Record, est calc.SuccessEstimate, mode string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Across %s simulated market paths, you reach %s within %s in %s of them.\n",
		groupThousands(int64(est.Paths)),
		formatUSD(rec.Inputs["target"]),
		pluralYears(int(rec.Inputs["years"])),
		formatPercent(est.SuccessRate)))
	sb.WriteString(fmt.Sprintf("Median outcome: %s. Downside (10th percentile): %s. Upside (90th): %s.\n",
		formatUSD(est.Finals.P50), formatUSD(est.Finals.P10), formatUSD(est.Finals.P90)))
	sb.WriteString(fmt.Sprintf("Assumed allocation: %s stocks, %s bonds, %s cash.",
		formatPercent(rec.Inputs["alloc_stocks"]*100),
		formatPercent(rec.Inputs["alloc_bonds"]*100),
		formatPercent(rec.Inputs["alloc_cash"]*100)))

	if mode == ModeDetailed {
		sb.WriteString(fmt.Sprintf("\nInterquartile range: %s to %s, contributing %s a year throughout.",
			formatUSD(est.Finals.P25), formatUSD(est.Finals.P75),
			formatUSD(rec.Inputs["annual_contribution"])))
	}
	return sb.String()
}

func renderAvalanche(rec calc.Record, plan calc.DebtPlan, mode string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You're carrying %s across %s debts (weighted average rate %s). Avalanche order, highest rate first:\n",
		formatUSD(plan.TotalBalance),
		formatNumber(rec.Inputs["debt_count"]),
		formatPercent(rec.Outputs["weighted_rate_pct"])))
	for _, d := range plan.Ordered {
		sb.WriteString(fmt.Sprintf("%d. %s: %s at %s (%s)\n",
			d.Priority, d.Name, formatUSD(d.Balance), formatPercent(d.AnnualRate*100), d.Urgency))
	}
	sb.WriteString("Keep minimum payments on everything and point spare cash at the top of the list.")

	if mode == ModeDetailed && len(plan.Ordered) > 0 {
		top := plan.Ordered[0]
		sb.WriteString(fmt.Sprintf("\nClearing %s first stops the fastest-growing interest charge.", top.Name))
	}
	return sb.String()
}

func renderWithdrawal(rec calc.Record, plan calc.WithdrawalPlan, mode string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Withdrawing %s of your %s is %s a year.\n",
		formatPercent(rec.Inputs["rate"]*100),
		formatUSD(rec.Inputs["assets"]),
		formatUSD(plan.AnnualWithdrawal)))

	if plan.Sustainable {
		sb.WriteString(fmt.Sprintf("At a conservative %s growth assumption that holds for the full %s, ending near %s.",
			formatPercent(rec.Inputs["growth_rate"]*100),
			pluralYears(plan.Years),
			formatUSD(plan.FinalBalance)))
	} else {
		sb.WriteString(fmt.Sprintf("At a conservative %s growth assumption the balance runs out after %s of the %s horizon, leaving a shortfall of %s. A lower rate or shorter horizon would hold.",
			formatPercent(rec.Inputs["growth_rate"]*100),
			pluralYears(plan.YearsLasted),
			pluralYears(plan.Years),
			formatUSD(plan.Shortfall)))
	}

	if mode == ModeDetailed {
		sb.WriteString(fmt.Sprintf("\nA fixed withdrawal rate is a starting point, not a guarantee; this run assumes the rate stays at %s for %s.",
			formatPercent(rec.Inputs["rate"]*100), pluralYears(plan.Years)))
	}
	return sb.String()
}
