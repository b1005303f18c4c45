package calc

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const maxTimelineMonths = 1200

type YearValue struct {
	Year  int
	Value float64
}

type GrowthProjection struct {
	FinalValue         float64
	TotalContributions float64
	Growth             float64
	Trajectory         []YearValue
}

// ProjectGrowth compounds a principal annually with end-of-year
// contributions and returns the full year-by-year trajectory.
func ProjectGrowth(principal float64, years int, annualContribution, rate float64) (GrowthProjection, error) {
	if years <= 0 {
		return GrowthProjection{}, fmt.Errorf("projection years must be positive, got %d", years)
	}
	if rate < -1 {
		return GrowthProjection{}, fmt.Errorf("rate below -100%% is not meaningful")
	}

	value := principal
	trajectory := make([]YearValue, 0, years)
	for year := 1; year <= years; year++ {
		value = value*(1+rate) + annualContribution
		trajectory = append(trajectory, YearValue{Year: year, Value: round2(value)})
	}

	contributions := annualContribution * float64(years)
	return GrowthProjection{
		FinalValue:         round2(value),
		TotalContributions: round2(contributions),
		Growth:             round2(value - principal - contributions),
		Trajectory:         trajectory,
	}, nil
}

type GoalTimeline struct {
	OriginalYears      float64
	NewYears           float64
	YearsDelta         float64
	OriginalTargetYear int
	NewTargetYear      int
}

// AdjustGoalTimeline compares how long the current plan takes to reach the
// original goal versus the adjusted one, compounding monthly. YearsDelta is
// original minus new: positive means the change saves time, negative means
// it adds time.
func AdjustGoalTimeline(originalGoal, newGoal, currentAssets, monthlyContribution, rate float64, now time.Time) (GoalTimeline, error) {
	if originalGoal <= 0 || newGoal <= 0 {
		return GoalTimeline{}, fmt.Errorf("goals must be positive, got %.0f and %.0f", originalGoal, newGoal)
	}

	originalMonths, ok := monthsToGoal(originalGoal, currentAssets, monthlyContribution, rate)
	if !ok {
		return GoalTimeline{}, fmt.Errorf("original goal not reachable within %d years at current contributions", maxTimelineMonths/12)
	}
	newMonths, ok := monthsToGoal(newGoal, currentAssets, monthlyContribution, rate)
	if !ok {
		return GoalTimeline{}, fmt.Errorf("adjusted goal not reachable within %d years at current contributions", maxTimelineMonths/12)
	}

	originalYears := float64(originalMonths) / 12
	newYears := float64(newMonths) / 12
	return GoalTimeline{
		OriginalYears:      round1(originalYears),
		NewYears:           round1(newYears),
		YearsDelta:         round1(originalYears - newYears),
		OriginalTargetYear: now.Year() + int(math.Ceil(originalYears)),
		NewTargetYear:      now.Year() + int(math.Ceil(newYears)),
	}, nil
}

func monthsToGoal(goal, assets, monthly, rate float64) (int, bool) {
	if assets >= goal {
		return 0, true
	}
	monthlyRate := rate / 12
	value := assets
	for month := 1; month <= maxTimelineMonths; month++ {
		value = value*(1+monthlyRate) + monthly
		if value >= goal {
			return month, true
		}
	}
	return 0, false
}

type DebtPayoff struct {
	Name       string
	Balance    float64
	AnnualRate float64
	MinPayment float64
	Priority   int
	Urgency    string
}

type DebtPlan struct {
	Ordered      []DebtPayoff
	TotalBalance float64
	WeightedRate float64
}

type DebtInput struct {
	Name       string
	Balance    float64
	AnnualRate float64
	MinPayment float64
}

// DebtAvalanche orders debts by rate descending and assigns priorities and
// urgency tiers. Ties break by larger balance first.
func DebtAvalanche(debts []DebtInput) (DebtPlan, error) {
	if len(debts) == 0 {
		return DebtPlan{}, fmt.Errorf("no debts to order")
	}

	ordered := make([]DebtPayoff, 0, len(debts))
	var totalBalance, rateWeight float64
	for _, d := range debts {
		ordered = append(ordered, DebtPayoff{
			Name:       d.Name,
			Balance:    d.Balance,
			AnnualRate: d.AnnualRate,
			MinPayment: d.MinPayment,
			Urgency:    urgencyTier(d.AnnualRate),
		})
		totalBalance += d.Balance
		rateWeight += d.Balance * d.AnnualRate
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AnnualRate != ordered[j].AnnualRate {
			return ordered[i].AnnualRate > ordered[j].AnnualRate
		}
		return ordered[i].Balance > ordered[j].Balance
	})
	for i := range ordered {
		ordered[i].Priority = i + 1
	}

	weightedRate := 0.0
	if totalBalance > 0 {
		weightedRate = rateWeight / totalBalance
	}
	return DebtPlan{
		Ordered:      ordered,
		TotalBalance: round2(totalBalance),
		WeightedRate: weightedRate,
	}, nil
}

func urgencyTier(rate float64) string {
	switch {
	case rate >= 0.18:
		return "critical"
	case rate >= 0.10:
		return "high"
	case rate >= 0.06:
		return "moderate"
	default:
		return "low"
	}
}

// Growth assumed on remaining balances during the withdrawal horizon.
const withdrawalGrowthRate = 0.05

type WithdrawalPlan struct {
	AnnualWithdrawal float64
	Rate             float64
	Years            int
	YearsLasted      int
	Sustainable      bool
	FinalBalance     float64
	Shortfall        float64
}

// WithdrawalSustainability simulates a fixed annual withdrawal of
// rate x assets against a balance growing at a conservative documented
// rate, and reports whether the horizon holds.
func WithdrawalSustainability(assets, withdrawalRate float64, years int) (WithdrawalPlan, error) {
	if assets <= 0 {
		return WithdrawalPlan{}, fmt.Errorf("assets must be positive, got %.0f", assets)
	}
	if withdrawalRate <= 0 || withdrawalRate >= 1 {
		return WithdrawalPlan{}, fmt.Errorf("withdrawal rate must be in (0,1), got %.3f", withdrawalRate)
	}
	if years <= 0 {
		return WithdrawalPlan{}, fmt.Errorf("horizon must be positive, got %d", years)
	}

	annual := withdrawalRate * assets
	balance := assets
	yearsLasted := 0
	for year := 1; year <= years; year++ {
		balance = balance*(1+withdrawalGrowthRate) - annual
		if balance >= 0 {
			yearsLasted = year
		}
	}

	plan := WithdrawalPlan{
		AnnualWithdrawal: round2(annual),
		Rate:             withdrawalRate,
		Years:            years,
		YearsLasted:      yearsLasted,
		Sustainable:      balance >= 0,
		FinalBalance:     round2(balance),
	}
	if balance < 0 {
		plan.Shortfall = round2(-balance)
	}
	return plan, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
