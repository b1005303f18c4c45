package calc

import (
	"regexp"
	"strings"

	"github.com/debashishroy00/wpa-sub002/facts"
)

// Defaults applied when neither the message nor the context supplies a
// value. Withdrawal defaults follow the 4% / 30-year convention.
const (
	DefaultGrowthRate        = 0.07
	DefaultProjectionYears   = 10
	DefaultSuccessYears      = 20
	DefaultWithdrawalRate    = 0.04
	DefaultWithdrawalYears   = 30
	DefaultAllocationStocks  = 0.60
	DefaultAllocationBonds   = 0.30
	DefaultAllocationCash    = 0.10
)

type route struct {
	name       string
	patterns   []*regexp.Regexp
	calcType   string
	redirectTo string
}

// Router maps free text to a calculation type. Routes are an explicit
// ordered slice with first-match-wins semantics; map iteration never decides
// a route.
type Router struct {
	routes []route
}

func NewRouter() *Router {
	compile := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(exprs))
		for i, expr := range exprs {
			out[i] = regexp.MustCompile("(?i)" + expr)
		}
		return out
	}

	return &Router{routes: []route{
		{
			name: "goal adjustment",
			patterns: compile(
				`\b(lower|reduce|decrease|cut|drop|raise|increase|bump|adjust|change)\b[^.?!]*\bgoal\b`,
				`\bgoal\b[^.?!]*\b(lower|reduce|decrease|cut|drop|raise|increase|bump)\b`,
				`\bwhat if\b[^.?!]*\bgoal\b`,
			),
			calcType: TypeGoalAdjustment,
		},
		{
			name: "explicit rate projection",
			patterns: compile(
				`\b(growth|return)s?\s+rate\b`,
				`\bat\s+[0-9]+(\.[0-9]+)?\s*(?:%|percent\b)`,
			),
			calcType:   "rate",
			redirectTo: TypeNetWorthProjection,
		},
		{
			name: "retirement success odds",
			patterns: compile(
				`\b(chance|chances|probability|odds|likelihood)\b[^.?!]*\b(retir|goal|target|success)`,
				`\b(retir|goal|target)\w*\b[^.?!]*\b(chance|chances|probability|odds|likelihood)\b`,
				`\bsuccess\s+rate\b`,
				`\bhow\s+likely\b`,
			),
			calcType: TypeRetirementSuccess,
		},
		{
			name: "net worth projection",
			patterns: compile(
				`\bretire\b[^.?!]*\b(in|within)\s+[0-9]+\s*(years?|yrs?)\b`,
				`\b(project|projection|forecast)\b[^.?!]*\b(net\s*worth|wealth|savings|portfolio)\b`,
				`\b(net\s*worth|wealth|savings|portfolio)\b[^.?!]*\b(in|after|over)\s+[0-9]+\s*(years?|yrs?)\b`,
				`\bhow\s+much\b[^.?!]*\b(have|worth|grow)\b[^.?!]*\b[0-9]+\s*(years?|yrs?)\b`,
				`\b(grow|compound)\b[^.?!]*\b(savings|investments?|portfolio|net\s*worth)\b`,
			),
			calcType: TypeNetWorthProjection,
		},
		{
			name: "debt avalanche",
			patterns: compile(
				`\bpay(ing)?\s+(off|down)\b[^.?!]*\b(debt|loan|card|balance)s?\b`,
				`\bwhich\s+(debt|loan|card)\b`,
				`\bavalanche\b`,
				`\bhighest\s+interest\b`,
				`\b(debt|loan)s?\b[^.?!]*\b(first|order|priorit)`,
			),
			calcType: TypeDebtAvalanche,
		},
		{
			name: "withdrawal sustainability",
			patterns: compile(
				`\bwithdraw(al|ing)?\b`,
				`\b4\s*%\s*rule\b`,
				`\bhow\s+long\b[^.?!]*\b(money|savings|portfolio|assets)\b[^.?!]*\blast\b`,
				`\bsustain(able|ability)?\b[^.?!]*\b(spending|withdrawals?|income)\b`,
			),
			calcType: TypeWithdrawal,
		},
	}}
}

// Detect walks the route table in order; the first pattern that matches
// decides. Returns nil when no trigger vocabulary is present. Never errors.
func (r *Router) Detect(message string, history []string) *Detection {
	for _, rt := range r.routes {
		for _, pattern := range rt.patterns {
			if pattern.MatchString(message) {
				calcType := rt.calcType
				if rt.redirectTo != "" {
					calcType = rt.redirectTo
				}
				return &Detection{Type: calcType, Pattern: rt.name}
			}
		}
	}
	return nil
}

// ExtractParams resolves each parameter for the detected type from, in
// order: the known context facts, numbers in the message, then per-type
// defaults. It never fails; calculators validate what arrives.
func (r *Router) ExtractParams(message string, context map[string]float64, det *Detection) map[string]float64 {
	params := make(map[string]float64)
	if det == nil {
		return params
	}

	amounts := ParseCurrency(message)
	percents := ParsePercents(message)
	years, hasYears := ParseYears(message)

	rate := DefaultGrowthRate
	if len(percents) > 0 {
		rate = percents[0] / 100
	}

	switch det.Type {
	case TypeNetWorthProjection:
		params["principal"] = context[facts.KeyNetWorth]
		params["monthly_contribution"] = context[facts.KeyMonthlySurplus]
		params["rate"] = rate
		if hasYears {
			params["years"] = float64(years)
		} else {
			params["years"] = DefaultProjectionYears
		}

	case TypeGoalAdjustment:
		current := context[facts.KeyRetirementGoal]
		params["current_goal"] = current
		params["new_goal"] = resolveAdjustedGoal(message, current, amounts)
		params["current_assets"] = context[facts.KeyNetWorth]
		params["monthly_contribution"] = context[facts.KeyMonthlySurplus]
		params["rate"] = rate

	case TypeRetirementSuccess:
		params["current_assets"] = context[facts.KeyNetWorth]
		params["target"] = context[facts.KeyRetirementGoal]
		if params["target"] == 0 && len(amounts) > 0 {
			params["target"] = amounts[0]
		}
		params["annual_contribution"] = context[facts.KeyMonthlySurplus] * 12
		if hasYears {
			params["years"] = float64(years)
		} else {
			params["years"] = DefaultSuccessYears
		}
		params["alloc_stocks"] = DefaultAllocationStocks
		params["alloc_bonds"] = DefaultAllocationBonds
		params["alloc_cash"] = DefaultAllocationCash

	case TypeDebtAvalanche:
		params["total_debt"] = context[facts.KeyTotalDebt]

	case TypeWithdrawal:
		assets := context[facts.KeyLiquidAssets]
		if assets == 0 {
			assets = context[facts.KeyNetWorth]
		}
		params["assets"] = assets
		withdrawalRate := DefaultWithdrawalRate
		if len(percents) > 0 {
			withdrawalRate = percents[0] / 100
		}
		params["rate"] = withdrawalRate
		if hasYears {
			params["years"] = float64(years)
		} else {
			params["years"] = DefaultWithdrawalYears
		}
	}

	return params
}

var relativeDown = regexp.MustCompile(`(?i)\b(lower|reduce|decrease|cut|drop)\b`)
var relativeUp = regexp.MustCompile(`(?i)\b(raise|increase|bump|boost)\b`)

// resolveAdjustedGoal decides whether the message states an absolute new
// goal or a relative move against the current one. "lower by 200k" means
// current minus 200000, never an absolute 200000.
func resolveAdjustedGoal(message string, currentGoal float64, amounts []float64) float64 {
	if len(amounts) == 0 {
		return currentGoal
	}
	amount := amounts[0]
	relative := strings.Contains(strings.ToLower(message), " by ") ||
		strings.HasSuffix(strings.ToLower(message), " by")

	switch {
	case relative && relativeDown.MatchString(message):
		return currentGoal - amount
	case relative && relativeUp.MatchString(message):
		return currentGoal + amount
	default:
		return amount
	}
}
