package facts

import (
	"context"
	"fmt"
	"time"
)

// Claim is a deterministically derived profile fact. Claims are recomputed on
// every request, never cached across users, and carry the unit and timestamp
// the validator and synthesis prompts rely on.
type Claim struct {
	Key        string    `json:"key"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	ComputedAt time.Time `json:"computed_at"`
}

const (
	UnitUSD     = "USD"
	UnitPercent = "percent"
)

const (
	KeyTotalAssets     = "total_assets"
	KeyLiquidAssets    = "liquid_assets"
	KeyTotalDebt       = "total_debt"
	KeyNetWorth        = "net_worth"
	KeyMonthlyIncome   = "monthly_income"
	KeyMonthlyExpenses = "monthly_expenses"
	KeyMonthlySurplus  = "monthly_surplus"
	KeySavingsRate     = "savings_rate"
	KeyRetirementGoal  = "retirement_goal"
)

const (
	AccountCash       = "cash"
	AccountInvestment = "investment"
	AccountRetirement = "retirement"
	AccountProperty   = "property"
)

type Account struct {
	Name     string
	Category string
	Balance  float64
}

type Debt struct {
	Name       string
	Balance    float64
	AnnualRate float64
	MinPayment float64
}

// Snapshot is the raw profile a Source returns; claims are derived from it.
type Snapshot struct {
	Accounts        []Account
	Debts           []Debt
	MonthlyIncome   float64
	MonthlyExpenses float64
	RetirementGoal  float64
}

type Source interface {
	Profile(ctx context.Context, userID string) (Snapshot, error)
}

// Service derives claims from a profile source. It holds no per-user state;
// every Claims call re-reads the source and re-derives.
type Service struct {
	source Source
}

func NewService(source Source) *Service {
	return &Service{source: source}
}

func (s *Service) Profile(ctx context.Context, userID string) (Snapshot, error) {
	return s.source.Profile(ctx, userID)
}

func (s *Service) Claims(ctx context.Context, userID string) ([]Claim, error) {
	snap, err := s.source.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile for claims: %w", err)
	}
	return Derive(snap, time.Now().UTC()), nil
}

// Derive computes the claim set from a snapshot. Split out so tests can pin
// the timestamp.
func Derive(snap Snapshot, now time.Time) []Claim {
	var totalAssets, liquidAssets float64
	for _, acct := range snap.Accounts {
		totalAssets += acct.Balance
		if acct.Category == AccountCash || acct.Category == AccountInvestment {
			liquidAssets += acct.Balance
		}
	}

	var totalDebt float64
	for _, d := range snap.Debts {
		totalDebt += d.Balance
	}

	surplus := snap.MonthlyIncome - snap.MonthlyExpenses
	savingsRate := 0.0
	if snap.MonthlyIncome > 0 {
		savingsRate = surplus / snap.MonthlyIncome * 100
	}

	claims := []Claim{
		{Key: KeyTotalAssets, Value: totalAssets, Unit: UnitUSD, ComputedAt: now},
		{Key: KeyLiquidAssets, Value: liquidAssets, Unit: UnitUSD, ComputedAt: now},
		{Key: KeyTotalDebt, Value: totalDebt, Unit: UnitUSD, ComputedAt: now},
		{Key: KeyNetWorth, Value: totalAssets - totalDebt, Unit: UnitUSD, ComputedAt: now},
		{Key: KeyMonthlyIncome, Value: snap.MonthlyIncome, Unit: UnitUSD, ComputedAt: now},
		{Key: KeyMonthlyExpenses, Value: snap.MonthlyExpenses, Unit: UnitUSD, ComputedAt: now},
		{Key: KeyMonthlySurplus, Value: surplus, Unit: UnitUSD, ComputedAt: now},
		{Key: KeySavingsRate, Value: savingsRate, Unit: UnitPercent, ComputedAt: now},
	}
	if snap.RetirementGoal > 0 {
		claims = append(claims, Claim{Key: KeyRetirementGoal, Value: snap.RetirementGoal, Unit: UnitUSD, ComputedAt: now})
	}
	return claims
}

// ClaimMap flattens claims to key/value pairs for parameter resolution.
func ClaimMap(claims []Claim) map[string]float64 {
	m := make(map[string]float64, len(claims))
	for _, c := range claims {
		m[c.Key] = c.Value
	}
	return m
}
