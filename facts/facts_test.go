package facts_test

import (
	"context"
	"testing"
	"time"

	"github.com/debashishroy00/wpa-sub002/facts"
)

func TestDeriveClaims(t *testing.T) {
	snap := facts.Snapshot{
		Accounts: []facts.Account{
			{Name: "Checking", Category: facts.AccountCash, Balance: 10000},
			{Name: "Brokerage", Category: facts.AccountInvestment, Balance: 90000},
			{Name: "Condo", Category: facts.AccountProperty, Balance: 200000},
		},
		Debts: []facts.Debt{
			{Name: "Card", Balance: 5000, AnnualRate: 0.2},
		},
		MonthlyIncome:   8000,
		MonthlyExpenses: 6000,
		RetirementGoal:  1000000,
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := facts.ClaimMap(facts.Derive(snap, now))

	if got := m[facts.KeyTotalAssets]; got != 300000 {
		t.Fatalf("total assets = %v, want 300000", got)
	}
	if got := m[facts.KeyLiquidAssets]; got != 100000 {
		t.Fatalf("liquid assets = %v, want 100000 (property excluded)", got)
	}
	if got := m[facts.KeyNetWorth]; got != 295000 {
		t.Fatalf("net worth = %v, want 295000", got)
	}
	if got := m[facts.KeyMonthlySurplus]; got != 2000 {
		t.Fatalf("monthly surplus = %v, want 2000", got)
	}
	if got := m[facts.KeySavingsRate]; got != 25 {
		t.Fatalf("savings rate = %v, want 25", got)
	}
	if got := m[facts.KeyRetirementGoal]; got != 1000000 {
		t.Fatalf("retirement goal = %v, want 1000000", got)
	}
}

func TestDeriveZeroIncome(t *testing.T) {
	m := facts.ClaimMap(facts.Derive(facts.Snapshot{MonthlyExpenses: 500}, time.Now()))
	if got := m[facts.KeySavingsRate]; got != 0 {
		t.Fatalf("savings rate with zero income = %v, want 0", got)
	}
	if got := m[facts.KeyMonthlySurplus]; got != -500 {
		t.Fatalf("monthly surplus = %v, want -500", got)
	}
	if _, ok := m[facts.KeyRetirementGoal]; ok {
		t.Fatalf("retirement goal claim should be omitted when unset")
	}
}

func TestClaimsFreshPerCall(t *testing.T) {
	src := facts.NewStaticSource()
	src.Put("123", facts.Snapshot{MonthlyIncome: 1000})
	svc := facts.NewService(src)

	first, err := svc.Claims(context.Background(), "123")
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}

	src.Put("123", facts.Snapshot{MonthlyIncome: 2000})
	second, err := svc.Claims(context.Background(), "123")
	if err != nil {
		t.Fatalf("Claims after update: %v", err)
	}

	if facts.ClaimMap(first)[facts.KeyMonthlyIncome] != 1000 {
		t.Fatalf("first derivation mutated")
	}
	if facts.ClaimMap(second)[facts.KeyMonthlyIncome] != 2000 {
		t.Fatalf("claims not recomputed from source, got %v", facts.ClaimMap(second)[facts.KeyMonthlyIncome])
	}
	for _, c := range second {
		if c.ComputedAt.IsZero() {
			t.Fatalf("claim %s missing computed_at", c.Key)
		}
	}
}

func TestDemoSourceBalances(t *testing.T) {
	svc := facts.NewService(facts.NewDemoSource())
	claims, err := svc.Claims(context.Background(), "123")
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	m := facts.ClaimMap(claims)
	if m[facts.KeyNetWorth] != 2500000 {
		t.Fatalf("demo net worth = %v, want 2500000", m[facts.KeyNetWorth])
	}
	if m[facts.KeyMonthlySurplus] != 7000 {
		t.Fatalf("demo monthly surplus = %v, want 7000", m[facts.KeyMonthlySurplus])
	}
}

func TestStaticSourceUnknownUser(t *testing.T) {
	_, err := facts.NewStaticSource().Profile(context.Background(), "ghost")
	if err == nil {
		t.Fatalf("expected error for unknown user")
	}
}
