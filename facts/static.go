package facts

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StaticSource serves profiles from memory. It backs tests, the CLI demo
// mode, and any deployment that loads profiles at startup.
type StaticSource struct {
	mu       sync.RWMutex
	profiles map[string]Snapshot
}

func NewStaticSource() *StaticSource {
	return &StaticSource{profiles: make(map[string]Snapshot)}
}

func (s *StaticSource) Put(userID string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[normalize(userID)] = snap
}

func (s *StaticSource) Profile(ctx context.Context, userID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.profiles[normalize(userID)]
	if !ok {
		return Snapshot{}, fmt.Errorf("no profile for user %s", userID)
	}
	return snap, nil
}

func normalize(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}

// NewDemoSource seeds the demo profile the CLI and examples use.
func NewDemoSource() *StaticSource {
	s := NewStaticSource()
	s.Put("123", Snapshot{
		Accounts: []Account{
			{Name: "Checking", Category: AccountCash, Balance: 70000},
			{Name: "Brokerage", Category: AccountInvestment, Balance: 950000},
			{Name: "401(k)", Category: AccountRetirement, Balance: 1150000},
			{Name: "Home equity", Category: AccountProperty, Balance: 450000},
		},
		Debts: []Debt{
			{Name: "Credit card", Balance: 8000, AnnualRate: 0.229, MinPayment: 200},
			{Name: "Auto loan", Balance: 32000, AnnualRate: 0.064, MinPayment: 450},
			{Name: "Student loan", Balance: 80000, AnnualRate: 0.058, MinPayment: 300},
		},
		MonthlyIncome:   12000,
		MonthlyExpenses: 5000,
		RetirementGoal:  3500000,
	})
	return s
}

var _ Source = (*StaticSource)(nil)
