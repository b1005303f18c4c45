package advisor

import (
	"testing"
	"time"

	"github.com/debashishroy00/wpa-sub002/calc"
)

func TestSessionsPutAndLast(t *testing.T) {
	s := NewSessions(0)

	if _, ok := s.Last("123", "a"); ok {
		t.Fatal("expected no record in a fresh store")
	}

	rec := calc.NewRecord("123", "a", calc.TypeNetWorthProjection)
	rec.Inputs["years"] = 5
	s.Put(rec)

	got, ok := s.Last("123", "a")
	if !ok {
		t.Fatal("expected the stored record")
	}
	if got.CalculationID != rec.CalculationID {
		t.Errorf("CalculationID = %s, want %s", got.CalculationID, rec.CalculationID)
	}
	if got.Inputs["years"] != 5 {
		t.Errorf("years = %v, want 5", got.Inputs["years"])
	}

	if _, ok := s.Last("123", "b"); ok {
		t.Error("record leaked across sessions")
	}
	if _, ok := s.Last("456", "a"); ok {
		t.Error("record leaked across users")
	}
}

func TestSessionsOverwrite(t *testing.T) {
	s := NewSessions(0)

	first := calc.NewRecord("123", "a", calc.TypeWithdrawal)
	second := calc.NewRecord("123", "a", calc.TypeNetWorthProjection)
	s.Put(first)
	s.Put(second)

	got, ok := s.Last("123", "a")
	if !ok {
		t.Fatal("expected a record")
	}
	if got.CalculationID != second.CalculationID {
		t.Errorf("Last returned %s, want the overwriting record %s", got.CalculationID, second.CalculationID)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSessionsClearUser(t *testing.T) {
	s := NewSessions(0)
	s.Put(calc.NewRecord("123", "a", calc.TypeWithdrawal))
	s.Put(calc.NewRecord("123", "b", calc.TypeDebtAvalanche))
	s.Put(calc.NewRecord("456", "a", calc.TypeWithdrawal))

	if removed := s.ClearUser("123"); removed != 2 {
		t.Errorf("ClearUser removed %d, want 2", removed)
	}
	if _, ok := s.Last("123", "a"); ok {
		t.Error("cleared record still present")
	}
	if _, ok := s.Last("456", "a"); !ok {
		t.Error("other user's record was dropped")
	}
	if removed := s.ClearUser("123"); removed != 0 {
		t.Errorf("second clear removed %d, want 0", removed)
	}
}

func TestSessionsExpiry(t *testing.T) {
	s := NewSessions(time.Millisecond)
	s.Put(calc.NewRecord("123", "a", calc.TypeWithdrawal))

	time.Sleep(5 * time.Millisecond)
	if _, ok := s.Last("123", "a"); ok {
		t.Error("expired record still returned")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 after expiry read", s.Len())
	}
}
