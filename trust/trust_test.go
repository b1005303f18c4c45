package trust

import "testing"

func TestValidateCleanWithCitation(t *testing.T) {
	set := NewSet()
	set.Add(2500000)
	report := Validate("Your net worth is $2,500,000 [KB-RET-001].", set)
	if !report.IsValid {
		t.Fatalf("violations = %+v, want none", report.Violations)
	}
	if report.Tier != TierHigh {
		t.Errorf("Tier = %s, want %s", report.Tier, TierHigh)
	}
}

func TestValidateCleanWithoutCitation(t *testing.T) {
	set := NewSet()
	set.Add(2500000)
	report := Validate("Your net worth is $2,500,000.", set)
	if !report.IsValid {
		t.Fatalf("violations = %+v, want none", report.Violations)
	}
	if report.Tier != TierMedium {
		t.Errorf("Tier = %s, want %s", report.Tier, TierMedium)
	}
}

func TestValidateUnverifiedAmount(t *testing.T) {
	set := NewSet()
	set.Add(2500000)
	report := Validate("You should have $999,999 by then.", set)
	if report.IsValid || report.Tier != TierLow {
		t.Fatalf("report = %+v, want invalid LOW", report)
	}
	if len(report.Violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", report.Violations)
	}
	v := report.Violations[0]
	if v.Kind != KindUnverifiedNumber || v.Token != "$999,999" {
		t.Errorf("violation = %+v", v)
	}
}

func TestValidateOneViolationPerToken(t *testing.T) {
	report := Validate("Expect $999 now and $999 later, an 88% chance.", NewSet())
	if len(report.Violations) != 3 {
		t.Errorf("violations = %+v, want one per token (3)", report.Violations)
	}
}

func TestValidateBannedPhrase(t *testing.T) {
	report := Validate("I calculated this from your balances.", NewSet())
	if report.IsValid || report.Tier != TierLow {
		t.Fatalf("report = %+v, want invalid LOW", report)
	}
	if len(report.Violations) != 1 || report.Violations[0].Kind != KindBannedPhrase {
		t.Errorf("violations = %+v, want one banned phrase", report.Violations)
	}
}

func TestValidateAcceptsDisplayRounding(t *testing.T) {
	set := NewSet()
	set.Add(58.333333333)
	for _, text := range []string{
		"Your savings rate is 58.3%.",
		"Your savings rate is about 58%.",
	} {
		if report := Validate(text, set); !report.IsValid {
			t.Errorf("Validate(%q) violations = %+v, want none", text, report.Violations)
		}
	}
}

func TestValidateNormalizesSuffixes(t *testing.T) {
	set := NewSet()
	set.Add(2500000)
	if report := Validate("That puts you at $2.5 million.", set); !report.IsValid {
		t.Errorf("violations = %+v, want none", report.Violations)
	}
}

func TestAddTextAdmitsExcerptNumbers(t *testing.T) {
	set := NewSet()
	set.AddText("The 4% rule suggests withdrawing 4% of the starting balance.")
	if !set.Contains(4) {
		t.Error("expected 4 in the set after AddText")
	}
	report := Validate("Guidance often starts from the 4% rule.", set)
	if !report.IsValid {
		t.Errorf("violations = %+v, want none", report.Violations)
	}
}
