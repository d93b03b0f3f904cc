package trust

import "testing"

func TestNext_TransitionTable(t *testing.T) {
	cases := []struct {
		from    Level
		d       Decision
		want    Level
		wantErr bool
	}{
		{Untrusted, DecisionPass, Validated, false},
		{Untrusted, DecisionFlag, Flagged, false},
		{Untrusted, DecisionQuarantine, Quarantined, false},
		{Flagged, DecisionPass, Validated, false},
		{Flagged, DecisionFlag, Flagged, false},
		{Flagged, DecisionQuarantine, Quarantined, false},
		{Validated, DecisionPass, Validated, true},
		{Validated, DecisionFlag, Validated, true},
		{Validated, DecisionQuarantine, Validated, true},
		{Quarantined, DecisionPass, Quarantined, true},
		{Quarantined, DecisionFlag, Quarantined, true},
		{Quarantined, DecisionQuarantine, Quarantined, true},
	}

	for _, c := range cases {
		got, err := Next(c.from, c.d)
		if c.wantErr && err == nil {
			t.Errorf("Next(%s, %s): expected error", c.from, c.d)
		}
		if !c.wantErr && err != nil {
			t.Errorf("Next(%s, %s): unexpected error %v", c.from, c.d, err)
		}
		if got != c.want {
			t.Errorf("Next(%s, %s) = %s, want %s", c.from, c.d, got, c.want)
		}
	}
}

func TestNext_NoUntrustedToValidatedSkip(t *testing.T) {
	// The only way from UNTRUSTED to VALIDATED is a pass decision from an
	// actual validation run; there is no other edge.
	for _, d := range []Decision{DecisionFlag, DecisionQuarantine} {
		got, err := Next(Untrusted, d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == Validated {
			t.Errorf("decision %s must not reach VALIDATED", d)
		}
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityCritical.Rank() <= SeverityHigh.Rank() {
		t.Error("CRITICAL must outrank HIGH")
	}
	if SeverityHigh.Rank() <= SeverityMedium.Rank() {
		t.Error("HIGH must outrank MEDIUM")
	}
	if SeverityMedium.Rank() <= SeverityLow.Rank() {
		t.Error("MEDIUM must outrank LOW")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity must rank 0")
	}
}
