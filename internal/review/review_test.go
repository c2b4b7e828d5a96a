package review

import "testing"

func TestTriage(t *testing.T) {
	findings := []Finding{
		{ID: "R1", Severity: Minor, Description: "naming"},
		{ID: "R2", Severity: Critical, Description: "sql injection"},
		{ID: "R3", Severity: Major, Description: "missing test", Resolved: true},
		{ID: "R4", Severity: Major, Description: "race"},
		{ID: "R5", Severity: Minor, Description: "typo", Disposition: Ignore},
	}
	d := Triage(findings)

	if len(d.MustFixNow) != 2 || d.MustFixNow[0].ID != "R2" || d.MustFixNow[1].ID != "R4" {
		t.Errorf("MustFixNow = %+v", d.MustFixNow)
	}
	if len(d.AskOperator) != 1 || d.AskOperator[0].ID != "R1" {
		t.Errorf("AskOperator = %+v", d.AskOperator)
	}
	if !d.Blocked() {
		t.Error("Blocked() = false, want true")
	}
	if n := Unresolved(findings); n != 2 {
		t.Errorf("Unresolved = %d, want 2", n)
	}
}

func TestTriage_Empty(t *testing.T) {
	d := Triage(nil)
	if d.Blocked() || d.MustFixNow == nil || d.AskOperator == nil {
		t.Errorf("Triage(nil) = %+v", d)
	}
}

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{
		"Critical": Critical,
		"blocker":  Critical,
		"MAJOR":    Major,
		"nit":      Minor,
		"minor ":   Minor,
		"???":      Major,
		"":         Major,
	}
	for in, want := range tests {
		if got := ParseSeverity(in); got != want {
			t.Errorf("ParseSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDisposition(t *testing.T) {
	for _, s := range Dispositions {
		if _, err := ParseDisposition(s); err != nil {
			t.Errorf("ParseDisposition(%q): %v", s, err)
		}
	}
	if _, err := ParseDisposition("later"); err == nil {
		t.Error("expected error for unknown disposition")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Finding{
		{Severity: "high", Description: " a "},
		{ID: "keep", Severity: "low"},
	}, 4)
	if got[0].ID != "R5" || got[0].Severity != Critical || got[0].Description != "a" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].ID != "keep" || got[1].Severity != Minor {
		t.Errorf("got[1] = %+v", got[1])
	}
}
