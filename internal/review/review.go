// Package review classifies reviewer findings and decides which block
// publication.
package review

import (
	"fmt"
	"strings"
)

// Severity ranks a finding.
type Severity string

const (
	Critical Severity = "critical"
	Major    Severity = "major"
	Minor    Severity = "minor"
)

// ParseSeverity accepts the common spellings reviewers use. Anything it
// does not recognize is treated as Major so it cannot slip through.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "high":
		return Critical
	case "minor", "low", "nit", "info", "suggestion":
		return Minor
	default:
		return Major
	}
}

// Blocking reports whether findings of this severity must be fixed before
// artifacts are materialized.
func (s Severity) Blocking() bool {
	return s == Critical || s == Major
}

// Disposition is the operator's call on a minor finding.
type Disposition string

const (
	FixNow Disposition = "fix_now"
	Defer  Disposition = "defer"
	Ignore Disposition = "ignore"
)

// Dispositions lists the choices offered to the operator, in display order.
var Dispositions = []string{string(FixNow), string(Defer), string(Ignore)}

// ParseDisposition validates a disposition string.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(s); d {
	case FixNow, Defer, Ignore:
		return d, nil
	}
	return "", fmt.Errorf("unknown disposition %q", s)
}

// Finding is one reviewer observation.
type Finding struct {
	ID          string      `json:"id"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Location    string      `json:"location,omitempty"`
	Resolved    bool        `json:"resolved"`
	Disposition Disposition `json:"disposition,omitempty"`
}

// Decision splits unresolved findings by who acts on them next.
type Decision struct {
	MustFixNow  []Finding `json:"must_fix_now"`
	AskOperator []Finding `json:"ask_operator"`
}

// Blocked reports whether any finding must be fixed before proceeding.
func (d Decision) Blocked() bool { return len(d.MustFixNow) > 0 }

// Triage places unresolved Critical and Major findings in MustFixNow and
// unresolved Minor findings without a disposition in AskOperator. Order is
// preserved.
func Triage(findings []Finding) Decision {
	d := Decision{MustFixNow: []Finding{}, AskOperator: []Finding{}}
	for _, f := range findings {
		if f.Resolved {
			continue
		}
		switch {
		case f.Severity.Blocking():
			d.MustFixNow = append(d.MustFixNow, f)
		case f.Disposition == "":
			d.AskOperator = append(d.AskOperator, f)
		}
	}
	return d
}

// Unresolved counts blocking findings that are not resolved.
func Unresolved(findings []Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity.Blocking() && !f.Resolved {
			n++
		}
	}
	return n
}

// Normalize fills missing IDs and canonicalizes severities. IDs are
// R1, R2, ... in order, offset by base so later review cycles do not reuse
// earlier IDs.
func Normalize(findings []Finding, base int) []Finding {
	out := make([]Finding, len(findings))
	for i, f := range findings {
		f.Severity = ParseSeverity(string(f.Severity))
		if f.ID == "" {
			f.ID = fmt.Sprintf("R%d", base+i+1)
		}
		f.Description = strings.TrimSpace(f.Description)
		out[i] = f
	}
	return out
}
