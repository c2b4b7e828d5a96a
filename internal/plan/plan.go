// Package plan holds the implementation plan and its approval state.
package plan

import (
	"errors"
	"sort"
)

// ErrNotApproved is returned when code changes are attempted on a plan the
// operator has not approved.
var ErrNotApproved = errors.New("plan not approved")

// ApprovalState tracks the operator's verdict.
type ApprovalState string

const (
	Proposed ApprovalState = "proposed"
	Approved ApprovalState = "approved"
)

// Plan lists what an implementation will touch.
type Plan struct {
	TargetFiles   []string      `json:"target_files"`
	Conventions   string        `json:"conventions,omitempty"`
	ApprovalState ApprovalState `json:"approval_state"`
	Revision      int           `json:"revision"`
	Feedback      []string      `json:"feedback,omitempty"`
}

// New proposes a plan over files. Duplicates are removed and the list is
// sorted.
func New(files []string, conventions string, revision int) *Plan {
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return &Plan{TargetFiles: out, Conventions: conventions, ApprovalState: Proposed, Revision: revision}
}

// Approve marks the plan approved.
func (p *Plan) Approve() { p.ApprovalState = Approved }

// Reject records operator feedback; the plan stays Proposed.
func (p *Plan) Reject(feedback string) {
	p.ApprovalState = Proposed
	if feedback != "" {
		p.Feedback = append(p.Feedback, feedback)
	}
}

// IsApproved reports whether the operator approved the plan.
func (p *Plan) IsApproved() bool {
	return p != nil && p.ApprovalState == Approved
}

// RequireApproved returns ErrNotApproved unless the plan is approved.
func (p *Plan) RequireApproved() error {
	if !p.IsApproved() {
		return ErrNotApproved
	}
	return nil
}
