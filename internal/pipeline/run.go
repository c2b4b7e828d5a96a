// Package pipeline holds the state of a single issue run and persists it.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/plan"
	"github.com/lucasnoah/issuesmith/internal/requirements"
	"github.com/lucasnoah/issuesmith/internal/review"
	"github.com/lucasnoah/issuesmith/internal/verify"
)

// ErrGuard is returned when a transition's entry condition does not hold.
var ErrGuard = errors.New("transition guard not satisfied")

// Phase is a state of the run.
type Phase string

const (
	Fetched      Phase = "FETCHED"
	Analyzed     Phase = "ANALYZED"
	Clarified    Phase = "CLARIFIED"
	Planned      Phase = "PLANNED"
	Implemented  Phase = "IMPLEMENTED"
	Verified     Phase = "VERIFIED"
	Reviewed     Phase = "REVIEWED"
	Triaged      Phase = "TRIAGED"
	Materialized Phase = "MATERIALIZED"
	Published    Phase = "PUBLISHED"
	Aborted      Phase = "ABORTED"
)

// PendingManualAction is the sub-state of Published when a write was
// refused for lack of permission.
const PendingManualAction = "PendingManualAction"

var order = []Phase{Fetched, Analyzed, Clarified, Planned, Implemented, Verified, Reviewed, Triaged, Materialized, Published}

// Phases returns the forward sequence.
func Phases() []Phase {
	return append([]Phase(nil), order...)
}

func (p Phase) index() int {
	for i, q := range order {
		if q == p {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == Published || p == Aborted
}

// backEdges are the loops of the fix cycles: a failed verification or a
// blocking review re-enters implementation, and a rejected plan is
// re-planned.
var backEdges = map[Phase][]Phase{
	Implemented: {Implemented, Verified, Reviewed, Triaged},
	Planned:     {Planned},
}

// Counters are the retry counters of a run. Each is compared against a
// configured bound by the orchestrator.
type Counters struct {
	VerifyAttempts int `json:"verify_attempts"`
	ReviewCycles   int `json:"review_cycles"`
	Reviews        int `json:"reviews"`
	WorkerRetries  int `json:"worker_retries"`
	PlanRevisions  int `json:"plan_revisions"`
}

// TraceEntry records one transition.
type TraceEntry struct {
	From Phase     `json:"from,omitempty"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Implementation is the latest Implementer output.
type Implementation struct {
	Summary string   `json:"summary"`
	Files   []string `json:"files"`
	Diff    string   `json:"diff,omitempty"`
}

// Run is the complete state of one issue run.
type Run struct {
	ID            string `json:"id"`
	IssueID       string `json:"issue_id"`
	Phase         Phase  `json:"phase"`
	SubState      string `json:"sub_state,omitempty"`
	LastGoodPhase Phase  `json:"last_good_phase,omitempty"`
	Cause         string `json:"cause,omitempty"`

	Snapshot       *issue.Snapshot              `json:"snapshot,omitempty"`
	Summary        *requirements.Summary        `json:"summary,omitempty"`
	Plan           *plan.Plan                   `json:"plan,omitempty"`
	Implementation *Implementation              `json:"implementation,omitempty"`
	Verifications  []verify.Result              `json:"verifications,omitempty"`
	AcceptedAsIs   bool                         `json:"accepted_unverified,omitempty"`
	Findings       []review.Finding             `json:"findings,omitempty"`
	CommitPlan     *artifact.CommitPlan         `json:"commit_plan,omitempty"`
	Draft          *artifact.ChangeRequestDraft `json:"draft,omitempty"`
	ChangeRequest  *artifact.ChangeRequest      `json:"change_request,omitempty"`
	Published      []string                     `json:"published_steps,omitempty"`
	ManualSteps    []string                     `json:"manual_steps,omitempty"`

	Counters  Counters     `json:"counters"`
	Trace     []TraceEntry `json:"trace"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewRun starts a run for an issue. The run has no phase until the issue
// is fetched.
func NewRun(id, issueID string, now time.Time) *Run {
	return &Run{ID: id, IssueID: issueID, Trace: []TraceEntry{}, CreatedAt: now, UpdatedAt: now}
}

// LastVerification returns the most recent verification result.
func (r *Run) LastVerification() (verify.Result, bool) {
	if len(r.Verifications) == 0 {
		return verify.Result{}, false
	}
	return r.Verifications[len(r.Verifications)-1], true
}

// CanEnter reports whether next may be entered from the current phase and
// its guard holds. It never mutates the run.
func (r *Run) CanEnter(next Phase) error {
	if r.Phase.Terminal() {
		return fmt.Errorf("%w: run is %s", ErrGuard, r.Phase)
	}
	if next == Aborted {
		return nil
	}
	if !r.reachable(next) {
		from := r.Phase
		if from == "" {
			from = "start"
		}
		return fmt.Errorf("%w: %s cannot follow %s", ErrGuard, next, from)
	}
	if err := r.guard(next); err != nil {
		return fmt.Errorf("%w: enter %s: %s", ErrGuard, next, err)
	}
	return nil
}

func (r *Run) reachable(next Phase) bool {
	if next.index() == r.Phase.index()+1 {
		return true
	}
	for _, from := range backEdges[next] {
		if from == r.Phase {
			return true
		}
	}
	return false
}

func (r *Run) guard(next Phase) error {
	switch next {
	case Fetched:
		if r.Snapshot == nil {
			return errors.New("no issue snapshot")
		}
	case Analyzed:
		if r.Summary == nil {
			return errors.New("no requirements summary")
		}
	case Clarified:
		if r.Summary == nil {
			return errors.New("no requirements summary")
		}
		if r.Summary.HasOpenQuestions() {
			return fmt.Errorf("%d open question(s)", len(r.Summary.OpenQuestions))
		}
	case Planned:
		if r.Plan == nil {
			return errors.New("no plan")
		}
	case Implemented:
		if r.Summary == nil || r.Summary.HasOpenQuestions() {
			return errors.New("requirements have open questions")
		}
		if err := r.Plan.RequireApproved(); err != nil {
			return err
		}
		if r.Implementation == nil {
			return errors.New("no implementation")
		}
	case Verified:
		v, ok := r.LastVerification()
		switch {
		case !ok:
			return errors.New("verification has not run")
		case v.Failed():
			return errors.New("verification failed")
		case v.TimedOut && !r.AcceptedAsIs:
			return errors.New("verification timed out")
		}
	case Reviewed:
		if r.Counters.Reviews == 0 {
			return errors.New("no review has run")
		}
	case Triaged:
		if n := review.Unresolved(r.Findings); n > 0 {
			return fmt.Errorf("%d unresolved critical/major finding(s)", n)
		}
	case Materialized:
		d := review.Triage(r.Findings)
		if d.Blocked() {
			return fmt.Errorf("%d unresolved critical/major finding(s)", len(d.MustFixNow))
		}
		if len(d.AskOperator) > 0 {
			return fmt.Errorf("%d minor finding(s) without disposition", len(d.AskOperator))
		}
		if r.CommitPlan == nil || r.Draft == nil {
			return errors.New("no artifacts")
		}
	case Published:
		if r.ChangeRequest == nil && len(r.ManualSteps) == 0 {
			return errors.New("nothing published")
		}
	}
	return nil
}

// Enter moves the run to next, recording the transition. On error the run
// is unchanged.
func (r *Run) Enter(next Phase, now time.Time, note string) error {
	if err := r.CanEnter(next); err != nil {
		return err
	}
	r.Trace = append(r.Trace, TraceEntry{From: r.Phase, To: next, At: now, Note: note})
	if next != Aborted {
		r.LastGoodPhase = next
	}
	r.Phase = next
	r.UpdatedAt = now
	return nil
}

// Abort moves the run to Aborted with a cause. Aborting a terminal run is
// a no-op.
func (r *Run) Abort(cause string, now time.Time) {
	if r.Phase.Terminal() {
		return
	}
	r.Cause = cause
	_ = r.Enter(Aborted, now, cause)
}

// Reached reports whether the trace ever entered p.
func (r *Run) Reached(p Phase) bool {
	for _, t := range r.Trace {
		if t.To == p {
			return true
		}
	}
	return false
}
