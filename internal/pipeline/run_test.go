package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/plan"
	"github.com/lucasnoah/issuesmith/internal/requirements"
	"github.com/lucasnoah/issuesmith/internal/review"
	"github.com/lucasnoah/issuesmith/internal/verify"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func mustEnter(t *testing.T, r *Run, p Phase) {
	t.Helper()
	if err := r.Enter(p, t0, ""); err != nil {
		t.Fatalf("Enter(%s): %v", p, err)
	}
}

// runAtPlanned returns a run that has reached PLANNED with an approved plan.
func runAtPlanned(t *testing.T) *Run {
	t.Helper()
	r := NewRun("run-1", "42", t0)
	r.Snapshot = &issue.Snapshot{ID: "42", Title: "Add email validation"}
	mustEnter(t, r, Fetched)
	r.Summary = &requirements.Summary{ChangeType: requirements.Feature, MustHave: []string{"reject bad emails"}}
	mustEnter(t, r, Analyzed)
	mustEnter(t, r, Clarified)
	r.Plan = plan.New([]string{"signup/validate.go"}, "", 0)
	mustEnter(t, r, Planned)
	r.Plan.Approve()
	return r
}

func TestRun_HappyPath(t *testing.T) {
	r := runAtPlanned(t)
	r.Implementation = &Implementation{Summary: "validate email"}
	mustEnter(t, r, Implemented)
	r.Verifications = append(r.Verifications, verify.Result{TestsRun: true, TestsPassed: verify.Pass, LintPassed: verify.Pass})
	mustEnter(t, r, Verified)
	r.Counters.Reviews++
	r.Findings = []review.Finding{{ID: "R1", Severity: review.Minor, Disposition: review.Ignore}}
	mustEnter(t, r, Reviewed)
	mustEnter(t, r, Triaged)
	r.CommitPlan = &artifact.CommitPlan{BranchName: "issue-42/x"}
	r.Draft = &artifact.ChangeRequestDraft{HeadBranch: "issue-42/x"}
	mustEnter(t, r, Materialized)
	r.ChangeRequest = &artifact.ChangeRequest{ID: "7"}
	mustEnter(t, r, Published)

	if len(r.Trace) != 10 {
		t.Errorf("trace = %d entries, want 10", len(r.Trace))
	}
	if r.LastGoodPhase != Published {
		t.Errorf("LastGoodPhase = %s", r.LastGoodPhase)
	}
	if err := r.Enter(Aborted, t0, ""); !errors.Is(err, ErrGuard) {
		t.Errorf("abort after publish: err = %v", err)
	}
}

func TestRun_NoSkipping(t *testing.T) {
	r := NewRun("run-1", "42", t0)
	r.Snapshot = &issue.Snapshot{ID: "42"}
	r.Summary = &requirements.Summary{}
	if err := r.Enter(Analyzed, t0, ""); !errors.Is(err, ErrGuard) {
		t.Fatalf("skip FETCHED: err = %v", err)
	}
	if r.Phase != "" || len(r.Trace) != 0 {
		t.Errorf("run mutated on failed guard: %+v", r)
	}
	mustEnter(t, r, Fetched)
	if err := r.Enter(Clarified, t0, ""); !errors.Is(err, ErrGuard) {
		t.Errorf("skip ANALYZED: err = %v", err)
	}
}

func TestRun_ClarifiedRequiresNoOpenQuestions(t *testing.T) {
	r := NewRun("run-1", "42", t0)
	r.Snapshot = &issue.Snapshot{ID: "42"}
	mustEnter(t, r, Fetched)
	r.Summary = &requirements.Summary{OpenQuestions: []requirements.Question{{ID: "Q1"}}}
	mustEnter(t, r, Analyzed)
	if err := r.Enter(Clarified, t0, ""); !errors.Is(err, ErrGuard) {
		t.Fatalf("err = %v, want ErrGuard", err)
	}
	if r.Phase != Analyzed {
		t.Errorf("phase = %s", r.Phase)
	}
}

func TestRun_ImplementedRequiresApproval(t *testing.T) {
	r := runAtPlanned(t)
	r.Plan.Reject("touch fewer files")
	r.Implementation = &Implementation{Summary: "x"}
	err := r.Enter(Implemented, t0, "")
	if !errors.Is(err, ErrGuard) || !errors.Is(err, plan.ErrNotApproved) {
		t.Fatalf("err = %v, want ErrGuard wrapping ErrNotApproved", err)
	}
	r.Plan.Approve()
	mustEnter(t, r, Implemented)
}

func TestRun_VerifiedGuard(t *testing.T) {
	r := runAtPlanned(t)
	r.Implementation = &Implementation{Summary: "x"}
	mustEnter(t, r, Implemented)

	if err := r.Enter(Verified, t0, ""); !errors.Is(err, ErrGuard) {
		t.Errorf("no verification: err = %v", err)
	}
	r.Verifications = append(r.Verifications, verify.Result{TestsRun: true, TestsPassed: verify.Fail})
	if err := r.Enter(Verified, t0, ""); !errors.Is(err, ErrGuard) {
		t.Errorf("failed verification: err = %v", err)
	}
	mustEnter(t, r, Implemented) // fix loop

	r.Verifications = append(r.Verifications, verify.Result{TestsRun: true, TestsPassed: verify.Unknown, TimedOut: true})
	if err := r.Enter(Verified, t0, ""); !errors.Is(err, ErrGuard) {
		t.Errorf("timed out verification: err = %v", err)
	}
	r.AcceptedAsIs = true
	mustEnter(t, r, Verified)
}

func TestRun_TriagedAndMaterializedGuards(t *testing.T) {
	r := runAtPlanned(t)
	r.Implementation = &Implementation{Summary: "x"}
	mustEnter(t, r, Implemented)
	r.Verifications = append(r.Verifications, verify.Result{})
	mustEnter(t, r, Verified)
	r.Counters.Reviews++
	r.Findings = []review.Finding{
		{ID: "R1", Severity: review.Major},
		{ID: "R2", Severity: review.Minor},
	}
	mustEnter(t, r, Reviewed)

	if err := r.Enter(Triaged, t0, ""); !errors.Is(err, ErrGuard) {
		t.Fatalf("unresolved major: err = %v", err)
	}
	r.Findings[0].Resolved = true
	mustEnter(t, r, Triaged)

	r.CommitPlan = &artifact.CommitPlan{}
	r.Draft = &artifact.ChangeRequestDraft{}
	if err := r.Enter(Materialized, t0, ""); !errors.Is(err, ErrGuard) {
		t.Errorf("undisposed minor: err = %v", err)
	}
	r.Findings[1].Disposition = review.Defer
	mustEnter(t, r, Materialized)
}

func TestRun_ReviewLoopsBackToImplemented(t *testing.T) {
	r := runAtPlanned(t)
	r.Implementation = &Implementation{Summary: "x"}
	mustEnter(t, r, Implemented)
	r.Verifications = append(r.Verifications, verify.Result{})
	mustEnter(t, r, Verified)
	r.Counters.Reviews++
	mustEnter(t, r, Reviewed)
	mustEnter(t, r, Implemented)
	if r.Phase != Implemented || !r.Reached(Reviewed) {
		t.Errorf("phase = %s", r.Phase)
	}
}

func TestRun_Abort(t *testing.T) {
	r := runAtPlanned(t)
	r.Abort("operator cancelled", t0)
	if r.Phase != Aborted || r.Cause != "operator cancelled" || r.LastGoodPhase != Planned {
		t.Errorf("run = %s cause=%q last=%s", r.Phase, r.Cause, r.LastGoodPhase)
	}
	r.Abort("again", t0)
	if r.Cause != "operator cancelled" {
		t.Errorf("abort of terminal run changed cause to %q", r.Cause)
	}
}

func TestRun_PublishedNeedsOutcome(t *testing.T) {
	r := &Run{Phase: Materialized}
	if err := r.Enter(Published, t0, ""); !errors.Is(err, ErrGuard) {
		t.Fatalf("err = %v", err)
	}
	r.SubState = PendingManualAction
	r.ManualSteps = []string{"git push -u origin b"}
	mustEnter(t, r, Published)
}
