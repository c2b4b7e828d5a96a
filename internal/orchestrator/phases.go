package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/clarify"
	"github.com/lucasnoah/issuesmith/internal/db"
	"github.com/lucasnoah/issuesmith/internal/dispatch"
	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/operator"
	"github.com/lucasnoah/issuesmith/internal/pipeline"
	"github.com/lucasnoah/issuesmith/internal/plan"
	"github.com/lucasnoah/issuesmith/internal/prompt"
	"github.com/lucasnoah/issuesmith/internal/requirements"
	"github.com/lucasnoah/issuesmith/internal/review"
	"github.com/lucasnoah/issuesmith/internal/verify"
)

// Choices offered when verification times out.
const (
	TimeoutRetry  = "retry"
	TimeoutAccept = "accept_unverified"
	TimeoutAbort  = "abort"
)

// ErrOperatorAbort is the cause of a run the operator chose to abort at a
// decision point.
var ErrOperatorAbort = errors.New("aborted by operator")

// Explorer and reviewer sub-tasks are split by focus and run concurrently.
var (
	exploreFocus = []string{
		"Production code that must change to satisfy the must-have list.",
		"Existing tests and fixtures that cover this behavior and will need updates.",
	}
	reviewFocus = []string{
		"Correctness, error handling and security of the change.",
		"Coverage of every must-have item and the tests that prove it.",
	}
)

func (o *Orchestrator) fetch(ctx context.Context, rc *runCtx) error {
	f := issue.NewFetcher(o.d.Tracker,
		issue.WithMaxAttempts(o.opts.FetchAttempts),
		issue.WithBaseDelay(o.opts.FetchBaseDelay),
		issue.WithLogger(rc.log),
	)
	snap, err := f.Fetch(ctx, rc.run.IssueID)
	if err != nil {
		return err
	}
	rc.run.Snapshot = snap
	return o.enter(ctx, rc, pipeline.Fetched, fmt.Sprintf("%d label(s), %d comment(s)", len(snap.Labels), len(snap.Comments)))
}

func (o *Orchestrator) analyze(ctx context.Context, rc *runCtx) error {
	sum := requirements.NewAnalyzer(o.d.Classifier).Analyze(rc.run.Snapshot)
	rc.run.Summary = &sum
	return o.enter(ctx, rc, pipeline.Analyzed, fmt.Sprintf("%s, %d open question(s)", sum.ChangeType, len(sum.OpenQuestions)))
}

// clarify asks the operator until no question is open. A refused
// transition sends the operator back to the gate.
func (o *Orchestrator) clarify(ctx context.Context, rc *runCtx) error {
	r := rc.run
	gate := clarify.NewGate(rc.op, clarify.WithTimeout(o.opts.ClarifyTimeout), clarify.WithLogger(rc.log))
	for {
		if r.Summary.HasOpenQuestions() {
			out, err := gate.Resolve(ctx, r.Summary)
			o.persist(rc)
			if err != nil {
				return fmt.Errorf("clarification: %w", err)
			}
			if out.Deferred > 0 {
				o.event(ctx, r, "questions_deferred", string(r.Phase), fmt.Sprintf("%d question(s) resolved by default", out.Deferred))
			}
		}
		err := o.enter(ctx, rc, pipeline.Clarified, fmt.Sprintf("%d answer(s)", len(r.Summary.Answers)))
		if errors.Is(err, pipeline.ErrGuard) && r.Summary.HasOpenQuestions() {
			continue
		}
		return err
	}
}

// plan explores the code, proposes a plan and waits for explicit approval.
// A rejection re-plans with the operator's feedback.
func (o *Orchestrator) plan(ctx context.Context, rc *runCtx) error {
	r := rc.run
	var feedback []string
	for {
		results, err := o.dispatchWithRetry(ctx, rc, dispatch.Explorer, func(refinement string) ([]dispatch.Request, error) {
			var reqs []dispatch.Request
			for _, focus := range exploreFocus {
				vars := baseVars(r)
				vars["focus"] = focus
				vars["plan_feedback"] = bullets(feedback)
				vars["refinement"] = refinement
				p, err := prompt.Build(prompt.ExploreTemplate, o.opts.ProjectRoot, vars)
				if err != nil {
					return nil, err
				}
				reqs = append(reqs, dispatch.Request{Role: dispatch.Explorer, Prompt: p})
			}
			return reqs, nil
		})
		if err != nil {
			return fmt.Errorf("explore: %w", err)
		}

		var files, conventions []string
		for _, res := range results {
			files = append(files, res.Files...)
			if res.Conventions != "" {
				conventions = append(conventions, res.Conventions)
			}
		}
		r.Plan = plan.New(files, strings.Join(conventions, "\n"), r.Counters.PlanRevisions)
		if err := o.enter(ctx, rc, pipeline.Planned, fmt.Sprintf("revision %d, %d file(s)", r.Plan.Revision, len(r.Plan.TargetFiles))); err != nil {
			return err
		}

		approval, err := rc.op.Approve(ctx, operator.PlanReview{
			IssueID:     r.IssueID,
			Title:       r.Snapshot.Title,
			TargetFiles: r.Plan.TargetFiles,
			Conventions: r.Plan.Conventions,
			MustHave:    r.Summary.MustHave,
			Revision:    r.Plan.Revision,
		})
		if err != nil {
			return fmt.Errorf("plan approval: %w", err)
		}
		if approval.Approved {
			r.Plan.Approve()
			o.persist(rc)
			o.event(ctx, r, "plan_approved", string(r.Phase), "")
			return nil
		}

		r.Plan.Reject(approval.Feedback)
		o.event(ctx, r, "plan_rejected", string(r.Phase), approval.Feedback)
		if r.Counters.PlanRevisions >= o.opts.Limits.PlanRevisions {
			return fmt.Errorf("plan rejected %d time(s), no revisions left", r.Counters.PlanRevisions+1)
		}
		r.Counters.PlanRevisions++
		o.countRetry(ctx, rc, "plan_revision")
		if approval.Feedback != "" {
			feedback = append(feedback, approval.Feedback)
		}
	}
}

// build runs implementation, verification, review and triage until no
// finding blocks materialization. Every loop is bounded by a counter in
// the run state.
func (o *Orchestrator) build(ctx context.Context, rc *runCtx) error {
	r := rc.run
	if err := o.implementAndVerify(ctx, rc, nil); err != nil {
		return err
	}

	for {
		if err := o.review(ctx, rc); err != nil {
			return err
		}

		d := review.Triage(r.Findings)
		if d.Blocked() {
			if r.Counters.ReviewCycles >= o.opts.Limits.ReviewCycles {
				return fmt.Errorf("%d critical/major finding(s) unresolved after %d review cycle(s)", len(d.MustFixNow), r.Counters.ReviewCycles)
			}
			r.Counters.ReviewCycles++
			o.countRetry(ctx, rc, "review_cycle")
			rc.log.Info("fixing blocking findings", zap.Int("findings", len(d.MustFixNow)), zap.Int("cycle", r.Counters.ReviewCycles))
			if err := o.implementAndVerify(ctx, rc, d.MustFixNow); err != nil {
				return err
			}
			continue
		}

		if err := o.enter(ctx, rc, pipeline.Triaged, fmt.Sprintf("%d minor finding(s) to triage", len(d.AskOperator))); err != nil {
			return err
		}
		fixNow, err := o.triageMinors(ctx, rc, d.AskOperator)
		if err != nil {
			return err
		}
		if len(fixNow) == 0 {
			return nil
		}
		if r.Counters.ReviewCycles >= o.opts.Limits.ReviewCycles {
			// Minor findings never block; out of cycles they are deferred.
			rc.log.Warn("no review cycles left, deferring minor findings", zap.Int("findings", len(fixNow)))
			o.deferMinors(ctx, rc, fixNow)
			return nil
		}
		r.Counters.ReviewCycles++
		o.countRetry(ctx, rc, "review_cycle")
		if err := o.implementAndVerify(ctx, rc, fixNow); err != nil {
			return err
		}
		markResolved(r.Findings, fixNow)
	}
}

// implementAndVerify runs the implement/verify fix loop, ending in
// VERIFIED. findings, when set, are what the implementer must fix.
func (o *Orchestrator) implementAndVerify(ctx context.Context, rc *runCtx, findings []review.Finding) error {
	r := rc.run
	r.Counters.VerifyAttempts = 0
	failedOutput := ""

	for {
		if err := o.implement(ctx, rc, findings, failedOutput); err != nil {
			return err
		}

		for {
			res, err := o.verify(ctx, rc)
			if err != nil {
				return err
			}
			switch {
			case res.Failed():
				if r.Counters.VerifyAttempts >= o.opts.Limits.VerifyAttempts {
					return fmt.Errorf("verification failed %d time(s): tests %s, lint %s", r.Counters.VerifyAttempts, res.TestsPassed, res.LintPassed)
				}
				o.countRetry(ctx, rc, "verify")
				failedOutput = res.RawOutput
			case res.TimedOut:
				choice, err := rc.op.Choose(ctx, operator.Choice{
					ID:      fmt.Sprintf("verify-timeout:%d", r.Counters.VerifyAttempts),
					Prompt:  "Verification timed out. The outcome is unknown.",
					Options: []string{TimeoutRetry, TimeoutAccept, TimeoutAbort},
				})
				if err != nil {
					return fmt.Errorf("verification timeout decision: %w", err)
				}
				switch choice {
				case TimeoutRetry:
					if r.Counters.VerifyAttempts >= o.opts.Limits.VerifyAttempts {
						return fmt.Errorf("verification timed out, %d attempt(s) used", r.Counters.VerifyAttempts)
					}
					o.countRetry(ctx, rc, "verify")
					continue
				case TimeoutAccept:
					r.AcceptedAsIs = true
					o.event(ctx, r, "accepted_unverified", string(r.Phase), "")
					return o.enter(ctx, rc, pipeline.Verified, "accepted unverified after timeout")
				default:
					return fmt.Errorf("verification timed out: %w", ErrOperatorAbort)
				}
			default:
				r.AcceptedAsIs = false
				note := "passed"
				if !res.TestsRun {
					note = "no test tooling detected"
				}
				return o.enter(ctx, rc, pipeline.Verified, note)
			}
			break
		}
	}
}

func (o *Orchestrator) implement(ctx context.Context, rc *runCtx, findings []review.Finding, failedOutput string) error {
	r := rc.run
	results, err := o.dispatchWithRetry(ctx, rc, dispatch.Implementer, func(refinement string) ([]dispatch.Request, error) {
		vars := baseVars(r)
		vars["target_files"] = bullets(r.Plan.TargetFiles)
		vars["conventions"] = r.Plan.Conventions
		vars["verify_output"] = failedOutput
		vars["findings"] = formatFindings(findings)
		vars["refinement"] = refinement
		p, err := prompt.Build(prompt.ImplementTemplate, o.opts.ProjectRoot, vars)
		if err != nil {
			return nil, err
		}
		return []dispatch.Request{{Role: dispatch.Implementer, Prompt: p, ContextRefs: r.Plan.TargetFiles}}, nil
	})
	if err != nil {
		return fmt.Errorf("implement: %w", err)
	}
	res := results[0]
	r.Implementation = &pipeline.Implementation{Summary: res.ChangeSummary, Files: res.Files, Diff: res.Diff}
	return o.enter(ctx, rc, pipeline.Implemented, fmt.Sprintf("%d file(s) changed", len(res.Files)))
}

func (o *Orchestrator) verify(ctx context.Context, rc *runCtx) (verify.Result, error) {
	r := rc.run
	r.Counters.VerifyAttempts++
	res, err := o.d.Verifier.Verify(ctx, o.opts.ProjectRoot)
	if err != nil {
		return verify.Result{}, fmt.Errorf("verify: %w", err)
	}
	r.Verifications = append(r.Verifications, *res)
	n := len(r.Verifications)

	rc.log.Info("verification finished",
		zap.Int("attempt", r.Counters.VerifyAttempts),
		zap.Bool("tests_run", res.TestsRun),
		zap.String("tests", string(res.TestsPassed)),
		zap.String("lint", string(res.LintPassed)),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", res.Duration),
	)
	if o.d.Store != nil {
		if err := o.d.Store.SaveVerificationLog(r.ID, n, res.RawOutput); err != nil {
			rc.log.Warn("save verification log failed", zap.Error(err))
		}
	}
	if o.d.Audit != nil {
		err := o.d.Audit.LogVerification(context.WithoutCancel(ctx), db.VerificationRun{
			RunID:       r.ID,
			Issue:       r.IssueID,
			Attempt:     n,
			Toolchain:   res.Toolchain,
			TestsRun:    res.TestsRun,
			TestsPassed: string(res.TestsPassed),
			LintPassed:  string(res.LintPassed),
			TimedOut:    res.TimedOut,
			Duration:    res.Duration,
		})
		if err != nil {
			rc.log.Warn("audit verification failed", zap.Error(err))
		}
	}
	o.persist(rc)
	return *res, nil
}

// review dispatches the reviewers concurrently and merges their findings.
// Blocking findings of earlier cycles are superseded by the new review.
func (o *Orchestrator) review(ctx context.Context, rc *runCtx) error {
	r := rc.run
	refs := r.Plan.TargetFiles
	if r.Implementation != nil && len(r.Implementation.Files) > 0 {
		refs = r.Implementation.Files
	}
	results, err := o.dispatchWithRetry(ctx, rc, dispatch.Reviewer, func(refinement string) ([]dispatch.Request, error) {
		var reqs []dispatch.Request
		for _, focus := range reviewFocus {
			vars := baseVars(r)
			vars["context_refs"] = bullets(refs)
			vars["focus"] = focus
			vars["refinement"] = refinement
			if r.Implementation != nil {
				vars["change_summary"] = r.Implementation.Summary
			}
			p, err := prompt.Build(prompt.ReviewTemplate, o.opts.ProjectRoot, vars)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, dispatch.Request{Role: dispatch.Reviewer, Prompt: p, ContextRefs: refs})
		}
		return reqs, nil
	})
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}

	for i := range r.Findings {
		if r.Findings[i].Severity.Blocking() {
			r.Findings[i].Resolved = true
		}
	}
	var found []review.Finding
	for _, res := range results {
		found = append(found, res.Findings...)
	}
	found = review.Normalize(found, len(r.Findings))
	r.Findings = append(r.Findings, found...)
	r.Counters.Reviews++

	return o.enter(ctx, rc, pipeline.Reviewed, fmt.Sprintf("%d finding(s), %d blocking", len(found), review.Unresolved(found)))
}

// triageMinors asks the operator for a disposition of each minor finding
// and returns the ones to fix now.
func (o *Orchestrator) triageMinors(ctx context.Context, rc *runCtx, minors []review.Finding) ([]review.Finding, error) {
	r := rc.run
	var fixNow []review.Finding
	for _, f := range minors {
		text := fmt.Sprintf("Minor finding %s: %s", f.ID, f.Description)
		if f.Location != "" {
			text += " (" + f.Location + ")"
		}
		choice, err := rc.op.Choose(ctx, operator.Choice{ID: "minor:" + f.ID, Prompt: text, Options: review.Dispositions})
		if err != nil {
			return nil, fmt.Errorf("triage %s: %w", f.ID, err)
		}
		disp, err := review.ParseDisposition(choice)
		if err != nil {
			return nil, fmt.Errorf("triage %s: %w", f.ID, err)
		}
		for i := range r.Findings {
			if r.Findings[i].ID == f.ID {
				r.Findings[i].Disposition = disp
				if disp == review.Ignore {
					r.Findings[i].Resolved = true
				}
			}
		}
		o.event(ctx, r, "minor_disposition", string(r.Phase), f.ID+"="+string(disp))
		if disp == review.FixNow {
			f.Disposition = disp
			fixNow = append(fixNow, f)
		}
	}
	o.persist(rc)
	return fixNow, nil
}

func (o *Orchestrator) materialize(ctx context.Context, rc *runCtx) error {
	r := rc.run
	opts := artifact.Options{BaseBranch: o.opts.BaseBranch, ExtraLabels: o.opts.ExtraLabels}
	if v, ok := r.LastVerification(); ok {
		opts.Verification = &v
	}
	cp, draft := artifact.Materialize(r.Snapshot, r.Summary, r.Plan, opts)
	r.CommitPlan = &cp
	r.Draft = &draft
	return o.enter(ctx, rc, pipeline.Materialized, cp.BranchName)
}

// dispatchWithRetry sends the requests built by build. A worker failure is
// retried with a refined prompt until the run's worker retry bound is
// spent. WorkerRetries counts consecutive failures and is reset by a
// success.
func (o *Orchestrator) dispatchWithRetry(ctx context.Context, rc *runCtx, role dispatch.Role, build func(refinement string) ([]dispatch.Request, error)) ([]*dispatch.Result, error) {
	r := rc.run
	refinement := ""
	for {
		reqs, err := build(refinement)
		if err != nil {
			return nil, err
		}
		o.savePrompts(rc, reqs)

		var results []*dispatch.Result
		if len(reqs) == 1 {
			var res *dispatch.Result
			res, err = o.d.Dispatcher.Dispatch(ctx, reqs[0])
			results = []*dispatch.Result{res}
		} else {
			results, err = o.d.Dispatcher.DispatchAll(ctx, reqs)
		}
		if err == nil {
			r.Counters.WorkerRetries = 0
			return results, nil
		}
		if !errors.Is(err, dispatch.ErrWorker) {
			return nil, err
		}
		if r.Counters.WorkerRetries >= o.opts.Limits.WorkerRetries {
			return nil, fmt.Errorf("%s failed after %d retr(ies): %w", role, r.Counters.WorkerRetries, err)
		}
		r.Counters.WorkerRetries++
		o.countRetry(ctx, rc, "worker")
		rc.log.Warn("worker failed, retrying with refined prompt",
			zap.String("role", string(role)),
			zap.Int("retry", r.Counters.WorkerRetries),
			zap.Error(err),
		)
		refinement = fmt.Sprintf("Attempt %d failed: %v\nReply with exactly one JSON object in the shape shown under Output.", r.Counters.WorkerRetries, err)
	}
}

func (o *Orchestrator) savePrompts(rc *runCtx, reqs []dispatch.Request) {
	if o.d.Store == nil {
		return
	}
	for _, req := range reqs {
		rc.prompts++
		if err := o.d.Store.SavePrompt(rc.run.ID, fmt.Sprintf("%03d-%s", rc.prompts, req.Role), req.Prompt); err != nil {
			rc.log.Warn("save prompt failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) deferMinors(ctx context.Context, rc *runCtx, minors []review.Finding) {
	r := rc.run
	for _, f := range minors {
		for i := range r.Findings {
			if r.Findings[i].ID == f.ID {
				r.Findings[i].Disposition = review.Defer
			}
		}
		o.event(ctx, r, "minor_disposition", string(r.Phase), f.ID+"="+string(review.Defer))
	}
	o.persist(rc)
}

func markResolved(all, fixed []review.Finding) {
	ids := make(map[string]bool, len(fixed))
	for _, f := range fixed {
		ids[f.ID] = true
	}
	for i := range all {
		if ids[all[i].ID] {
			all[i].Resolved = true
		}
	}
}

// baseVars are the template variables every role prompt shares.
func baseVars(r *pipeline.Run) prompt.Vars {
	s := r.Snapshot
	body := s.Body
	if len(s.Comments) > 0 {
		var b strings.Builder
		b.WriteString(strings.TrimRight(body, "\n"))
		b.WriteString("\n\n### Comments\n")
		for _, c := range s.Comments {
			author := c.Author
			if author == "" {
				author = "unknown"
			}
			fmt.Fprintf(&b, "- %s: %s\n", author, strings.TrimSpace(c.Body))
		}
		body = b.String()
	}
	vars := prompt.Vars{
		"issue_number": s.ID,
		"issue_title":  s.Title,
		"issue_body":   body,
	}
	if sum := r.Summary; sum != nil {
		vars["change_type"] = string(sum.ChangeType)
		vars["must_have"] = bullets(sum.MustHave)
		vars["nice_to_have"] = bullets(sum.NiceToHave)
		vars["out_of_scope"] = bullets(sum.OutOfScope)
	}
	return vars
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}

func formatFindings(fs []review.Finding) string {
	var b strings.Builder
	for _, f := range fs {
		fmt.Fprintf(&b, "- [%s] %s: %s", f.Severity, f.ID, f.Description)
		if f.Location != "" {
			fmt.Fprintf(&b, " (%s)", f.Location)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
