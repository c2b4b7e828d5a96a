package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/pipeline"
	"github.com/lucasnoah/issuesmith/internal/vcs"
)

// publish performs the external writes in order: branch, commit, push,
// change request, labels. A permission error stops publication without a
// retry and leaves the run at PUBLISHED/PendingManualAction with the
// commands that finish the job by hand.
func (o *Orchestrator) publish(ctx context.Context, rc *runCtx) error {
	r := rc.run
	cp, draft := *r.CommitPlan, *r.Draft

	steps := []struct {
		step vcs.Step
		do   func(context.Context) error
	}{
		{vcs.StepBranch, func(ctx context.Context) error { return o.d.VCS.CreateBranch(ctx, cp.BranchName) }},
		{vcs.StepCommit, func(ctx context.Context) error { return o.d.VCS.Commit(ctx, cp.CommitMessage) }},
		{vcs.StepPush, func(ctx context.Context) error { return o.d.VCS.Push(ctx, cp.BranchName) }},
		{vcs.StepChangeRequest, func(ctx context.Context) error {
			cr, err := o.d.Tracker.CreateChangeRequest(ctx, draft)
			if err != nil {
				return err
			}
			r.ChangeRequest = &cr
			return nil
		}},
		{vcs.StepLabels, func(ctx context.Context) error {
			if len(draft.Labels) == 0 {
				return nil
			}
			return o.d.Tracker.AddLabels(ctx, r.ChangeRequest.ID, draft.Labels)
		}},
	}

	for _, s := range steps {
		// No write is issued once the run is cancelled.
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.do(ctx)
		if err == nil {
			r.Published = append(r.Published, string(s.step))
			o.persist(rc)
			o.event(ctx, r, "published_step", string(r.Phase), string(s.step))
			continue
		}

		if isPermission(err) {
			r.ManualSteps = o.manualSteps(r, s.step)
			r.SubState = pipeline.PendingManualAction
			r.Cause = err.Error()
			rc.log.Warn("permission denied during publication",
				zap.String("step", string(s.step)),
				zap.Error(err),
			)
			return o.enter(ctx, rc, pipeline.Published, fmt.Sprintf("pending manual action from %s", s.step))
		}

		r.ManualSteps = o.manualSteps(r, s.step)
		return fmt.Errorf("publish %s: %w", s.step, err)
	}

	note := "change request opened"
	if r.ChangeRequest != nil && r.ChangeRequest.URL != "" {
		note = r.ChangeRequest.URL
	}
	return o.enter(ctx, rc, pipeline.Published, note)
}

// manualSteps renders the commands that finish publication from step.
// Labels on an existing change request target it by number.
func (o *Orchestrator) manualSteps(r *pipeline.Run, from vcs.Step) []string {
	draft := *r.Draft
	if from == vcs.StepLabels && r.ChangeRequest != nil && r.ChangeRequest.ID != "" {
		draft.HeadBranch = r.ChangeRequest.ID
	}
	return vcs.ManualSteps(*r.CommitPlan, draft, o.opts.Remote, from)
}

func isPermission(err error) bool {
	return errors.Is(err, vcs.ErrPermissionDenied) || errors.Is(err, issue.ErrPermissionDenied)
}
