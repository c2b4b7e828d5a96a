// Package orchestrator drives an issue run through the phase state machine,
// from fetching the issue to publishing a change request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/db"
	"github.com/lucasnoah/issuesmith/internal/dispatch"
	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/operator"
	"github.com/lucasnoah/issuesmith/internal/pipeline"
	"github.com/lucasnoah/issuesmith/internal/requirements"
	"github.com/lucasnoah/issuesmith/internal/telemetry"
	"github.com/lucasnoah/issuesmith/internal/vcs"
	"github.com/lucasnoah/issuesmith/internal/verify"
)

// Tracker is the issue tracker: the read side used by the fetcher plus the
// writes performed at publication.
type Tracker interface {
	issue.Source
	CreateChangeRequest(ctx context.Context, d artifact.ChangeRequestDraft) (artifact.ChangeRequest, error)
	AddLabels(ctx context.Context, target string, labels []string) error
}

// Dispatcher runs worker sub-tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	DispatchAll(ctx context.Context, reqs []dispatch.Request) ([]*dispatch.Result, error)
}

// Verifier runs the project's tests and lint.
type Verifier interface {
	Verify(ctx context.Context, root string) (*verify.Result, error)
}

// Audit receives the event trail of every run.
type Audit interface {
	LogRunEvent(ctx context.Context, e db.RunEvent) error
	LogVerification(ctx context.Context, v db.VerificationRun) error
}

// Limits bound the retry loops of a run.
type Limits struct {
	VerifyAttempts int
	ReviewCycles   int
	WorkerRetries  int
	PlanRevisions  int
}

// DefaultLimits returns 3 verification attempts, 3 review cycles, 2 worker
// retries and 2 plan revisions.
func DefaultLimits() Limits {
	return Limits{VerifyAttempts: 3, ReviewCycles: 3, WorkerRetries: 2, PlanRevisions: 2}
}

// Deps are the collaborators of a run. Store, Audit and Classifier are
// optional.
type Deps struct {
	Tracker    Tracker
	VCS        vcs.VCS
	Dispatcher Dispatcher
	Verifier   Verifier
	Operator   operator.Operator
	Store      *pipeline.Store
	Audit      Audit
	Classifier requirements.Classifier
}

// Options tune a run.
type Options struct {
	ProjectRoot    string
	BaseBranch     string
	Remote         string
	ExtraLabels    []string
	Limits         Limits
	FetchAttempts  int
	FetchBaseDelay time.Duration
	ClarifyTimeout time.Duration
	Logger         *zap.Logger
	Now            func() time.Time
	NewID          func() string
}

// Orchestrator composes the phases of a run.
type Orchestrator struct {
	d      Deps
	opts   Options
	log    *zap.Logger
	tracer trace.Tracer
	inst   *telemetry.Instruments
}

// New creates an Orchestrator. Zero option fields take defaults; a zero
// Limits means DefaultLimits.
func New(d Deps, opts Options) *Orchestrator {
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = "."
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	if opts.Remote == "" {
		opts.Remote = vcs.DefaultRemote
	}
	def := DefaultLimits()
	if opts.Limits == (Limits{}) {
		opts.Limits = def
	}
	if opts.Limits.VerifyAttempts <= 0 {
		opts.Limits.VerifyAttempts = def.VerifyAttempts
	}
	if opts.Limits.ReviewCycles <= 0 {
		opts.Limits.ReviewCycles = def.ReviewCycles
	}
	opts.Limits.WorkerRetries = max(opts.Limits.WorkerRetries, 0)
	opts.Limits.PlanRevisions = max(opts.Limits.PlanRevisions, 0)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if d.Classifier == nil {
		d.Classifier = requirements.HeuristicClassifier{}
	}
	return &Orchestrator{
		d:      d,
		opts:   opts,
		log:    opts.Logger,
		tracer: telemetry.Tracer(),
		inst:   telemetry.NewInstruments(),
	}
}

// runCtx carries the per-run collaborators.
type runCtx struct {
	run     *pipeline.Run
	op      *operator.Recorder
	log     *zap.Logger
	prompts int
}

// Run takes the issue through every phase. A run that publishes, or stops
// at PUBLISHED/PendingManualAction, returns a nil error. A run that aborts
// returns its report and a *FatalError.
func (o *Orchestrator) Run(ctx context.Context, issueID string) (*Report, error) {
	r := pipeline.NewRun(o.opts.NewID(), issueID, o.opts.Now())
	rc := &runCtx{
		run: r,
		op:  operator.NewRecorder(o.d.Operator),
		log: o.log.With(zap.String("run", r.ID), zap.String("issue", issueID)),
	}

	ctx, span := o.tracer.Start(ctx, "issuesmith.run", trace.WithAttributes(
		attribute.String("issue.id", issueID),
		attribute.String("run.id", r.ID),
	))
	defer span.End()

	rc.log.Info("run started")
	o.event(ctx, r, "started", "", "")

	err := o.execute(ctx, rc)
	o.saveTranscript(rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.abort(ctx, rc, err)
	}

	rep := newReport(r)
	span.SetAttributes(attribute.String("run.phase", string(r.Phase)), attribute.String("run.sub_state", r.SubState))
	if r.SubState == pipeline.PendingManualAction {
		rc.log.Warn("publication needs manual action", zap.Int("steps", len(r.ManualSteps)))
	} else {
		rc.log.Info("run published", zap.String("change_request", rep.ChangeRequestURL))
	}
	return rep, nil
}

func (o *Orchestrator) execute(ctx context.Context, rc *runCtx) error {
	steps := []struct {
		name string
		fn   func(context.Context, *runCtx) error
	}{
		{"fetch", o.fetch},
		{"analyze", o.analyze},
		{"clarify", o.clarify},
		{"plan", o.plan},
		{"build", o.build},
		{"materialize", o.materialize},
		{"publish", o.publish},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.phase(ctx, s.name, rc, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// phase runs fn inside its own span.
func (o *Orchestrator) phase(ctx context.Context, name string, rc *runCtx, fn func(context.Context, *runCtx) error) error {
	ctx, span := o.tracer.Start(ctx, "issuesmith.phase."+name)
	defer span.End()
	err := fn(ctx, rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// enter transitions the run and records the transition everywhere it is
// observed. A guard failure is a policy violation and is returned wrapped
// in pipeline.ErrGuard.
func (o *Orchestrator) enter(ctx context.Context, rc *runCtx, p pipeline.Phase, note string) error {
	r := rc.run
	from := r.Phase
	if err := r.Enter(p, o.opts.Now(), note); err != nil {
		rc.log.Error("transition refused", zap.String("from", string(from)), zap.String("to", string(p)), zap.Error(err))
		return err
	}
	rc.log.Info("phase entered", zap.String("from", string(from)), zap.String("phase", string(p)), zap.String("note", note))
	trace.SpanFromContext(ctx).AddEvent("transition", trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(p)),
	))
	o.inst.Transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(p))))
	o.persist(rc)
	o.event(ctx, r, "transition", string(p), note)
	return nil
}

func (o *Orchestrator) countRetry(ctx context.Context, rc *runCtx, kind string) {
	o.inst.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	o.event(ctx, rc.run, "retry", string(rc.run.Phase), kind)
}

func (o *Orchestrator) persist(rc *runCtx) {
	if o.d.Store == nil {
		return
	}
	if err := o.d.Store.Touch(rc.run, o.opts.Now()); err != nil {
		rc.log.Warn("persist run failed", zap.Error(err))
	}
}

func (o *Orchestrator) saveTranscript(rc *runCtx) {
	if o.d.Store == nil {
		return
	}
	if err := o.d.Store.SaveTranscript(rc.run.ID, rc.op.Entries()); err != nil {
		rc.log.Warn("save transcript failed", zap.Error(err))
	}
}

// event writes to the audit log. Audit failures are logged, never fatal,
// and are written even after cancellation.
func (o *Orchestrator) event(ctx context.Context, r *pipeline.Run, name, phase, detail string) {
	if o.d.Audit == nil {
		return
	}
	err := o.d.Audit.LogRunEvent(context.WithoutCancel(ctx), db.RunEvent{
		RunID:   r.ID,
		Issue:   r.IssueID,
		Event:   name,
		Phase:   phase,
		Attempt: r.Counters.VerifyAttempts,
		Detail:  detail,
	})
	if err != nil {
		o.log.Warn("audit event failed", zap.String("event", name), zap.Error(err))
	}
}

// abort moves the run to ABORTED and builds the fatal report.
func (o *Orchestrator) abort(ctx context.Context, rc *runCtx, cause error) (*Report, error) {
	r := rc.run
	failed := r.Phase
	if isCancel(cause) {
		cause = fmt.Errorf("cancelled: %w", cause)
	}
	r.Abort(cause.Error(), o.opts.Now())
	rc.log.Error("run aborted",
		zap.String("last_good_phase", string(r.LastGoodPhase)),
		zap.Error(cause),
	)
	o.persist(rc)
	o.event(ctx, r, "aborted", string(failed), cause.Error())
	rep := newReport(r)
	return rep, &FatalError{Phase: r.LastGoodPhase, Cause: cause, Report: rep}
}

func isCancel(err error) bool {
	return errors.Is(err, operator.ErrCancelled) || errors.Is(err, context.Canceled)
}
