// Package dispatch sends bounded sub-tasks to isolated workers and parses
// their replies into role-typed results.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/issuesmith/internal/review"
)

// ErrWorker marks a failed or malformed sub-task. It is recoverable: the
// caller may retry with a refined prompt.
var ErrWorker = errors.New("worker error")

const (
	DefaultTimeout  = 5 * time.Minute
	DefaultParallel = 4
)

// Role selects what a worker is asked to do.
type Role string

const (
	Explorer    Role = "explorer"
	Implementer Role = "implementer"
	Reviewer    Role = "reviewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == Explorer || r == Implementer || r == Reviewer
}

// Request is a self-contained sub-task. It is passed by value and its
// slices are copied before a worker sees them.
type Request struct {
	Role        Role     `json:"role"`
	Prompt      string   `json:"prompt"`
	ContextRefs []string `json:"context_refs,omitempty"`
}

// Result is the typed reply of a worker. Which fields are set depends on
// Role: Files and Conventions for Explorer, ChangeSummary, Files and Diff
// for Implementer, Findings for Reviewer.
type Result struct {
	Role          Role             `json:"role"`
	Files         []string         `json:"files,omitempty"`
	Conventions   string           `json:"conventions,omitempty"`
	ChangeSummary string           `json:"change_summary,omitempty"`
	Diff          string           `json:"diff,omitempty"`
	Findings      []review.Finding `json:"findings,omitempty"`
}

// Worker runs one sub-task and returns its raw reply.
type Worker interface {
	Do(ctx context.Context, req Request) (string, error)
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, req Request) (string, error)

// Do implements Worker.
func (f WorkerFunc) Do(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Dispatcher runs requests against a Worker.
type Dispatcher struct {
	worker   Worker
	timeout  time.Duration
	parallel int
	log      *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-task timeout.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithParallel bounds how many requests DispatchAll runs at once.
func WithParallel(n int) Option {
	return func(x *Dispatcher) {
		if n > 0 {
			x.parallel = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(x *Dispatcher) { x.log = l }
}

// New creates a Dispatcher.
func New(w Worker, opts ...Option) *Dispatcher {
	d := &Dispatcher{worker: w, timeout: DefaultTimeout, parallel: DefaultParallel, log: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch runs one request under the per-task timeout. Worker failures,
// timeouts and unparseable replies wrap ErrWorker. Cancellation of ctx is
// returned as the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("dispatch: unknown role %q", req.Role)
	}
	req.ContextRefs = append([]string(nil), req.ContextRefs...)

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	raw, err := d.worker.Do(tctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", req.Role, d.timeout, ErrWorker)
		}
		return nil, fmt.Errorf("%s: %w: %w", req.Role, ErrWorker, err)
	}

	res, err := Parse(req.Role, raw)
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w: %w", req.Role, ErrWorker, err)
	}
	d.log.Debug("sub-task done",
		zap.String("role", string(req.Role)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("files", len(res.Files)),
		zap.Int("findings", len(res.Findings)),
	)
	return res, nil
}

// DispatchAll runs independent requests concurrently and returns their
// results in request order once every request has finished. The first
// failure cancels the rest and is returned.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := d.Dispatch(gctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
