// Package clarify resolves open requirement questions with the operator
// before a run may leave analysis.
package clarify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/issuesmith/internal/operator"
	"github.com/lucasnoah/issuesmith/internal/requirements"
)

// ErrTimeout is returned when the operator does not answer a question
// within the configured per-question timeout.
var ErrTimeout = errors.New("timed out waiting for operator answer")

// State is the gate's local state.
type State string

const (
	Open           State = "open"
	AwaitingAnswer State = "awaiting_answer"
	Closed         State = "closed"
)

// Outcome summarizes one pass through the gate.
type Outcome struct {
	Asked    int `json:"asked"`
	Answered int `json:"answered"`
	Deferred int `json:"deferred"`
}

// Gate asks the operator every open question of a summary.
type Gate struct {
	op      operator.Operator
	timeout time.Duration
	log     *zap.Logger
	state   State
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout bounds how long each question may wait. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// NewGate creates a Gate backed by op.
func NewGate(op operator.Operator, opts ...Option) *Gate {
	g := &Gate{op: op, log: zap.NewNop(), state: Open}
	for _, o := range opts {
		o(g)
	}
	return g
}

// State reports where the gate currently is.
func (g *Gate) State() State { return g.state }

// Resolve loops until sum has no open questions. Operator cancellation is
// returned unchanged; the summary keeps whatever was resolved before it.
func (g *Gate) Resolve(ctx context.Context, sum *requirements.Summary) (Outcome, error) {
	var out Outcome
	g.state = Open

	for sum.HasOpenQuestions() {
		q := sum.OpenQuestions[0]
		g.state = AwaitingAnswer
		out.Asked++

		ans, err := g.ask(ctx, q)
		if err != nil {
			g.state = Open
			return out, err
		}
		g.state = Open

		if ans.Defer || strings.TrimSpace(ans.Text) == "" {
			n := len(sum.OpenQuestions)
			ok, err := g.op.Confirm(ctx, fmt.Sprintf("Resolve the %d remaining question(s) by default without an answer?", n))
			if err != nil {
				return out, err
			}
			if !ok {
				g.log.Info("defer declined, asking again", zap.String("question", q.ID))
				continue
			}
			for _, rq := range append([]requirements.Question(nil), sum.OpenQuestions...) {
				if err := sum.Resolve(requirements.Answer{QuestionID: rq.ID, Deferred: true}); err != nil {
					return out, err
				}
				out.Deferred++
				g.log.Warn("question deferred by operator", zap.String("question", rq.ID), zap.String("kind", string(rq.Kind)))
			}
			break
		}

		target := requirements.TargetMustHave
		switch {
		case ans.Exclude:
			target = requirements.TargetOutOfScope
		case ans.Optional:
			target = requirements.TargetNiceToHave
		}
		if err := sum.Resolve(requirements.Answer{QuestionID: q.ID, Text: strings.TrimSpace(ans.Text), Target: target}); err != nil {
			return out, err
		}
		out.Answered++
		g.log.Debug("question answered", zap.String("question", q.ID), zap.String("target", string(target)))
	}

	g.state = Closed
	return out, nil
}

func (g *Gate) ask(ctx context.Context, q requirements.Question) (operator.Answer, error) {
	qctx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ans, err := g.op.Ask(qctx, operator.Question{ID: q.ID, Text: q.Text, Options: q.Options})
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return ans, fmt.Errorf("question %s after %s: %w", q.ID, g.timeout, ErrTimeout)
	}
	return ans, err
}
