package operator

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entry is one recorded exchange.
type Entry struct {
	Kind     string          `json:"kind"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
	At       time.Time       `json:"at"`
}

// Recorder wraps an Operator and records every exchange.
type Recorder struct {
	inner Operator
	now   func() time.Time

	mu      sync.Mutex
	entries []Entry
}

// NewRecorder wraps op.
func NewRecorder(op Operator) *Recorder {
	return &Recorder{inner: op, now: time.Now}
}

// Entries returns a copy of the transcript so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Recorder) record(kind string, req, resp any, err error) {
	e := Entry{Kind: kind, At: r.now().UTC()}
	e.Request, _ = json.Marshal(req)
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Response, _ = json.Marshal(resp)
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Ask implements Operator.
func (r *Recorder) Ask(ctx context.Context, q Question) (Answer, error) {
	a, err := r.inner.Ask(ctx, q)
	r.record("ask", q, a, err)
	return a, err
}

// Confirm implements Operator.
func (r *Recorder) Confirm(ctx context.Context, prompt string) (bool, error) {
	ok, err := r.inner.Confirm(ctx, prompt)
	r.record("confirm", prompt, ok, err)
	return ok, err
}

// Approve implements Operator.
func (r *Recorder) Approve(ctx context.Context, pr PlanReview) (Approval, error) {
	a, err := r.inner.Approve(ctx, pr)
	r.record("approve", pr, a, err)
	return a, err
}

// Choose implements Operator.
func (r *Recorder) Choose(ctx context.Context, c Choice) (string, error) {
	s, err := r.inner.Choose(ctx, c)
	r.record("choose", c, s, err)
	return s, err
}
