package operator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const scriptYAML = `
answers:
  scope:
    text: only the handler
    optional: true
  expected_behavior:
    defer: true
confirms: [false, true]
approvals:
  - approved: false
    feedback: split the change
  - approved: true
choices:
  verify_timeout: [retry, abort]
  minor: [defer]
`

func loadTestScript(t *testing.T, body string) *Script {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answers.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	return s
}

func TestScripted_ReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	op := NewScripted(loadTestScript(t, scriptYAML))

	a, err := op.Ask(ctx, Question{ID: "scope"})
	if err != nil || a.Text != "only the handler" || !a.Optional {
		t.Errorf("Ask(scope) = %+v, %v", a, err)
	}
	a, err = op.Ask(ctx, Question{ID: "expected_behavior"})
	if err != nil || !a.Defer {
		t.Errorf("Ask(expected_behavior) = %+v, %v", a, err)
	}
	if _, err := op.Ask(ctx, Question{ID: "unknown"}); !errors.Is(err, ErrNoResponse) {
		t.Errorf("Ask(unknown) err = %v, want ErrNoResponse", err)
	}

	for i, want := range []bool{false, true} {
		got, err := op.Confirm(ctx, "sure?")
		if err != nil || got != want {
			t.Errorf("Confirm #%d = %v, %v; want %v", i, got, err, want)
		}
	}
	if _, err := op.Confirm(ctx, "again?"); !errors.Is(err, ErrNoResponse) {
		t.Errorf("exhausted Confirm err = %v", err)
	}

	ap, _ := op.Approve(ctx, PlanReview{})
	if ap.Approved || ap.Feedback != "split the change" {
		t.Errorf("first Approve = %+v", ap)
	}
	ap, _ = op.Approve(ctx, PlanReview{Revision: 1})
	if !ap.Approved {
		t.Errorf("second Approve = %+v", ap)
	}

	opts := []string{"retry", "accept", "abort"}
	if got, _ := op.Choose(ctx, Choice{ID: "verify_timeout", Options: opts}); got != "retry" {
		t.Errorf("Choose #1 = %q, want retry", got)
	}
	if got, _ := op.Choose(ctx, Choice{ID: "verify_timeout", Options: opts}); got != "abort" {
		t.Errorf("Choose #2 = %q, want abort", got)
	}
	got, err := op.Choose(ctx, Choice{ID: "minor:R3", Options: []string{"fix_now", "defer", "ignore"}})
	if err != nil || got != "defer" {
		t.Errorf("Choose(minor:R3) = %q, %v; want defer via prefix", got, err)
	}
}

func TestScripted_RejectsUnknownOption(t *testing.T) {
	op := NewScripted(&Script{Choices: map[string][]string{"x": {"maybe"}}})
	if _, err := op.Choose(context.Background(), Choice{ID: "x", Options: []string{"yes", "no"}}); err == nil {
		t.Fatal("expected error for option not offered")
	}
}

func TestScripted_CancelAt(t *testing.T) {
	tests := []struct {
		cancelAt string
		call     func(Operator) error
	}{
		{"ask", func(o Operator) error { _, err := o.Ask(context.Background(), Question{ID: "scope"}); return err }},
		{"ask:scope", func(o Operator) error { _, err := o.Ask(context.Background(), Question{ID: "scope"}); return err }},
		{"approve", func(o Operator) error { _, err := o.Approve(context.Background(), PlanReview{}); return err }},
		{"confirm", func(o Operator) error { _, err := o.Confirm(context.Background(), "?"); return err }},
		{"choose:minor:R1", func(o Operator) error {
			_, err := o.Choose(context.Background(), Choice{ID: "minor:R1", Options: []string{"defer"}})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.cancelAt, func(t *testing.T) {
			op := NewScripted(&Script{CancelAt: tt.cancelAt, Answers: map[string]Answer{"scope": {Text: "x"}}})
			if err := tt.call(op); !errors.Is(err, ErrCancelled) {
				t.Errorf("err = %v, want ErrCancelled", err)
			}
		})
	}

	op := NewScripted(&Script{CancelAt: "ask:other", Answers: map[string]Answer{"scope": {Text: "x"}}})
	if _, err := op.Ask(context.Background(), Question{ID: "scope"}); err != nil {
		t.Errorf("cancel for a different question fired: %v", err)
	}
}

func TestScripted_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op := NewScripted(&Script{Answers: map[string]Answer{"scope": {Text: "x"}}})
	if _, err := op.Ask(ctx, Question{ID: "scope"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder(NewScripted(&Script{
		Answers:  map[string]Answer{"scope": {Text: "x"}},
		Confirms: []bool{true},
	}))
	ctx := context.Background()
	_, _ = rec.Ask(ctx, Question{ID: "scope"})
	_, _ = rec.Confirm(ctx, "ok?")
	_, _ = rec.Approve(ctx, PlanReview{})

	entries := rec.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Kind != "ask" || string(entries[1].Response) != "true" {
		t.Errorf("entries = %+v", entries)
	}
	if entries[2].Error == "" {
		t.Error("failed approve not recorded as error")
	}
}
