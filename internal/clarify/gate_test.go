package clarify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lucasnoah/issuesmith/internal/operator"
	"github.com/lucasnoah/issuesmith/internal/requirements"
)

func openSummary() *requirements.Summary {
	return &requirements.Summary{
		ChangeType: requirements.Feature,
		MustHave:   []string{},
		OpenQuestions: []requirements.Question{
			{ID: "expected_behavior", Kind: requirements.KindExpectedBehavior, Text: "expected?"},
			{ID: "scope", Kind: requirements.KindScope, Text: "scope?", Options: []string{"a", "b"}},
			{ID: "acceptance_criteria", Kind: requirements.KindAcceptanceCriteria, Text: "done?"},
		},
	}
}

func TestResolve_AnswersEveryQuestion(t *testing.T) {
	op := operator.NewScripted(&operator.Script{Answers: map[string]operator.Answer{
		"expected_behavior":   {Text: "valid emails accepted"},
		"scope":               {Text: "the login form", Exclude: true},
		"acceptance_criteria": {Text: "docs updated", Optional: true},
	}})
	g := NewGate(op)
	sum := openSummary()

	out, err := g.Resolve(context.Background(), sum)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sum.HasOpenQuestions() {
		t.Errorf("open questions remain: %+v", sum.OpenQuestions)
	}
	if g.State() != Closed {
		t.Errorf("State = %s, want closed", g.State())
	}
	if out.Asked != 3 || out.Answered != 3 || out.Deferred != 0 {
		t.Errorf("Outcome = %+v", out)
	}
	if len(sum.MustHave) != 1 || sum.MustHave[0] != "Expected behavior: valid emails accepted" {
		t.Errorf("MustHave = %v", sum.MustHave)
	}
	if len(sum.OutOfScope) != 1 || sum.OutOfScope[0] != "the login form" {
		t.Errorf("OutOfScope = %v", sum.OutOfScope)
	}
	if len(sum.NiceToHave) != 1 {
		t.Errorf("NiceToHave = %v", sum.NiceToHave)
	}
}

func TestResolve_DeferRequiresConfirmation(t *testing.T) {
	op := operator.NewScripted(&operator.Script{
		Answers: map[string]operator.Answer{
			"expected_behavior": {Defer: true},
		},
		Confirms: []bool{false, true},
	})
	sum := openSummary()

	out, err := NewGate(op).Resolve(context.Background(), sum)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Asked != 2 {
		t.Errorf("Asked = %d, want 2 (declined defer re-asks)", out.Asked)
	}
	if out.Deferred != 3 || sum.HasOpenQuestions() {
		t.Errorf("Outcome = %+v, open = %v", out, sum.OpenQuestions)
	}
	for _, a := range sum.Answers {
		if !a.Deferred {
			t.Errorf("answer %s not marked deferred", a.QuestionID)
		}
	}
	if len(sum.MustHave) != 0 {
		t.Errorf("deferred questions invented requirements: %v", sum.MustHave)
	}
}

func TestResolve_CancelPropagates(t *testing.T) {
	op := operator.NewScripted(&operator.Script{
		Answers:  map[string]operator.Answer{"expected_behavior": {Text: "x"}},
		CancelAt: "ask:scope",
	})
	sum := openSummary()
	g := NewGate(op)

	_, err := g.Resolve(context.Background(), sum)
	if !errors.Is(err, operator.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(sum.OpenQuestions) != 2 {
		t.Errorf("open questions = %d, want 2", len(sum.OpenQuestions))
	}
	if g.State() == Closed {
		t.Error("gate closed after cancellation")
	}
}

type blockingOperator struct{ operator.Operator }

func (blockingOperator) Ask(ctx context.Context, q operator.Question) (operator.Answer, error) {
	<-ctx.Done()
	return operator.Answer{}, ctx.Err()
}

func TestResolve_TimeoutIsAnError(t *testing.T) {
	sum := openSummary()
	_, err := NewGate(blockingOperator{}, WithTimeout(10*time.Millisecond)).Resolve(context.Background(), sum)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if len(sum.OpenQuestions) != 3 {
		t.Error("timeout resolved a question")
	}
}

func TestResolve_NoQuestions(t *testing.T) {
	g := NewGate(operator.NewScripted(nil))
	out, err := g.Resolve(context.Background(), &requirements.Summary{})
	if err != nil || out.Asked != 0 || g.State() != Closed {
		t.Errorf("Resolve = %+v, %v, state %s", out, err, g.State())
	}
}
