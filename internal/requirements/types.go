// Package requirements turns an issue snapshot into a structured summary of
// what must be built and which questions remain open.
package requirements

import "fmt"

// ChangeType classifies the kind of change an issue asks for.
type ChangeType string

const (
	Feature  ChangeType = "feature"
	BugFix   ChangeType = "bugfix"
	Refactor ChangeType = "refactor"
	Docs     ChangeType = "docs"
	Other    ChangeType = "other"
)

func (c ChangeType) Valid() bool {
	switch c {
	case Feature, BugFix, Refactor, Docs, Other:
		return true
	}
	return false
}

// CommitType maps the change type onto its conventional-commit prefix.
func (c ChangeType) CommitType() string {
	switch c {
	case Feature:
		return "feat"
	case BugFix:
		return "fix"
	case Refactor:
		return "refactor"
	case Docs:
		return "docs"
	default:
		return "chore"
	}
}

// QuestionKind identifies which gap a question covers.
type QuestionKind string

const (
	KindExpectedBehavior   QuestionKind = "expected_behavior"
	KindScope              QuestionKind = "scope"
	KindAcceptanceCriteria QuestionKind = "acceptance_criteria"
)

// Question is an open requirements question for the operator.
type Question struct {
	ID      string       `json:"id"`
	Kind    QuestionKind `json:"kind"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
}

// Target says which requirement list an answer lands in.
type Target string

const (
	TargetMustHave   Target = "must_have"
	TargetNiceToHave Target = "nice_to_have"
	TargetOutOfScope Target = "out_of_scope"
)

// Answer records how a question was resolved.
type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	Target     Target `json:"target"`
	Deferred   bool   `json:"deferred,omitempty"`
}

// Summary is the structured requirements view of an issue.
type Summary struct {
	ChangeType    ChangeType `json:"change_type"`
	Confidence    float64    `json:"confidence"`
	MustHave      []string   `json:"must_have"`
	NiceToHave    []string   `json:"nice_to_have"`
	OutOfScope    []string   `json:"out_of_scope"`
	OpenQuestions []Question `json:"open_questions"`
	Answers       []Answer   `json:"answers,omitempty"`
}

// HasOpenQuestions reports whether any question is still unresolved.
func (s *Summary) HasOpenQuestions() bool {
	return len(s.OpenQuestions) > 0
}

// Resolve applies an answer to the question with the given id and removes
// the question from the open list.
func (s *Summary) Resolve(a Answer) error {
	idx := -1
	for i, q := range s.OpenQuestions {
		if q.ID == a.QuestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no open question %q", a.QuestionID)
	}
	q := s.OpenQuestions[idx]

	if a.Text != "" {
		item := fmt.Sprintf("%s: %s", kindLabel(q.Kind), a.Text)
		switch a.Target {
		case TargetNiceToHave:
			s.NiceToHave = append(s.NiceToHave, item)
		case TargetOutOfScope:
			s.OutOfScope = append(s.OutOfScope, a.Text)
		default:
			a.Target = TargetMustHave
			s.MustHave = append(s.MustHave, item)
		}
	}

	s.OpenQuestions = append(s.OpenQuestions[:idx:idx], s.OpenQuestions[idx+1:]...)
	s.Answers = append(s.Answers, a)
	return nil
}

func kindLabel(k QuestionKind) string {
	switch k {
	case KindExpectedBehavior:
		return "Expected behavior"
	case KindScope:
		return "Scope"
	case KindAcceptanceCriteria:
		return "Acceptance"
	default:
		return "Clarification"
	}
}
