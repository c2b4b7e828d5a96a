// Package operator models the human decision points of a run as explicit
// synchronous request/response exchanges.
package operator

import (
	"context"
	"errors"
)

// ErrCancelled is returned by any exchange the operator cancels. Callers
// must stop the run without further side effects.
var ErrCancelled = errors.New("cancelled by operator")

// ErrNoResponse is returned by a scripted operator that has no response
// for a request.
var ErrNoResponse = errors.New("no scripted response")

// Question asks for free text or one of a set of options.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Answer is the operator's reply to a Question. Defer asks to resolve all
// remaining questions by default; it is only honored after a Confirm.
type Answer struct {
	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Exclude  bool   `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Defer    bool   `json:"defer,omitempty" yaml:"defer,omitempty"`
}

// PlanReview is what the operator sees when approving a plan.
type PlanReview struct {
	IssueID     string   `json:"issue_id"`
	Title       string   `json:"title"`
	TargetFiles []string `json:"target_files"`
	Conventions string   `json:"conventions,omitempty"`
	MustHave    []string `json:"must_have,omitempty"`
	Revision    int      `json:"revision"`
}

// Approval is the operator's verdict on a plan. Feedback accompanies a
// rejection and is fed into the next planning attempt.
type Approval struct {
	Approved bool   `json:"approved" yaml:"approved"`
	Feedback string `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// Choice asks the operator to pick exactly one of Options.
type Choice struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Operator is the human collaborator. Every method blocks until the
// operator responds, the context ends, or the operator cancels.
type Operator interface {
	Ask(ctx context.Context, q Question) (Answer, error)
	Confirm(ctx context.Context, prompt string) (bool, error)
	Approve(ctx context.Context, r PlanReview) (Approval, error)
	Choose(ctx context.Context, c Choice) (string, error)
}
