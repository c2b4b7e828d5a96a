package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

const (
	optOther = "__other__"
	optDefer = "__defer__"

	targetMust    = "must"
	targetNice    = "nice"
	targetExclude = "exclude"
)

// Terminal prompts an interactive operator with huh forms.
type Terminal struct {
	// Accessible switches huh to its screen-reader friendly mode, which
	// also works on dumb terminals.
	Accessible bool
}

func (t *Terminal) run(ctx context.Context, form *huh.Form) error {
	err := form.WithAccessible(t.Accessible).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCancelled
	}
	return err
}

// Ask implements Operator.
func (t *Terminal) Ask(ctx context.Context, q Question) (Answer, error) {
	var (
		choice string
		text   string
		target = targetMust
	)

	if len(q.Options) > 0 {
		opts := make([]huh.Option[string], 0, len(q.Options)+2)
		for _, o := range q.Options {
			opts = append(opts, huh.NewOption(o, o))
		}
		opts = append(opts,
			huh.NewOption("Other (type an answer)", optOther),
			huh.NewOption("Defer remaining questions", optDefer),
		)
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(q.Text).
				Options(opts...).
				Value(&choice),
		))
		if err := t.run(ctx, form); err != nil {
			return Answer{}, err
		}
		if choice == optDefer {
			return Answer{Defer: true}, nil
		}
		if choice != optOther {
			text = choice
		}
	}

	fields := []huh.Field{}
	if text == "" {
		fields = append(fields, huh.NewText().
			Title(q.Text).
			Description("Leave empty and submit to defer the remaining questions").
			CharLimit(2000).
			Value(&text))
	}
	fields = append(fields, huh.NewSelect[string]().
		Title("Record this answer as").
		Options(
			huh.NewOption("Must have", targetMust),
			huh.NewOption("Nice to have", targetNice),
			huh.NewOption("Out of scope", targetExclude),
		).
		Value(&target))

	if err := t.run(ctx, huh.NewForm(huh.NewGroup(fields...))); err != nil {
		return Answer{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{Defer: true}, nil
	}
	return Answer{
		Text:     text,
		Optional: target == targetNice,
		Exclude:  target == targetExclude,
	}, nil
}

// Confirm implements Operator.
func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := t.run(ctx, form); err != nil {
		return false, err
	}
	return ok, nil
}

// Approve implements Operator.
func (t *Terminal) Approve(ctx context.Context, r PlanReview) (Approval, error) {
	var (
		approved bool
		feedback string
	)

	var desc strings.Builder
	fmt.Fprintf(&desc, "Issue #%s: %s\n", r.IssueID, r.Title)
	if r.Revision > 0 {
		fmt.Fprintf(&desc, "Revision %d\n", r.Revision)
	}
	desc.WriteString("\nTarget files:\n")
	for _, f := range r.TargetFiles {
		fmt.Fprintf(&desc, "  %s\n", f)
	}
	if r.Conventions != "" {
		fmt.Fprintf(&desc, "\nConventions:\n%s\n", r.Conventions)
	}
	if len(r.MustHave) > 0 {
		desc.WriteString("\nMust have:\n")
		for _, m := range r.MustHave {
			fmt.Fprintf(&desc, "  - %s\n", m)
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Implementation plan").
				Description(desc.String()),
			huh.NewConfirm().
				Title("Approve this plan?").
				Affirmative("Approve").
				Negative("Request changes").
				Value(&approved),
		),
		huh.NewGroup(
			huh.NewText().
				Title("What should change?").
				CharLimit(4000).
				Value(&feedback),
		).WithHideFunc(func() bool { return approved }),
	)
	if err := t.run(ctx, form); err != nil {
		return Approval{}, err
	}
	return Approval{Approved: approved, Feedback: strings.TrimSpace(feedback)}, nil
}

// Choose implements Operator.
func (t *Terminal) Choose(ctx context.Context, c Choice) (string, error) {
	if len(c.Options) == 0 {
		return "", fmt.Errorf("choice %s has no options", c.ID)
	}
	picked := c.Options[0]
	opts := make([]huh.Option[string], 0, len(c.Options))
	for _, o := range c.Options {
		opts = append(opts, huh.NewOption(o, o))
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(c.Prompt).
			Options(opts...).
			Value(&picked),
	))
	if err := t.run(ctx, form); err != nil {
		return "", err
	}
	return picked, nil
}
