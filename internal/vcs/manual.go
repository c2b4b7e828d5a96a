package vcs

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/issuesmith/internal/artifact"
)

// Step is one write of the publish sequence.
type Step string

const (
	StepBranch        Step = "create_branch"
	StepCommit        Step = "commit"
	StepPush          Step = "push"
	StepChangeRequest Step = "create_change_request"
	StepLabels        Step = "add_labels"
)

var stepOrder = []Step{StepBranch, StepCommit, StepPush, StepChangeRequest, StepLabels}

// ManualSteps renders the shell commands that finish publication starting
// at from. Labels are applied by gh pr create, so StepLabels alone yields a
// gh pr edit command.
func ManualSteps(cp artifact.CommitPlan, draft artifact.ChangeRequestDraft, remote string, from Step) []string {
	if remote == "" {
		remote = DefaultRemote
	}
	start := 0
	for i, s := range stepOrder {
		if s == from {
			start = i
			break
		}
	}

	var steps []string
	for _, s := range stepOrder[start:] {
		switch s {
		case StepBranch:
			steps = append(steps, "git checkout -b "+shellQuote(cp.BranchName))
		case StepCommit:
			steps = append(steps,
				"git add -A",
				"git commit -F - <<'ISSUESMITH_COMMIT_MSG'\n"+cp.CommitMessage+"\nISSUESMITH_COMMIT_MSG",
			)
		case StepPush:
			steps = append(steps, fmt.Sprintf("git push -u %s %s", shellQuote(remote), shellQuote(cp.BranchName)))
		case StepChangeRequest:
			var b strings.Builder
			fmt.Fprintf(&b, "gh pr create --base %s --head %s --title %s",
				shellQuote(draft.BaseBranch), shellQuote(draft.HeadBranch), shellQuote(draft.Title))
			for _, l := range draft.Labels {
				b.WriteString(" --label " + shellQuote(l))
			}
			b.WriteString(" --body-file - <<'ISSUESMITH_PR_BODY'\n" + strings.TrimRight(draft.Body, "\n") + "\nISSUESMITH_PR_BODY")
			steps = append(steps, b.String())
			return steps
		case StepLabels:
			if len(draft.Labels) == 0 {
				continue
			}
			cmd := "gh pr edit " + shellQuote(draft.HeadBranch)
			for _, l := range draft.Labels {
				cmd += " --add-label " + shellQuote(l)
			}
			steps = append(steps, cmd)
		}
	}
	return steps
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./#", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
