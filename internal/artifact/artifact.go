// Package artifact derives the branch, commit message and change-request
// draft for a run. Everything here is a pure function of its inputs.
package artifact

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/naming"
	"github.com/lucasnoah/issuesmith/internal/plan"
	"github.com/lucasnoah/issuesmith/internal/requirements"
	"github.com/lucasnoah/issuesmith/internal/verify"
)

const (
	DefaultBaseBranch = "main"
	DefaultScope      = "core"

	maxSummaryLen = 72
	maxScopeLen   = 24
)

// containerDirs are top-level directories too generic to name a scope; the
// directory beneath them is used instead.
var containerDirs = map[string]bool{
	"internal": true, "pkg": true, "src": true, "lib": true, "cmd": true, "app": true,
}

// CommitPlan is everything needed to create the commit.
type CommitPlan struct {
	BranchName    string                  `json:"branch_name"`
	CommitMessage string                  `json:"commit_message"`
	ChangeType    requirements.ChangeType `json:"change_type"`
}

// ChangeRequestDraft is handed to the tracker to open a pull request.
type ChangeRequestDraft struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	BaseBranch string   `json:"base_branch"`
	HeadBranch string   `json:"head_branch"`
	Labels     []string `json:"labels"`
}

// ChangeRequest identifies a pull request opened from a draft.
type ChangeRequest struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Options tune materialization.
type Options struct {
	BaseBranch   string
	ExtraLabels  []string
	Verification *verify.Result
}

// Materialize builds the commit plan and change-request draft.
func Materialize(s *issue.Snapshot, sum *requirements.Summary, p *plan.Plan, opts Options) (CommitPlan, ChangeRequestDraft) {
	ct := requirements.Other
	var mustHave []string
	if sum != nil {
		if sum.ChangeType.Valid() {
			ct = sum.ChangeType
		}
		mustHave = sum.MustHave
	}
	var files []string
	if p != nil {
		files = p.TargetFiles
	}

	typ := ct.CommitType()
	scope := Scope(files, s.Labels)
	branch := naming.BranchName(s.ID, s.Title)

	cp := CommitPlan{
		BranchName:    branch,
		CommitMessage: CommitMessage(typ, scope, s.ID, s.Title, mustHave),
		ChangeType:    ct,
	}

	base := opts.BaseBranch
	if base == "" {
		base = DefaultBaseBranch
	}
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Resolve issue #" + s.ID
	}
	draft := ChangeRequestDraft{
		Title:      fmt.Sprintf("%s(%s): %s", typ, scope, title),
		Body:       changeRequestBody(s, mustHave, files, opts.Verification),
		BaseBranch: base,
		HeadBranch: branch,
		Labels:     mergeLabels(s.Labels, opts.ExtraLabels),
	}
	return cp, draft
}

// CommitMessage renders "{type}({scope}): {summary}\n\n{body}\n\nCloses #{id}".
func CommitMessage(typ, scope, id, title string, mustHave []string) string {
	var body strings.Builder
	if len(mustHave) == 0 {
		body.WriteString(strings.TrimSpace(title))
		if body.Len() == 0 {
			body.WriteString("Resolve issue #" + id)
		}
	}
	for i, m := range mustHave {
		if i > 0 {
			body.WriteByte('\n')
		}
		body.WriteString("- " + m)
	}
	return fmt.Sprintf("%s(%s): %s\n\n%s\n\nCloses #%s", typ, scope, Summary(title, id), body.String(), id)
}

// Summary turns a title into a commit subject: trailing punctuation is
// dropped, the first letter lower-cased unless the first word is an
// acronym, and the result capped at 72 characters on a word boundary.
func Summary(title, id string) string {
	s := strings.Join(strings.Fields(title), " ")
	s = strings.TrimRight(s, ".!?:;, ")
	if s == "" {
		return "resolve issue #" + id
	}

	first, _, _ := strings.Cut(s, " ")
	if !isAcronym(first) {
		r, size := utf8.DecodeRuneInString(s)
		s = string(unicode.ToLower(r)) + s[size:]
	}

	if utf8.RuneCountInString(s) > maxSummaryLen {
		runes := []rune(s)
		cut := string(runes[:maxSummaryLen])
		if i := strings.LastIndex(cut, " "); i > maxSummaryLen/2 {
			cut = cut[:i]
		}
		s = strings.TrimRight(cut, ".!?:;, -")
	}
	return s
}

func isAcronym(word string) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 1
}

// Scope picks the most common top-level directory of files, stepping past
// generic container directories. Ties go to the alphabetically first. With
// no directories it falls back to the first label, then DefaultScope.
func Scope(files []string, labels []string) string {
	counts := make(map[string]int)
	for _, f := range files {
		parts := strings.Split(strings.Trim(f, "/"), "/")
		if len(parts) < 2 {
			continue
		}
		dir := parts[0]
		if containerDirs[dir] && len(parts) > 2 {
			dir = parts[1]
		}
		if s := naming.Slug(dir, maxScopeLen); s != "" {
			counts[s]++
		}
	}
	if len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if counts[keys[i]] != counts[keys[j]] {
				return counts[keys[i]] > counts[keys[j]]
			}
			return keys[i] < keys[j]
		})
		return keys[0]
	}
	for _, l := range labels {
		if s := naming.Slug(l, maxScopeLen); s != "" {
			return s
		}
	}
	return DefaultScope
}

func changeRequestBody(s *issue.Snapshot, mustHave, files []string, vr *verify.Result) string {
	var b strings.Builder

	b.WriteString("## Summary\n\n")
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Resolve issue #" + s.ID
	}
	b.WriteString(title + "\n")

	b.WriteString("\n## Changes\n\n")
	if len(files) == 0 {
		b.WriteString("_No target files recorded._\n")
	}
	for _, f := range files {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}

	b.WriteString("\n## Checklist\n\n")
	if len(mustHave) == 0 {
		b.WriteString("_No must-have items recorded._\n")
	}
	for _, m := range mustHave {
		fmt.Fprintf(&b, "- [x] %s\n", m)
	}

	b.WriteString("\n## Verification\n\n")
	b.WriteString(describeVerification(vr) + "\n")

	b.WriteString("\n## Related Issue\n\n")
	fmt.Fprintf(&b, "Closes #%s\n", s.ID)
	return b.String()
}

func describeVerification(vr *verify.Result) string {
	switch {
	case vr == nil:
		return "Not run."
	case !vr.TestsRun:
		return "No test tooling detected; not verified automatically."
	case vr.TimedOut:
		return fmt.Sprintf("Timed out (%s); accepted as unverified by the operator.", vr.Toolchain)
	}
	return fmt.Sprintf("Toolchain `%s`: tests %s, lint %s.", vr.Toolchain, vr.TestsPassed, vr.LintPassed)
}

// mergeLabels returns the union of both lists, case-insensitively
// de-duplicated, keeping first-seen order.
func mergeLabels(a, b []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, l := range append(append([]string(nil), a...), b...) {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}
