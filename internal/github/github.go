// Package github adapts GitHub to the issue tracker collaborators: reading
// issues and opening labeled pull requests. Two backends exist, one driving
// the gh CLI and one calling the REST API directly.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/issue"
)

// CmdRunner executes gh commands. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner implements CmdRunner using exec.CommandContext against gh.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CLI talks to GitHub through the gh binary, reusing its authentication.
type CLI struct {
	cmd  CmdRunner
	repo string
}

// NewCLI creates a gh-backed tracker. repo ("owner/name") may be empty to
// use the repository of the current directory.
func NewCLI(cmd CmdRunner, repo string) *CLI {
	return &CLI{cmd: cmd, repo: repo}
}

func (c *CLI) withRepo(args []string) []string {
	if c.repo != "" {
		args = append(args, "--repo", c.repo)
	}
	return args
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Comments []struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"comments"`
}

// GetIssue fetches an issue with its labels and comments.
func (c *CLI) GetIssue(ctx context.Context, id string) (*issue.RawIssue, error) {
	number, err := validateIssueNumber(id)
	if err != nil {
		return nil, err
	}
	args := c.withRepo([]string{"issue", "view", strconv.Itoa(number), "--json", "number,title,body,labels,comments"})
	out, err := c.cmd.Run(ctx, args...)
	if err != nil {
		return nil, classifyCLIError("get issue "+id, out, err)
	}

	var gi ghIssue
	if err := json.Unmarshal([]byte(out), &gi); err != nil {
		return nil, fmt.Errorf("parse issue %s: %w", id, err)
	}
	raw := &issue.RawIssue{
		ID:    strconv.Itoa(gi.Number),
		Title: gi.Title,
		Body:  gi.Body,
	}
	for _, l := range gi.Labels {
		raw.Labels = append(raw.Labels, l.Name)
	}
	for _, cm := range gi.Comments {
		raw.Comments = append(raw.Comments, issue.Comment{
			Author:    cm.Author.Login,
			Body:      cm.Body,
			CreatedAt: cm.CreatedAt,
		})
	}
	return raw, nil
}

// CreateChangeRequest opens a pull request from the draft. Labels are
// applied separately by AddLabels.
func (c *CLI) CreateChangeRequest(ctx context.Context, d artifact.ChangeRequestDraft) (artifact.ChangeRequest, error) {
	if d.HeadBranch == "" || strings.HasPrefix(d.HeadBranch, "-") {
		return artifact.ChangeRequest{}, fmt.Errorf("invalid head branch %q", d.HeadBranch)
	}
	if existing, ok := c.findByBranch(ctx, d.HeadBranch); ok {
		return existing, nil
	}
	args := []string{"pr", "create",
		"--title", d.Title,
		"--body", d.Body,
		"--head", d.HeadBranch,
	}
	if d.BaseBranch != "" {
		args = append(args, "--base", d.BaseBranch)
	}
	out, err := c.cmd.Run(ctx, c.withRepo(args)...)
	if err != nil {
		return artifact.ChangeRequest{}, classifyCLIError("create pull request", out, err)
	}
	url := lastLine(out)
	return artifact.ChangeRequest{ID: numberFromURL(url), URL: url}, nil
}

// findByBranch returns an already open pull request for branch so a
// resumed run does not fail on a duplicate.
func (c *CLI) findByBranch(ctx context.Context, branch string) (artifact.ChangeRequest, bool) {
	args := c.withRepo([]string{"pr", "list", "--head", branch, "--state", "open", "--json", "number,url", "--limit", "1"})
	out, err := c.cmd.Run(ctx, args...)
	if err != nil {
		return artifact.ChangeRequest{}, false
	}
	var prs []struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal([]byte(out), &prs); err != nil || len(prs) == 0 {
		return artifact.ChangeRequest{}, false
	}
	return artifact.ChangeRequest{ID: strconv.Itoa(prs[0].Number), URL: prs[0].URL}, true
}

// AddLabels attaches labels to the pull request.
func (c *CLI) AddLabels(ctx context.Context, target string, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	if _, err := validateIssueNumber(target); err != nil {
		return err
	}
	args := c.withRepo([]string{"pr", "edit", target, "--add-label", strings.Join(labels, ",")})
	out, err := c.cmd.Run(ctx, args...)
	if err != nil {
		return classifyCLIError("add labels", out, err)
	}
	return nil
}

var (
	notFoundOutput   = regexp.MustCompile(`(?i)could not resolve to an? (issue|pull ?request|repository)|\bHTTP 404\b|no pull requests? found`)
	permissionOutput = regexp.MustCompile(`(?i)\bHTTP 40[13]\b|resource not accessible by|does not have the correct permissions|must have (push|admin|write) access|gh auth login|bad credentials`)
)

// classifyCLIError maps gh failures onto the tracker sentinels. Only gh's
// own output is inspected; the error text carries the argv, which holds
// user content such as the issue number and pull request title.
func classifyCLIError(op, out string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: gh is not installed: %w", op, err)
	}
	switch {
	case notFoundOutput.MatchString(out):
		return fmt.Errorf("%s: %w: %s", op, issue.ErrNotFound, out)
	case permissionOutput.MatchString(out):
		return fmt.Errorf("%s: %w: %s", op, issue.ErrPermissionDenied, out)
	}
	return fmt.Errorf("%s: %w: %v", op, issue.ErrTransport, err)
}

// validateIssueNumber guards against flag injection through the id.
func validateIssueNumber(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid issue number %q: %w", id, issue.ErrNotFound)
	}
	return n, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func numberFromURL(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}
