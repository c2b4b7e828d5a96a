package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GitCLI drives the git binary in a working tree.
type GitCLI struct {
	git    GitRunner
	dir    string
	remote string
}

// NewGitCLI creates a GitCLI for the working tree at dir.
func NewGitCLI(git GitRunner, dir, remote string) *GitCLI {
	if remote == "" {
		remote = DefaultRemote
	}
	return &GitCLI{git: git, dir: dir, remote: remote}
}

func (g *GitCLI) run(ctx context.Context, op string, args ...string) error {
	out, err := g.git.RunGit(ctx, g.dir, args...)
	if err == nil {
		return nil
	}
	// err repeats the argv, which holds the commit message; only git's
	// output decides the class.
	if IsPermissionOutput(out) {
		return fmt.Errorf("%s: %w: %s", op, ErrPermissionDenied, out)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateBranch creates name from HEAD and checks it out.
func (g *GitCLI) CreateBranch(ctx context.Context, name string) error {
	if !validRefName(name) {
		return fmt.Errorf("invalid branch name %q", name)
	}
	return g.run(ctx, "create branch", "checkout", "-b", name)
}

// Commit stages every change in the working tree and commits it.
func (g *GitCLI) Commit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("commit message cannot be empty")
	}
	if err := g.run(ctx, "stage changes", "add", "-A"); err != nil {
		return err
	}
	return g.run(ctx, "commit", "commit", "-m", message)
}

// Push pushes branch to the remote and sets upstream.
func (g *GitCLI) Push(ctx context.Context, branch string) error {
	if !validRefName(branch) {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	return g.run(ctx, "push branch", "push", "-u", g.remote, branch)
}
