package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Signature identifies the commit author.
type Signature struct {
	Name  string
	Email string
}

// GoGit performs the writes in-process with go-git.
type GoGit struct {
	repo   *git.Repository
	remote string
	auth   transport.AuthMethod
	author Signature
	now    func() time.Time
}

// GoGitOption configures GoGit.
type GoGitOption func(*GoGit)

// WithToken authenticates HTTPS pushes with a token.
func WithToken(token string) GoGitOption {
	return func(g *GoGit) {
		if token != "" {
			g.auth = &http.BasicAuth{Username: "x-access-token", Password: token}
		}
	}
}

// WithAuthor sets the commit author.
func WithAuthor(s Signature) GoGitOption {
	return func(g *GoGit) { g.author = s }
}

// WithRemote sets the remote to push to.
func WithRemote(name string) GoGitOption {
	return func(g *GoGit) {
		if name != "" {
			g.remote = name
		}
	}
}

// OpenGoGit opens the repository containing dir.
func OpenGoGit(dir string, opts ...GoGitOption) (*GoGit, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return NewGoGit(repo, opts...), nil
}

// NewGoGit wraps an already opened repository.
func NewGoGit(repo *git.Repository, opts ...GoGitOption) *GoGit {
	g := &GoGit{
		repo:   repo,
		remote: DefaultRemote,
		author: Signature{Name: "issuesmith", Email: "issuesmith@localhost"},
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CreateBranch creates name at HEAD and checks it out, keeping local
// changes.
func (g *GoGit) CreateBranch(ctx context.Context, name string) error {
	if !validRefName(name) {
		return fmt.Errorf("invalid branch name %q", name)
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
		Keep:   true,
	})
	if err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// Commit stages every change and commits it.
func (g *GoGit) Commit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("commit message cannot be empty")
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	sig := &object.Signature{Name: g.author.Name, Email: g.author.Email, When: g.now()}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Push pushes branch to the remote. Authorization failures map to
// ErrPermissionDenied.
func (g *GoGit) Push(ctx context.Context, branch string) error {
	if !validRefName(branch) {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	err := g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: g.remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       g.auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, transport.ErrAuthorizationFailed), errors.Is(err, transport.ErrAuthenticationRequired):
		return fmt.Errorf("push branch %s: %w: %v", branch, ErrPermissionDenied, err)
	case IsPermissionOutput(err.Error()):
		return fmt.Errorf("push branch %s: %w: %v", branch, ErrPermissionDenied, err)
	}
	return fmt.Errorf("push branch %s: %w", branch, err)
}
