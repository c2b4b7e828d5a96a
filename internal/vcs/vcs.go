// Package vcs performs the version-control writes of a run: branch, commit
// and push.
package vcs

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrPermissionDenied means the credentials may not perform the write.
// It is never retried; the run falls back to manual steps.
var ErrPermissionDenied = errors.New("version control permission denied")

// DefaultRemote is pushed to when no remote is configured.
const DefaultRemote = "origin"

// VCS is the version-control collaborator.
type VCS interface {
	CreateBranch(ctx context.Context, name string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
}

// permissionOutput matches the messages git, ssh and the git hosts print
// when credentials are refused. Bare status codes are not matched because
// branch names such as issue-403/... carry numbers.
var permissionOutput = regexp.MustCompile(`(?im)` + strings.Join([]string{
	`the requested url returned error: 40[13]`,
	`^remote: permission to \S+ denied`,
	`^error: permission to \S+ denied`,
	`permission denied \(publickey`,
	`authentication failed for `,
	`could not read username for `,
	`^remote: write access to repository not granted`,
}, "|"))

// IsPermissionOutput reports whether git output describes an authorization
// failure.
func IsPermissionOutput(out string) bool {
	return permissionOutput.MatchString(out)
}

func validRefName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "-") && !strings.ContainsAny(name, " ~^:?*[\\") && !strings.Contains(name, "..")
}
