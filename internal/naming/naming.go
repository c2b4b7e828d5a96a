// Package naming derives deterministic identifiers (slugs, branch names)
// from free-text issue titles.
package naming

import (
	"regexp"
	"strings"
)

// DefaultSlugLen is the slug length used when callers pass maxLen <= 0.
const DefaultSlugLen = 50

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases title, collapses every run of characters outside
// [a-z0-9] into a single "-", trims dashes from both ends and truncates to
// maxLen without leaving a trailing dash. Empty input yields "".
func Slug(title string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSlugLen
	}
	s := nonSlugRun.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}

// BranchName returns "issue-{id}/{slug}" for the given issue.
// An empty slug yields "issue-{id}".
func BranchName(issueID, title string) string {
	slug := Slug(title, DefaultSlugLen)
	if slug == "" {
		return "issue-" + issueID
	}
	return "issue-" + issueID + "/" + slug
}
