package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/issue"
)

// API talks to the GitHub REST API with a token.
type API struct {
	client *gh.Client
	owner  string
	repo   string
}

// NewAPI creates a REST-backed tracker for repo ("owner/name"). An empty
// token yields an unauthenticated client, which can read public issues only.
func NewAPI(ctx context.Context, token, repo string) (*API, error) {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	return NewAPIWithClient(gh.NewClient(hc), repo)
}

// NewAPIWithClient wraps an existing go-github client.
func NewAPIWithClient(c *gh.Client, repo string) (*API, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid repository %q: want owner/name", repo)
	}
	return &API{client: c, owner: owner, repo: name}, nil
}

// GetIssue fetches an issue and every page of its comments.
func (a *API) GetIssue(ctx context.Context, id string) (*issue.RawIssue, error) {
	number, err := validateIssueNumber(id)
	if err != nil {
		return nil, err
	}
	gi, resp, err := a.client.Issues.Get(ctx, a.owner, a.repo, number)
	if err != nil {
		return nil, classifyAPIError("get issue "+id, resp, err)
	}
	if gi.IsPullRequest() {
		return nil, fmt.Errorf("get issue %s: is a pull request: %w", id, issue.ErrNotFound)
	}

	raw := &issue.RawIssue{
		ID:    strconv.Itoa(gi.GetNumber()),
		Title: gi.GetTitle(),
		Body:  gi.GetBody(),
	}
	for _, l := range gi.Labels {
		raw.Labels = append(raw.Labels, l.GetName())
	}

	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := a.client.Issues.ListComments(ctx, a.owner, a.repo, number, opts)
		if err != nil {
			return nil, classifyAPIError("list comments of issue "+id, resp, err)
		}
		for _, c := range comments {
			raw.Comments = append(raw.Comments, issue.Comment{
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return raw, nil
}

// CreateChangeRequest opens a pull request, or returns the open one for the
// same head branch.
func (a *API) CreateChangeRequest(ctx context.Context, d artifact.ChangeRequestDraft) (artifact.ChangeRequest, error) {
	existing, resp, err := a.client.PullRequests.List(ctx, a.owner, a.repo, &gh.PullRequestListOptions{
		State:       "open",
		Head:        a.owner + ":" + d.HeadBranch,
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		return artifact.ChangeRequest{}, classifyAPIError("list pull requests", resp, err)
	}
	if len(existing) > 0 {
		return toChangeRequest(existing[0]), nil
	}

	pr, resp, err := a.client.PullRequests.Create(ctx, a.owner, a.repo, &gh.NewPullRequest{
		Title: gh.String(d.Title),
		Head:  gh.String(d.HeadBranch),
		Base:  gh.String(d.BaseBranch),
		Body:  gh.String(d.Body),
	})
	if err != nil {
		return artifact.ChangeRequest{}, classifyAPIError("create pull request", resp, err)
	}
	return toChangeRequest(pr), nil
}

// AddLabels attaches labels to the pull request. GitHub labels pull
// requests through the issues endpoint.
func (a *API) AddLabels(ctx context.Context, target string, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	number, err := validateIssueNumber(target)
	if err != nil {
		return err
	}
	_, resp, err := a.client.Issues.AddLabelsToIssue(ctx, a.owner, a.repo, number, labels)
	if err != nil {
		return classifyAPIError("add labels", resp, err)
	}
	return nil
}

func toChangeRequest(pr *gh.PullRequest) artifact.ChangeRequest {
	return artifact.ChangeRequest{ID: strconv.Itoa(pr.GetNumber()), URL: pr.GetHTMLURL()}
}

// classifyAPIError maps status codes onto the tracker sentinels. Rate limits
// and 5xx responses are transient; auth failures are not.
func classifyAPIError(op string, resp *gh.Response, err error) error {
	var rle *gh.RateLimitError
	var are *gh.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &are) {
		return fmt.Errorf("%s: %w: %v", op, issue.ErrTransport, err)
	}
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("%s: %w: %v", op, issue.ErrTransport, err)
	}
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", op, issue.ErrNotFound, err)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %v", op, issue.ErrPermissionDenied, err)
	case code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%s: %w: %v", op, issue.ErrTransport, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
