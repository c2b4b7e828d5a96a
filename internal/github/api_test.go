package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gh "github.com/google/go-github/v57/github"

	"github.com/lucasnoah/issuesmith/internal/artifact"
	"github.com/lucasnoah/issuesmith/internal/issue"
)

func newTestAPI(t *testing.T, mux *http.ServeMux) *API {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	c.BaseURL = base
	a, err := NewAPIWithClient(c, "acme/web")
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAPIGetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/issues/42", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"number": 42, "title": "Fix login timeout bug", "body": "Times out after 5s.", "labels": [{"name": "bug"}]}`)
	})
	mux.HandleFunc("/repos/acme/web/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			io.WriteString(w, `[{"user": {"login": "sam"}, "body": "Still broken.", "created_at": "2024-03-02T10:00:00Z"}]`)
			return
		}
		w.Header().Set("Link", `<`+r.URL.Path+`?page=2>; rel="next"`)
		io.WriteString(w, `[{"user": {"login": "maria"}, "body": "Repro on staging.", "created_at": "2024-03-01T10:00:00Z"}]`)
	})

	raw, err := newTestAPI(t, mux).GetIssue(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.ID != "42" || raw.Title != "Fix login timeout bug" || len(raw.Labels) != 1 {
		t.Errorf("raw = %+v", raw)
	}
	if len(raw.Comments) != 2 || raw.Comments[0].Author != "maria" || raw.Comments[1].Author != "sam" {
		t.Errorf("comments = %+v", raw.Comments)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, issue.ErrNotFound},
		{http.StatusUnauthorized, issue.ErrPermissionDenied},
		{http.StatusForbidden, issue.ErrPermissionDenied},
		{http.StatusBadGateway, issue.ErrTransport},
		{http.StatusServiceUnavailable, issue.ErrTransport},
	}
	for _, tt := range tests {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/web/issues/9", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"message": "nope"}`)
		})
		_, err := newTestAPI(t, mux).GetIssue(context.Background(), "9")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestAPICreateChangeRequestAndLabels(t *testing.T) {
	var created gh.NewPullRequest
	var labels []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if got := r.URL.Query().Get("head"); got != "acme:issue-15/fix-login" {
				t.Errorf("head filter = %q", got)
			}
			io.WriteString(w, `[]`)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"number": 88, "html_url": "https://github.com/acme/web/pull/88"}`)
	})
	mux.HandleFunc("/repos/acme/web/issues/88/labels", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
			t.Error(err)
		}
		io.WriteString(w, `[]`)
	})

	a := newTestAPI(t, mux)
	cr, err := a.CreateChangeRequest(context.Background(), artifact.ChangeRequestDraft{
		Title:      "fix(core): fix login timeout bug",
		Body:       "## Related Issue\n\nCloses #15",
		BaseBranch: "main",
		HeadBranch: "issue-15/fix-login",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cr.ID != "88" || cr.URL != "https://github.com/acme/web/pull/88" {
		t.Errorf("cr = %+v", cr)
	}
	if created.GetBase() != "main" || created.GetHead() != "issue-15/fix-login" {
		t.Errorf("request = %+v", created)
	}

	if err := a.AddLabels(context.Background(), cr.ID, []string{"bug"}); err != nil {
		t.Fatal(err)
	}
	if len(labels) != 1 || labels[0] != "bug" {
		t.Errorf("labels = %v", labels)
	}
}

func TestAPICreateChangeRequest_PermissionDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, `[]`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message": "Resource not accessible by integration"}`)
	})
	_, err := newTestAPI(t, mux).CreateChangeRequest(context.Background(), artifact.ChangeRequestDraft{HeadBranch: "b", BaseBranch: "main"})
	if !errors.Is(err, issue.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestNewAPIWithClient_InvalidRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/web", "acme/", "a/b/c"} {
		if _, err := NewAPIWithClient(gh.NewClient(nil), repo); err == nil {
			t.Errorf("repo %q: expected error", repo)
		}
	}
}
