package issue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type mockSource struct {
	calls   int
	results []mockResult
}

type mockResult struct {
	issue *RawIssue
	err   error
}

func (m *mockSource) GetIssue(ctx context.Context, id string) (*RawIssue, error) {
	m.calls++
	if m.calls > len(m.results) {
		return nil, fmt.Errorf("unexpected call %d: %w", m.calls, ErrTransport)
	}
	r := m.results[m.calls-1]
	return r.issue, r.err
}

func fastFetcher(src Source) *Fetcher {
	return NewFetcher(src, WithBaseDelay(time.Millisecond))
}

func TestFetch_Success(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &mockSource{results: []mockResult{{issue: &RawIssue{
		ID:     "42",
		Title:  "  Add email validation ",
		Body:   "body",
		Labels: []string{"feature", "ui", "Feature", ""},
		Comments: []Comment{
			{Body: "third", CreatedAt: t0.Add(2 * time.Hour)},
			{Body: "first", CreatedAt: t0},
			{Body: "second", CreatedAt: t0.Add(time.Hour)},
		},
	}}}}

	snap, err := fastFetcher(src).Fetch(context.Background(), "42")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1", src.calls)
	}
	if snap.Title != "Add email validation" {
		t.Errorf("Title = %q", snap.Title)
	}
	if len(snap.Labels) != 2 || snap.Labels[0] != "feature" || snap.Labels[1] != "ui" {
		t.Errorf("Labels = %v, want [feature ui]", snap.Labels)
	}
	for i, want := range []string{"first", "second", "third"} {
		if snap.Comments[i].Body != want {
			t.Errorf("Comments[%d] = %q, want %q", i, snap.Comments[i].Body, want)
		}
	}
}

func TestFetch_RetriesTransportErrors(t *testing.T) {
	src := &mockSource{results: []mockResult{
		{err: fmt.Errorf("dial tcp: %w", ErrTransport)},
		{err: fmt.Errorf("502: %w", ErrTransport)},
		{issue: &RawIssue{ID: "9", Title: "ok"}},
	}}

	snap, err := fastFetcher(src).Fetch(context.Background(), "9")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
	if snap.ID != "9" {
		t.Errorf("ID = %q, want 9", snap.ID)
	}
}

func TestFetch_GivesUpAfterThreeAttempts(t *testing.T) {
	src := &mockSource{results: []mockResult{
		{err: ErrTransport},
		{err: ErrTransport},
		{err: ErrTransport},
		{issue: &RawIssue{ID: "1"}},
	}}

	_, err := fastFetcher(src).Fetch(context.Background(), "1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want exactly 3", src.calls)
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	src := &mockSource{results: []mockResult{
		{err: fmt.Errorf("issue 5: %w", ErrNotFound)},
		{issue: &RawIssue{ID: "5"}},
	}}

	_, err := fastFetcher(src).Fetch(context.Background(), "5")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1", src.calls)
	}
}

func TestFetch_EmptyID(t *testing.T) {
	src := &mockSource{}
	if _, err := fastFetcher(src).Fetch(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty id")
	}
	if src.calls != 0 {
		t.Errorf("calls = %d, want 0", src.calls)
	}
}

func TestSnapshot_HasLabel(t *testing.T) {
	s := &Snapshot{Labels: []string{"Bug", "ui"}}
	if !s.HasLabel("bug") {
		t.Error("HasLabel(bug) = false, want true")
	}
	if s.HasLabel("docs") {
		t.Error("HasLabel(docs) = true, want false")
	}
}
