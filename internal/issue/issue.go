// Package issue fetches tracked work items and normalizes them into
// immutable snapshots.
package issue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the tracker has no issue with the requested id.
	ErrNotFound = errors.New("issue not found")
	// ErrTransport marks a transient failure talking to the tracker.
	ErrTransport = errors.New("tracker transport error")
	// ErrPermissionDenied marks a tracker write the credentials may not perform.
	ErrPermissionDenied = errors.New("tracker permission denied")
)

// Comment is one entry of an issue's discussion thread.
type Comment struct {
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RawIssue is what a tracker returns before normalization.
type RawIssue struct {
	ID       string
	Title    string
	Body     string
	Labels   []string
	Comments []Comment
}

// Snapshot is the normalized, read-only view of an issue used by every
// downstream stage.
type Snapshot struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Labels   []string  `json:"labels"`
	Comments []Comment `json:"comments"`
}

// HasLabel reports whether the snapshot carries label (case-insensitive).
func (s *Snapshot) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if equalFold(l, label) {
			return true
		}
	}
	return false
}

// Source is the read side of the issue tracker.
type Source interface {
	GetIssue(ctx context.Context, id string) (*RawIssue, error)
}
