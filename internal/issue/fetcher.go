package issue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// Fetcher retrieves issues from a Source, retrying transport failures with
// exponential backoff.
type Fetcher struct {
	src         Source
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithMaxAttempts sets the total number of attempts (including the first).
func WithMaxAttempts(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry; later delays double.
func WithBaseDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.baseDelay = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher with 3 attempts and a 500ms base delay.
func NewFetcher(src Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		src:         src,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// newBackOff returns a fresh, jitter-free exponential policy. BackOff values
// are stateful and must not be shared between fetches.
func (f *Fetcher) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = f.baseDelay << uint(f.maxAttempts)
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.maxAttempts-1)), ctx)
}

// Fetch retrieves and normalizes the issue. Only ErrTransport failures are
// retried; ErrNotFound and anything else fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, id string) (*Snapshot, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("invalid issue id: must not be empty")
	}

	var raw *RawIssue
	attempts := 0
	op := func() error {
		attempts++
		r, err := f.src.GetIssue(ctx, id)
		if err == nil {
			raw = r
			return nil
		}
		if errors.Is(err, ErrTransport) {
			f.logger.Warn("issue fetch failed, will retry",
				zap.String("issue", id),
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", f.maxAttempts),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, f.newBackOff(ctx)); err != nil {
		return nil, fmt.Errorf("fetch issue %s (%d attempt(s)): %w", id, attempts, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("fetch issue %s: tracker returned no issue: %w", id, ErrNotFound)
	}

	f.logger.Debug("issue fetched", zap.String("issue", id), zap.Int("attempts", attempts))
	return Normalize(raw, id), nil
}

// Normalize builds a Snapshot from a tracker response: labels become a
// sorted set and comments are ordered chronologically.
func Normalize(raw *RawIssue, id string) *Snapshot {
	s := &Snapshot{
		ID:       raw.ID,
		Title:    strings.TrimSpace(raw.Title),
		Body:     raw.Body,
		Labels:   []string{},
		Comments: []Comment{},
	}
	if s.ID == "" {
		s.ID = id
	}

	seen := make(map[string]bool)
	for _, l := range raw.Labels {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		s.Labels = append(s.Labels, l)
	}
	sort.Strings(s.Labels)

	s.Comments = append(s.Comments, raw.Comments...)
	sort.SliceStable(s.Comments, func(i, j int) bool {
		return s.Comments[i].CreatedAt.Before(s.Comments[j].CreatedAt)
	})
	return s
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
