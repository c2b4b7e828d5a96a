package db

import (
	"context"
	"fmt"
	"time"
)

// RunEvent is a row of run_events.
type RunEvent struct {
	ID        int64
	RunID     string
	Issue     string
	Event     string
	Phase     string
	Attempt   int
	Detail    string
	Timestamp time.Time
}

// VerificationRun is a row of verification_runs. TestsPassed and LintPassed
// hold "unknown", "pass" or "fail".
type VerificationRun struct {
	ID          int64
	RunID       string
	Issue       string
	Attempt     int
	Toolchain   string
	TestsRun    bool
	TestsPassed string
	LintPassed  string
	TimedOut    bool
	Duration    time.Duration
	Timestamp   time.Time
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(ctx context.Context, e RunEvent) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO run_events (run_id, issue, event, phase, attempt, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.RunID, e.Issue, e.Event, nullable(e.Phase), e.Attempt, nullable(e.Detail),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// GetRunHistory returns the events of an issue, newest first.
func (d *DB) GetRunHistory(ctx context.Context, issue string) ([]RunEvent, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, run_id, issue, event, COALESCE(phase, ''), COALESCE(attempt, 0), COALESCE(detail, ''), ts
		 FROM run_events WHERE issue = $1 ORDER BY ts DESC, id DESC`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("get run history: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Issue, &e.Event, &e.Phase, &e.Attempt, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogVerification inserts a verification attempt.
func (d *DB) LogVerification(ctx context.Context, v VerificationRun) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO verification_runs (run_id, issue, attempt, toolchain, tests_run, tests_passed, lint_passed, timed_out, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.RunID, v.Issue, v.Attempt, nullable(v.Toolchain), v.TestsRun, v.TestsPassed, v.LintPassed, v.TimedOut, v.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("log verification: %w", err)
	}
	return nil
}

// GetVerifications returns the verification attempts of an issue in order.
func (d *DB) GetVerifications(ctx context.Context, issue string) ([]VerificationRun, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, run_id, issue, attempt, COALESCE(toolchain, ''), tests_run, tests_passed, lint_passed, timed_out, COALESCE(duration_ms, 0), ts
		 FROM verification_runs WHERE issue = $1 ORDER BY id`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("get verifications: %w", err)
	}
	defer rows.Close()

	var runs []VerificationRun
	for rows.Next() {
		var v VerificationRun
		var ms int64
		if err := rows.Scan(&v.ID, &v.RunID, &v.Issue, &v.Attempt, &v.Toolchain, &v.TestsRun, &v.TestsPassed, &v.LintPassed, &v.TimedOut, &ms, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		v.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, v)
	}
	return runs, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
