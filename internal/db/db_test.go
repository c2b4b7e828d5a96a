package db

import (
	"context"
	"os"
	"testing"
	"time"
)

// testDB connects to the database named by ISSUESMITH_TEST_DATABASE_URL and
// resets it. Tests are skipped when the variable is unset.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("ISSUESMITH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ISSUESMITH_TEST_DATABASE_URL not set")
	}
	d, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Reset(context.Background()); err != nil {
		t.Fatalf("reset test db: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestOpen_InvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	if err := d.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var version int
	if err := d.pool.QueryRow(ctx, "SELECT max(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestLogRunEvent_GetRunHistory(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	events := []RunEvent{
		{RunID: "r1", Issue: "42", Event: "transition", Phase: "FETCHED", Attempt: 1},
		{RunID: "r1", Issue: "42", Event: "transition", Phase: "ANALYZED", Attempt: 1, Detail: "2 open questions"},
		{RunID: "r2", Issue: "7", Event: "aborted"},
	}
	for _, e := range events {
		if err := d.LogRunEvent(ctx, e); err != nil {
			t.Fatalf("log event: %v", err)
		}
	}

	got, err := d.GetRunHistory(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Phase != "ANALYZED" || got[0].Detail != "2 open questions" {
		t.Errorf("newest event = %+v", got[0])
	}

	other, err := d.GetRunHistory(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 || other[0].Phase != "" || other[0].Attempt != 0 {
		t.Errorf("null columns not coalesced: %+v", other)
	}
}

func TestLogVerification_GetVerifications(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	runs := []VerificationRun{
		{RunID: "r1", Issue: "42", Attempt: 1, Toolchain: "go", TestsRun: true, TestsPassed: "fail", LintPassed: "pass", Duration: 3 * time.Second},
		{RunID: "r1", Issue: "42", Attempt: 2, Toolchain: "go", TestsRun: true, TestsPassed: "unknown", LintPassed: "unknown", TimedOut: true, Duration: 10 * time.Minute},
	}
	for _, v := range runs {
		if err := d.LogVerification(ctx, v); err != nil {
			t.Fatalf("log verification: %v", err)
		}
	}

	got, err := d.GetVerifications(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("runs = %d, want 2", len(got))
	}
	if got[0].Attempt != 1 || got[0].Duration != 3*time.Second {
		t.Errorf("first = %+v", got[0])
	}
	if !got[1].TimedOut || got[1].TestsPassed != "unknown" {
		t.Errorf("second = %+v", got[1])
	}
}
