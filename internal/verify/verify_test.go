package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// mockCmd records calls and returns configured results.
type mockCmd struct {
	calls   []mockCall
	results []mockResult
	callIdx int
}

type mockCall struct {
	Dir     string
	Command string
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Block    bool
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command})
	if m.callIdx >= len(m.results) {
		return "", "", 0, nil
	}
	r := m.results[m.callIdx]
	m.callIdx++
	if r.Block {
		<-ctx.Done()
		return r.Stdout, "signal: killed", -1, nil
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetect_Priority(t *testing.T) {
	tests := []struct {
		files []string
		want  string
	}{
		{[]string{"Makefile", "go.mod", "package.json"}, "go"},
		{[]string{"package.json", "Cargo.toml"}, "cargo"},
		{[]string{"setup.py", "Makefile"}, "python"},
		{[]string{"build.gradle.kts"}, "gradle"},
		{[]string{"Makefile"}, "make"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tt.files...)
			tc, ok := Detect(dir)
			if !ok || tc.Name != tt.want {
				t.Errorf("Detect(%v) = %q, %v; want %q", tt.files, tc.Name, ok, tt.want)
			}
		})
	}
}

func TestDetect_IgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "go.mod"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, ok := Detect(dir); ok {
		t.Error("directory named go.mod detected as marker")
	}
}

func TestVerify_NoMarker(t *testing.T) {
	mock := &mockCmd{}
	res, err := NewRunner(mock).Verify(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TestsRun || res.TestsPassed != Unknown || !res.Passed() {
		t.Errorf("result = %+v, want not run and not failed", res)
	}
	if len(mock.calls) != 0 {
		t.Errorf("calls = %v, want none", mock.calls)
	}
}

func TestVerify_PassAndFail(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	mock := &mockCmd{results: []mockResult{
		{Stdout: "ok  \tpkg\t0.1s", ExitCode: 0},
		{Stderr: "vet: unreachable code", ExitCode: 1},
	}}

	res, err := NewRunner(mock).Verify(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TestsPassed != Pass || res.LintPassed != Fail || !res.Failed() {
		t.Errorf("result = %+v", res)
	}
	if len(mock.calls) != 2 || mock.calls[0].Command != "go test ./..." || mock.calls[1].Dir != dir {
		t.Errorf("calls = %+v", mock.calls)
	}
	if !strings.Contains(res.RawOutput, "vet: unreachable code") || !strings.Contains(res.RawOutput, "[exit 1]") {
		t.Errorf("RawOutput = %q", res.RawOutput)
	}
}

func TestVerify_Overrides(t *testing.T) {
	mock := &mockCmd{}
	res, err := NewRunner(mock, WithCommands(Commands{Test: "./run-tests.sh"})).Verify(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !res.TestsRun || res.Toolchain != "custom" || res.TestsPassed != Pass {
		t.Errorf("result = %+v", res)
	}
	if len(mock.calls) != 1 || mock.calls[0].Command != "./run-tests.sh" {
		t.Errorf("calls = %+v", mock.calls)
	}
}

func TestVerify_TimeoutIsUnknownNotPass(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	mock := &mockCmd{results: []mockResult{{Block: true, Stdout: "=== RUN TestSlow"}}}

	res, err := NewRunner(mock, WithTimeout(20*time.Millisecond)).Verify(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut || res.TestsPassed != Unknown || res.Passed() {
		t.Errorf("result = %+v, want timed out and unknown", res)
	}
	if !strings.Contains(res.RawOutput, TimeoutMarker(20*time.Millisecond)) {
		t.Errorf("RawOutput missing timeout marker: %q", res.RawOutput)
	}
	if len(mock.calls) != 1 {
		t.Errorf("lint ran after timeout: %+v", mock.calls)
	}
}

func TestVerify_ParentCancel(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &mockCmd{results: []mockResult{{Block: true}}}

	_, err := NewRunner(mock).Verify(ctx, dir)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestVerify_CommandError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")
	mock := &mockCmd{results: []mockResult{{ExitCode: -1, Err: errors.New("exec: sh not found")}}}
	if _, err := NewRunner(mock).Verify(context.Background(), dir); err == nil {
		t.Fatal("expected error")
	}
}

func TestTail(t *testing.T) {
	long := strings.Repeat("x", maxOutputLen) + "END"
	got := tail(long)
	if !strings.HasPrefix(got, "…(truncated)") || !strings.HasSuffix(got, "END") {
		t.Errorf("tail lost the end: %q", got[len(got)-10:])
	}
	if tail("short") != "short" {
		t.Error("short output modified")
	}
}

func TestTail_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; an odd cut lands inside one.
	long := "ok " + strings.Repeat("é", maxOutputLen/2) + "!"
	got := tail(long)
	if !utf8.ValidString(got) {
		t.Errorf("tail split a rune: %q", got[:20])
	}
	if !strings.HasSuffix(got, "é!") {
		t.Errorf("tail lost the end: %q", got[len(got)-10:])
	}
}
