// Package verify detects and runs a project's test and lint tooling.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Minute

	// maxOutputLen caps the retained output; the tail is kept since
	// failure summaries are usually at the end.
	maxOutputLen = 8000
)

// Tri is a pass/fail signal that may be unknown.
type Tri string

const (
	Unknown Tri = "unknown"
	Pass    Tri = "pass"
	Fail    Tri = "fail"
)

// Result is the outcome of one verification attempt.
type Result struct {
	TestsRun    bool          `json:"tests_run"`
	TestsPassed Tri           `json:"tests_passed"`
	LintPassed  Tri           `json:"lint_passed"`
	TimedOut    bool          `json:"timed_out"`
	RawOutput   string        `json:"raw_output"`
	Toolchain   string        `json:"toolchain,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Failed reports whether tests or lint ran and failed.
func (r Result) Failed() bool {
	return r.TestsPassed == Fail || r.LintPassed == Fail
}

// Passed reports whether everything that ran passed. A result with no
// tooling detected counts as passed.
func (r Result) Passed() bool {
	return !r.TimedOut && !r.Failed()
}

// Commands override the detected toolchain commands.
type Commands struct {
	Test string
	Lint string
}

// Runner runs verification in a project root.
type Runner struct {
	cmd       CommandRunner
	timeout   time.Duration
	overrides Commands
	log       *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the wall-clock budget shared by test and lint.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCommands overrides detected commands. A test override applies even
// when no marker is found.
func WithCommands(c Commands) Option {
	return func(r *Runner) { r.overrides = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a Runner.
func NewRunner(cmd CommandRunner, opts ...Option) *Runner {
	r := &Runner{cmd: cmd, timeout: DefaultTimeout, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TimeoutMarker is the line appended to RawOutput when the budget runs out.
func TimeoutMarker(d time.Duration) string {
	return fmt.Sprintf("[verification timed out after %s]", d)
}

// Verify detects the toolchain in root and runs its test then lint command.
// The error is non-nil only when ctx is cancelled or a command cannot be
// started; failing tests are reported in the Result.
func (r *Runner) Verify(ctx context.Context, root string) (*Result, error) {
	tc, found := Detect(root)
	if r.overrides.Test != "" {
		if !found {
			tc = Toolchain{Name: "custom"}
		}
		tc.TestCommand = r.overrides.Test
		found = true
	}
	if r.overrides.Lint != "" {
		tc.LintCommand = r.overrides.Lint
	}
	if !found {
		r.log.Info("no test tooling detected", zap.String("root", root))
		return &Result{
			TestsPassed: Unknown,
			LintPassed:  Unknown,
			RawOutput:   "no known manifest found; verification skipped",
		}, nil
	}

	res := &Result{TestsRun: true, TestsPassed: Unknown, LintPassed: Unknown, Toolchain: tc.Name}
	bctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	var out strings.Builder

	defer func() {
		res.Duration = time.Since(start)
		res.RawOutput = tail(out.String())
	}()

	steps := []struct {
		command string
		set     func(Tri)
	}{
		{tc.TestCommand, func(t Tri) { res.TestsPassed = t }},
		{tc.LintCommand, func(t Tri) { res.LintPassed = t }},
	}
	for _, step := range steps {
		if step.command == "" {
			continue
		}
		stdout, stderr, code, err := r.cmd.Run(bctx, root, step.command)
		fmt.Fprintf(&out, "$ %s\n%s", step.command, joinOutput(stdout, stderr))

		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(bctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			out.WriteString(TimeoutMarker(r.timeout) + "\n")
			r.log.Warn("verification timed out", zap.String("command", step.command), zap.Duration("timeout", r.timeout))
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("run %q: %w", step.command, err)
		}

		fmt.Fprintf(&out, "[exit %d]\n", code)
		if code == 0 {
			step.set(Pass)
		} else {
			step.set(Fail)
		}
	}

	r.log.Info("verification finished",
		zap.String("toolchain", tc.Name),
		zap.String("tests", string(res.TestsPassed)),
		zap.String("lint", string(res.LintPassed)),
	)
	return res, nil
}

func joinOutput(stdout, stderr string) string {
	s := stdout
	if stderr != "" {
		if s != "" && !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		s += stderr
	}
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

// tail keeps the last maxOutputLen bytes. The timeout marker is always at
// the end, so it survives truncation.
func tail(s string) string {
	if len(s) <= maxOutputLen {
		return s
	}
	i := len(s) - maxOutputLen
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "…(truncated)\n" + s[i:]
}
