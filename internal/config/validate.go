package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	trackerBackends = map[string]bool{"gh": true, "api": true}
	vcsBackends     = map[string]bool{"cli": true, "gogit": true}
	workerBackends  = map[string]bool{"anthropic": true, "claude-cli": true}
)

// Validate checks a Config for structural and semantic errors. It returns
// every error found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Repo != "" {
		owner, name, ok := strings.Cut(cfg.Repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			add("repo", "must be owner/name, got %q", cfg.Repo)
		}
	}
	if cfg.Tracker.Backend == "api" && cfg.Repo == "" {
		add("repo", "is required for the api tracker")
	}
	if strings.HasPrefix(cfg.BaseBranch, "-") {
		add("base_branch", "must not start with '-'")
	}

	if !trackerBackends[cfg.Tracker.Backend] {
		add("tracker.backend", "unrecognized backend %q (want gh or api)", cfg.Tracker.Backend)
	}
	if !vcsBackends[cfg.VCS.Backend] {
		add("vcs.backend", "unrecognized backend %q (want cli or gogit)", cfg.VCS.Backend)
	}
	if !workerBackends[cfg.Worker.Backend] {
		add("worker.backend", "unrecognized backend %q (want anthropic or claude-cli)", cfg.Worker.Backend)
	}
	if cfg.Worker.MaxParallel < 1 {
		add("worker.max_parallel", "must be at least 1")
	}

	for _, d := range []struct {
		field, value string
		optional     bool
	}{
		{"worker.timeout", cfg.Worker.Timeout, false},
		{"verify.timeout", cfg.Verify.Timeout, false},
		{"fetch.base_delay", cfg.Fetch.BaseDelay, false},
		{"clarify.timeout", cfg.Clarify.Timeout, true},
	} {
		if d.value == "" && d.optional {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			add(d.field, "invalid duration %q", d.value)
			continue
		}
		if v <= 0 {
			add(d.field, "must be positive")
		}
	}

	for _, l := range []struct {
		field string
		value int
	}{
		{"limits.verify_attempts", cfg.Limits.VerifyAttempts},
		{"limits.review_cycles", cfg.Limits.ReviewCycles},
		{"limits.worker_retries", cfg.Limits.WorkerRetries},
		{"limits.plan_revisions", cfg.Limits.PlanRevisions},
		{"fetch.max_attempts", cfg.Fetch.MaxAttempts},
	} {
		if l.value < 0 {
			add(l.field, "must not be negative")
		}
	}
	if cfg.Limits.VerifyAttempts == 0 {
		add("limits.verify_attempts", "must be at least 1")
	}

	for i, l := range cfg.Labels.Extra {
		if strings.TrimSpace(l) == "" {
			add(fmt.Sprintf("labels.extra[%d]", i), "must not be empty")
		}
	}
	if u := cfg.Audit.DatabaseURL; u != "" && !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		add("audit.database_url", "must be a postgres:// url")
	}

	return errs
}
