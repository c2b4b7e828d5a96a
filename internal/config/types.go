package config

import "time"

// Config is the top-level configuration parsed from issuesmith.yaml.
type Config struct {
	Repo        string        `yaml:"repo"`
	BaseBranch  string        `yaml:"base_branch"`
	ProjectRoot string        `yaml:"project_root"`
	StateDir    string        `yaml:"state_dir"`
	Tracker     TrackerConfig `yaml:"tracker"`
	VCS         VCSConfig     `yaml:"vcs"`
	Worker      WorkerConfig  `yaml:"worker"`
	Verify      VerifyConfig  `yaml:"verify"`
	Limits      Limits        `yaml:"limits"`
	Fetch       FetchConfig   `yaml:"fetch"`
	Labels      LabelsConfig  `yaml:"labels"`
	Audit       AuditConfig   `yaml:"audit"`
	Clarify     ClarifyConfig `yaml:"clarify"`
}

// TrackerConfig selects the issue tracker backend.
type TrackerConfig struct {
	Backend  string `yaml:"backend"` // "gh" or "api"
	TokenEnv string `yaml:"token_env"`
}

// VCSConfig selects the version-control backend.
type VCSConfig struct {
	Backend     string `yaml:"backend"` // "cli" or "gogit"
	Remote      string `yaml:"remote"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// WorkerConfig configures sub-agent workers.
type WorkerConfig struct {
	Backend     string `yaml:"backend"` // "anthropic" or "claude-cli"
	Model       string `yaml:"model"`
	Timeout     string `yaml:"timeout"`
	MaxParallel int    `yaml:"max_parallel"`
}

// VerifyConfig overrides the detected test and lint commands.
type VerifyConfig struct {
	Timeout     string `yaml:"timeout"`
	TestCommand string `yaml:"test_command"`
	LintCommand string `yaml:"lint_command"`
}

// Limits bound every retry loop of a run.
type Limits struct {
	VerifyAttempts int `yaml:"verify_attempts"`
	ReviewCycles   int `yaml:"review_cycles"`
	WorkerRetries  int `yaml:"worker_retries"`
	PlanRevisions  int `yaml:"plan_revisions"`
}

// FetchConfig tunes issue fetch retries.
type FetchConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
}

// LabelsConfig adds labels to every change request.
type LabelsConfig struct {
	Extra []string `yaml:"extra"`
}

// AuditConfig enables the Postgres audit log.
type AuditConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// ClarifyConfig tunes the clarification gate. An empty timeout waits
// forever.
type ClarifyConfig struct {
	Timeout string `yaml:"timeout"`
}

// WorkerTimeout returns the per-task worker timeout.
func (c *Config) WorkerTimeout() time.Duration { return parseDuration(c.Worker.Timeout) }

// VerifyTimeout returns the verification budget.
func (c *Config) VerifyTimeout() time.Duration { return parseDuration(c.Verify.Timeout) }

// FetchBaseDelay returns the first retry delay of issue fetches.
func (c *Config) FetchBaseDelay() time.Duration { return parseDuration(c.Fetch.BaseDelay) }

// ClarifyTimeout returns the per-question timeout, zero when unset.
func (c *Config) ClarifyTimeout() time.Duration { return parseDuration(c.Clarify.Timeout) }

// parseDuration returns zero for empty or invalid values; Validate reports
// the invalid ones.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
