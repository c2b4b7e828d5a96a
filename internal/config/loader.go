package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Env overrides.
const (
	EnvDatabaseURL = "ISSUESMITH_DATABASE_URL"
	EnvStateDir    = "ISSUESMITH_STATE_DIR"
)

// Load reads and parses a configuration from the given YAML file path, then
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./issuesmith.yaml,
// ~/.issuesmith/config.yaml. When none exists the defaults are returned.
func LoadDefault() (*Config, error) {
	for _, path := range Candidates() {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := &Config{}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// LoadFrom loads path, or searches the default locations when path is
// empty.
func LoadFrom(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	return LoadDefault()
}

// Candidates lists the config paths LoadDefault searches.
func Candidates() []string {
	candidates := []string{"issuesmith.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".issuesmith", "config.yaml"))
	}
	return candidates
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Audit.DatabaseURL = v
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		cfg.StateDir = v
	}
}

// applyDefaults fills every unset field.
func applyDefaults(cfg *Config) {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = "."
	}
	if cfg.StateDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.StateDir = filepath.Join(home, ".issuesmith")
		} else {
			cfg.StateDir = ".issuesmith"
		}
	}

	if cfg.Tracker.Backend == "" {
		cfg.Tracker.Backend = "gh"
	}
	if cfg.Tracker.TokenEnv == "" {
		cfg.Tracker.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.VCS.Backend == "" {
		cfg.VCS.Backend = "cli"
	}
	if cfg.VCS.Remote == "" {
		cfg.VCS.Remote = "origin"
	}

	if cfg.Worker.Backend == "" {
		cfg.Worker.Backend = "claude-cli"
	}
	if cfg.Worker.Timeout == "" {
		cfg.Worker.Timeout = "5m"
	}
	if cfg.Worker.MaxParallel == 0 {
		cfg.Worker.MaxParallel = 4
	}
	if cfg.Verify.Timeout == "" {
		cfg.Verify.Timeout = "10m"
	}

	if cfg.Limits.VerifyAttempts == 0 {
		cfg.Limits.VerifyAttempts = 3
	}
	if cfg.Limits.ReviewCycles == 0 {
		cfg.Limits.ReviewCycles = 3
	}
	if cfg.Limits.WorkerRetries == 0 {
		cfg.Limits.WorkerRetries = 2
	}
	if cfg.Limits.PlanRevisions == 0 {
		cfg.Limits.PlanRevisions = 2
	}

	if cfg.Fetch.MaxAttempts == 0 {
		cfg.Fetch.MaxAttempts = 3
	}
	if cfg.Fetch.BaseDelay == "" {
		cfg.Fetch.BaseDelay = "500ms"
	}
}
