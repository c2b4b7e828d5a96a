package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lucasnoah/issuesmith/internal/config"
	"github.com/lucasnoah/issuesmith/internal/db"
	"github.com/lucasnoah/issuesmith/internal/dispatch"
	"github.com/lucasnoah/issuesmith/internal/github"
	"github.com/lucasnoah/issuesmith/internal/operator"
	"github.com/lucasnoah/issuesmith/internal/orchestrator"
	"github.com/lucasnoah/issuesmith/internal/pipeline"
	"github.com/lucasnoah/issuesmith/internal/vcs"
	"github.com/lucasnoah/issuesmith/internal/verify"
)

// newLogger builds the console logger on stderr. Warnings and errors only,
// unless verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l, nil
}

func newTracker(ctx context.Context, cfg *config.Config) (orchestrator.Tracker, error) {
	if cfg.Tracker.Backend == "api" {
		return github.NewAPI(ctx, os.Getenv(cfg.Tracker.TokenEnv), cfg.Repo)
	}
	return github.NewCLI(&github.ExecRunner{}, cfg.Repo), nil
}

func newVCS(cfg *config.Config) (vcs.VCS, error) {
	if cfg.VCS.Backend == "gogit" {
		opts := []vcs.GoGitOption{
			vcs.WithRemote(cfg.VCS.Remote),
			vcs.WithToken(os.Getenv(cfg.Tracker.TokenEnv)),
		}
		if cfg.VCS.AuthorName != "" {
			opts = append(opts, vcs.WithAuthor(vcs.Signature{Name: cfg.VCS.AuthorName, Email: cfg.VCS.AuthorEmail}))
		}
		return vcs.OpenGoGit(cfg.ProjectRoot, opts...)
	}
	return vcs.NewGitCLI(&vcs.ExecGit{}, cfg.ProjectRoot, cfg.VCS.Remote), nil
}

// newWorker builds the sub-task worker. The API backend cannot edit the
// working tree, so implementation always goes through the claude CLI.
func newWorker(cfg *config.Config) (dispatch.Worker, error) {
	cli := &dispatch.ClaudeCLIWorker{Dir: cfg.ProjectRoot, Model: cfg.Worker.Model}
	if cfg.Worker.Backend != "anthropic" {
		return cli, nil
	}
	api, err := dispatch.NewAnthropicWorker("", cfg.Worker.Model)
	if err != nil {
		return nil, err
	}
	return &dispatch.RoleRouter{
		Default: api,
		ByRole:  map[dispatch.Role]dispatch.Worker{dispatch.Implementer: cli},
	}, nil
}

func newVerifier(cfg *config.Config) *verify.Runner {
	return verify.NewRunner(&verify.ExecRunner{},
		verify.WithTimeout(cfg.VerifyTimeout()),
		verify.WithCommands(verify.Commands{Test: cfg.Verify.TestCommand, Lint: cfg.Verify.LintCommand}),
		verify.WithLogger(logger),
	)
}

func newOperator(answersFile string, accessible bool) (operator.Operator, error) {
	if answersFile == "" {
		return &operator.Terminal{Accessible: accessible}, nil
	}
	s, err := operator.LoadScript(answersFile)
	if err != nil {
		return nil, err
	}
	return operator.NewScripted(s), nil
}

// openAudit connects to the audit database when one is configured. A nil
// DB means auditing is off.
func openAudit(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Audit.DatabaseURL == "" {
		return nil, nil
	}
	d, err := db.Open(ctx, cfg.Audit.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// requireAudit is openAudit for commands that only read the audit log.
func requireAudit(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Audit.DatabaseURL == "" {
		return nil, fmt.Errorf("no audit database configured: set audit.database_url or %s", config.EnvDatabaseURL)
	}
	return openAudit(ctx, cfg)
}

type resolveOptions struct {
	answersFile string
	accessible  bool
}

// newOrchestrator wires every collaborator from cfg. The cleanup function
// releases the audit connection.
func newOrchestrator(ctx context.Context, cfg *config.Config, ro resolveOptions) (*orchestrator.Orchestrator, func(), error) {
	tracker, err := newTracker(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo, err := newVCS(cfg)
	if err != nil {
		return nil, nil, err
	}
	worker, err := newWorker(cfg)
	if err != nil {
		return nil, nil, err
	}
	op, err := newOperator(ro.answersFile, ro.accessible)
	if err != nil {
		return nil, nil, err
	}
	audit, err := openAudit(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	deps := orchestrator.Deps{
		Tracker: tracker,
		VCS:     repo,
		Dispatcher: dispatch.New(worker,
			dispatch.WithTimeout(cfg.WorkerTimeout()),
			dispatch.WithParallel(cfg.Worker.MaxParallel),
			dispatch.WithLogger(logger),
		),
		Verifier: newVerifier(cfg),
		Operator: op,
		Store:    pipeline.NewStore(cfg.StateDir),
	}
	cleanup := func() {}
	if audit != nil {
		deps.Audit = audit
		cleanup = audit.Close
	}

	o := orchestrator.New(deps, orchestrator.Options{
		ProjectRoot: cfg.ProjectRoot,
		BaseBranch:  cfg.BaseBranch,
		Remote:      cfg.VCS.Remote,
		ExtraLabels: cfg.Labels.Extra,
		Limits: orchestrator.Limits{
			VerifyAttempts: cfg.Limits.VerifyAttempts,
			ReviewCycles:   cfg.Limits.ReviewCycles,
			WorkerRetries:  cfg.Limits.WorkerRetries,
			PlanRevisions:  cfg.Limits.PlanRevisions,
		},
		FetchAttempts:  cfg.Fetch.MaxAttempts,
		FetchBaseDelay: cfg.FetchBaseDelay(),
		ClarifyTimeout: cfg.ClarifyTimeout(),
		Logger:         logger,
	})
	return o, cleanup, nil
}
