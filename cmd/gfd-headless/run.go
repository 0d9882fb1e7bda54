package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/entrhq/gfd/pkg/config"
	"github.com/entrhq/gfd/pkg/executor/headless"
	"github.com/entrhq/gfd/pkg/feature"
	"github.com/entrhq/gfd/pkg/logging"
	"github.com/entrhq/gfd/pkg/prompts"
)

// runWorkflow resolves the feature, runs the orchestrator and reports the
// outcome. An aborted run returns an exitError after printing its result.
func runWorkflow(ctx context.Context, kind headless.WorkflowKind, slug string, opts *options, stdout, stderr io.Writer) error {
	workspaceDir, err := filepath.Abs(opts.workspace)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}

	settings, err := config.Load(workspaceDir, opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	runner := settings.Runner
	applyFlags(runner, opts)
	if err := runner.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry, err := feature.NewRegistry(workspaceDir, settings.Project.PathPrefix)
	if err != nil {
		return err
	}
	feat, err := registry.Find(slug)
	if err != nil {
		return err
	}

	agentsDir := opts.agentsDir
	if agentsDir == "" {
		agentsDir = prompts.DefaultAgentsDir()
	}
	prompt, err := prompts.ForFeature(kind, feat, registry.Root(), agentsDir)
	if err != nil {
		return err
	}

	model := opts.model
	if model == "" {
		model = settings.Project.ResolveModel(kind.AgentRole())
	}

	req, err := headless.NewWorkflowRequest(feat.Slug, kind, registry.Root(), feat.Dir, prompt,
		runner.Agent.Capabilities, runner.Agent.MaxTurns, model)
	if err != nil {
		return err
	}

	sessionLog, logErr := logging.NewLogger("gfd-headless")
	defer sessionLog.Close()
	sessionLog.Infof("%s %s: model=%s max_turns=%d config=%q", kind.Command(), feat.Slug, model, runner.Agent.MaxTurns, settings.RunnerPath)

	level := headless.ParseLogLevel(runner.Logging.Verbosity)
	interactive := isTerminal(stderr)
	console := headless.NewLogger(level)
	console.SetOutput(stderr, !interactive)
	if logErr != nil {
		console.Warningf("session log unavailable: %v", logErr)
	}

	console.Header(fmt.Sprintf("gfd-headless %s %s", kind.Command(), feat.Slug))

	progress := newProgress(stderr, interactive && level >= headless.LogLevelNormal, kind.Command()+" "+feat.Slug, console)
	if progress.Interactive() {
		console.SetOutput(progress, false)
	}

	invoker := headless.NewInvoker(runner.Agent,
		headless.WithInvokerLogger(sessionLog),
		headless.WithStdoutTap(progress.Event),
	)
	store := feature.NewStore()
	orchestrator, err := headless.NewOrchestrator(runner, invoker,
		headless.WithMetadataStore(store),
		headless.WithSessionLogger(sessionLog),
		headless.WithConsole(console),
		headless.WithObserver(progress.Transition),
	)
	if err != nil {
		return err
	}

	progress.Start()
	outcome := orchestrator.Run(ctx, req)
	progress.Stop()
	console.SetOutput(stderr, !interactive)
	if status, err := store.Status(feat.MetadataPath()); err == nil && status != feat.Status {
		sessionLog.Infof("feature %s status %s -> %s", feat.Slug, feat.Status, status)
		console.Infof("Feature status: %s -> %s", feat.Status, status)
	}

	var commit *headless.CommitResult
	if runner.Git.AutoCommit && !opts.noCommit {
		// The audit report is committed even after an interrupt.
		publishCtx := context.WithoutCancel(ctx)
		gm := headless.NewGitManager(registry.Root(), runner.Git)
		if foreign, err := gm.StagedOutside(publishCtx, outcome.FilesToCommit); err != nil {
			sessionLog.Warnf("staged check failed: %v", err)
		} else if len(foreign) > 0 {
			console.Warningf("leaving %d staged file(s) out of the commit: %s", len(foreign), strings.Join(foreign, ", "))
		}
		res, err := headless.Publish(publishCtx, gm, outcome)
		if err != nil {
			sessionLog.Errorf("publish failed: %v", err)
			console.Errorf("%v", err)
		} else {
			commit = &res
			console.GitOperation("committed "+res.Hash, outcome.CommitMessage)
		}
	}

	console.Summary(outcome, commit)
	if err := writeOutcome(stdout, outcome, commit, opts.json); err != nil {
		return err
	}

	if !outcome.Succeeded {
		fmt.Fprintln(stderr, outcome.AbortReason)
		return &exitError{code: 1}
	}
	return nil
}

// applyFlags copies non-zero flag values over the loaded settings.
func applyFlags(c *headless.Config, opts *options) {
	if opts.maxTurns > 0 {
		c.Agent.MaxTurns = opts.maxTurns
	}
	if opts.timeout > 0 {
		c.Agent.Timeout = opts.timeout
		c.LeaseStaleAfter = 0
	}
	if opts.verbosity != "" {
		c.Logging.Verbosity = opts.verbosity
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
