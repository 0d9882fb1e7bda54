// Package main provides gfd-headless, the unattended runner for feature
// research and planning. It launches the coding agent for one feature,
// checks what the agent actually wrote, and commits the result together with
// an AUTO-RUN.md audit report. Output on stdout is key=value lines (or JSON
// with --json) so CI scripts and other tools can consume it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/gfd/pkg/config"
	"github.com/entrhq/gfd/pkg/executor/headless"
)

const version = "0.1.0"

// options holds command-line flags shared by the workflow commands. Zero
// values mean "use the configured value".
type options struct {
	workspace  string
	configPath string
	agentsDir  string
	model      string
	maxTurns   int
	timeout    time.Duration
	verbosity  string
	noCommit   bool
	json       bool
}

// exitError carries a process exit code without an extra error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "gfd-headless",
		Short: "Run feature research and planning without a human present",
		Long: `gfd-headless launches the coding agent in print mode for one feature,
validates the artifacts it produced, updates FEATURE.md and commits the
result with an AUTO-RUN.md audit report.

Failed runs never leave partial artifacts behind. The audit report is
written and committed either way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.workspace, "workspace", "w", ".", "repository root")
	flags.StringVar(&opts.configPath, "config", "", "runner settings file (default <workspace>/"+config.RunnerConfigFile+")")
	flags.StringVar(&opts.agentsDir, "agents-dir", "", "directory holding agent definitions (default $GFD_AGENTS_DIR or ~/.claude/agents)")
	flags.StringVar(&opts.model, "model", "", "model to run, overriding the configured profile")
	flags.IntVar(&opts.maxTurns, "max-turns", 0, "agent turn budget")
	flags.DurationVar(&opts.timeout, "timeout", 0, "wall-clock limit for the agent run")
	flags.StringVar(&opts.verbosity, "verbosity", "", "console verbosity: quiet, normal, verbose or debug")
	flags.BoolVar(&opts.noCommit, "no-commit", false, "write artifacts and the audit report but do not commit")
	flags.BoolVar(&opts.json, "json", false, "print the outcome as JSON instead of key=value lines")

	root.AddCommand(
		newWorkflowCmd(headless.KindPlan, opts, stdout, stderr),
		newWorkflowCmd(headless.KindResearch, opts, stdout, stderr),
		newRunCmd(opts, stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func newWorkflowCmd(kind headless.WorkflowKind, opts *options, stdout, stderr io.Writer) *cobra.Command {
	short := "Research a feature and write RESEARCH.md"
	if kind == headless.KindPlan {
		short = "Plan a feature and write NN-PLAN.md files"
	}

	return &cobra.Command{
		Use:   kind.Command() + " <slug>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), kind, args[0], opts, stdout, stderr)
		},
	}
}

// newRunCmd takes the workflow kind as an argument, for callers that
// dispatch on it.
func newRunCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run <research|plan> <slug>",
		Short: "Run the named workflow for a feature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := headless.ParseWorkflowKind(args[0])
			if err != nil {
				return err
			}
			return runWorkflow(cmd.Context(), kind, args[1], opts, stdout, stderr)
		},
	}
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "gfd-headless v%s\n", version)
		},
	}
}
