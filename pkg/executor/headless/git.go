package headless

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// VersionControl is the sink run results are committed to.
type VersionControl interface {
	Stage(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string, paths []string) (CommitResult, error)
}

// CommitResult is the outcome of a commit attempt.
type CommitResult struct {
	ExitCode int    `json:"exit_code"`
	Hash     string `json:"hash,omitempty"`
	Pushed   bool   `json:"pushed,omitempty"`
}

// GitManager implements VersionControl with the git CLI.
type GitManager struct {
	workspaceDir string
	config       GitConfig
}

// NewGitManager creates a new git manager
func NewGitManager(workspaceDir string, config GitConfig) *GitManager {
	return &GitManager{
		workspaceDir: workspaceDir,
		config:       config,
	}
}

// StagedOutside lists staged paths, relative to the workspace, that are not
// in paths. Commit leaves them staged and out of the commit.
func (g *GitManager) StagedOutside(ctx context.Context, paths []string) ([]string, error) {
	output, err := g.execGit(ctx, "diff", "--cached", "--name-only", "--relative", "-z")
	if err != nil {
		return nil, fmt.Errorf("failed to list staged changes: %w", err)
	}

	own := make(map[string]bool, len(paths))
	for _, p := range paths {
		own[p] = true
	}

	var foreign []string
	for _, p := range strings.Split(output, "\x00") {
		if p != "" && !own[p] {
			foreign = append(foreign, p)
		}
	}
	return foreign, nil
}

// GetCurrentBranch returns the current git branch
func (g *GitManager) GetCurrentBranch(ctx context.Context) (string, error) {
	output, err := g.execGit(ctx, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return strings.TrimSpace(output), nil
}

// Stage adds exactly the given paths. Paths are relative to the workspace
// and passed after "--" so none can be read as an option.
func (g *GitManager) Stage(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to stage")
	}

	args := append([]string{"add", "--"}, paths...)
	if _, err := g.execGit(ctx, args...); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	return nil
}

// Commit records exactly the given paths with the configured author and
// returns the new HEAD hash. Other staged changes stay staged. A failed push
// is reported but the commit stands.
func (g *GitManager) Commit(ctx context.Context, message string, paths []string) (CommitResult, error) {
	if len(paths) == 0 {
		return CommitResult{ExitCode: 1}, fmt.Errorf("no paths to commit")
	}

	args := []string{
		"commit",
		"-m", message,
	}

	if g.config.AuthorName != "" && g.config.AuthorEmail != "" {
		args = append(args,
			"--author", fmt.Sprintf("%s <%s>", g.config.AuthorName, g.config.AuthorEmail),
		)
	}
	args = append(args, "--only", "--")
	args = append(args, paths...)

	if _, err := g.execGit(ctx, args...); err != nil {
		return CommitResult{ExitCode: exitCodeOf(err)}, fmt.Errorf("failed to create commit: %w", err)
	}

	hash, err := g.execGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to read commit hash: %w", err)
	}
	result := CommitResult{Hash: strings.TrimSpace(hash)}

	if g.config.AutoPush {
		if err := g.Push(ctx); err != nil {
			return result, fmt.Errorf("failed to auto-push: %w", err)
		}
		result.Pushed = true
	}

	return result, nil
}

// Push pushes the current branch to the configured remote
func (g *GitManager) Push(ctx context.Context) error {
	branch, err := g.GetCurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current branch: %w", err)
	}

	remote := g.config.Remote
	if remote == "" {
		remote = "origin"
	}

	if _, err := g.execGit(ctx, "push", remote, branch); err != nil {
		return fmt.Errorf("failed to push branch '%s': %w", branch, err)
	}

	return nil
}

// execGit executes a git command and returns its output
func (g *GitManager) execGit(ctx context.Context, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	cmd.Dir = g.workspaceDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git command failed: %w\nOutput: %s", err, string(output))
	}

	return string(output), nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
