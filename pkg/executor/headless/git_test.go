package headless

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestGitRepo creates a git repository with one commit in a temp dir.
func setupTestGitRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	testDir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = testDir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
		}
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	run("config", "commit.gpgsign", "false")

	readmePath := filepath.Join(testDir, "README.md")
	if err := os.WriteFile(readmePath, []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to write README: %v", err)
	}
	run("add", "README.md")
	run("commit", "-m", "Initial commit")

	return testDir
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s failed: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out))
}

func TestGitManager_StagedOutside(t *testing.T) {
	testDir := setupTestGitRepo(t)
	gm := NewGitManager(testDir, GitConfig{})
	ctx := context.Background()

	foreign, err := gm.StagedOutside(ctx, nil)
	if err != nil {
		t.Fatalf("StagedOutside() error = %v", err)
	}
	if len(foreign) != 0 {
		t.Errorf("expected nothing staged, got %v", foreign)
	}

	for _, name := range []string{"AUTO-RUN.md", "unrelated.go"} {
		if err := os.WriteFile(filepath.Join(testDir, name), []byte(name), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	gitOutput(t, testDir, "add", "AUTO-RUN.md", "unrelated.go")

	foreign, err = gm.StagedOutside(ctx, []string{"AUTO-RUN.md"})
	if err != nil {
		t.Fatalf("StagedOutside() error = %v", err)
	}
	if len(foreign) != 1 || foreign[0] != "unrelated.go" {
		t.Errorf("StagedOutside() = %v, want [unrelated.go]", foreign)
	}
}

func TestGitManager_GetCurrentBranch(t *testing.T) {
	testDir := setupTestGitRepo(t)
	gm := NewGitManager(testDir, GitConfig{})

	branch, err := gm.GetCurrentBranch(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBranch() error = %v", err)
	}
	if branch == "" {
		t.Error("expected non-empty branch name")
	}
}

func TestGitManager_StageAndCommit(t *testing.T) {
	testDir := setupTestGitRepo(t)
	gm := NewGitManager(testDir, GitConfig{
		AuthorName:  "GFD Bot",
		AuthorEmail: "gfd@example.com",
	})
	ctx := context.Background()

	featureDir := filepath.Join(testDir, "docs", "features", "checkout-flow")
	if err := os.MkdirAll(featureDir, 0755); err != nil {
		t.Fatalf("failed to create feature dir: %v", err)
	}
	for _, name := range []string{"01-PLAN.md", "AUTO-RUN.md", "unrelated.md"} {
		if err := os.WriteFile(filepath.Join(featureDir, name), []byte(name), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	paths := []string{
		"docs/features/checkout-flow/AUTO-RUN.md",
		"docs/features/checkout-flow/01-PLAN.md",
	}
	if err := gm.Stage(ctx, paths); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	result, err := gm.Commit(ctx, "feat(checkout-flow): auto-plan complete (1 plan(s))", paths)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if result.Hash != gitOutput(t, testDir, "rev-parse", "HEAD") {
		t.Errorf("Hash = %q, want HEAD", result.Hash)
	}
	if result.Pushed {
		t.Error("commit should not have been pushed")
	}

	if got := gitOutput(t, testDir, "log", "-1", "--format=%an <%ae>"); got != "GFD Bot <gfd@example.com>" {
		t.Errorf("author = %q", got)
	}
	if got := gitOutput(t, testDir, "log", "-1", "--format=%s"); got != "feat(checkout-flow): auto-plan complete (1 plan(s))" {
		t.Errorf("subject = %q", got)
	}

	// Only the named paths are committed.
	status := gitOutput(t, testDir, "status", "--porcelain")
	if !strings.Contains(status, "unrelated.md") {
		t.Errorf("unrelated file should remain untracked, status:\n%s", status)
	}
	if strings.Contains(status, "01-PLAN.md") {
		t.Errorf("plan should be committed, status:\n%s", status)
	}
}

func TestGitManager_StageNothing(t *testing.T) {
	gm := NewGitManager(t.TempDir(), GitConfig{})
	if err := gm.Stage(context.Background(), nil); err == nil {
		t.Error("expected error staging no paths")
	}
}

func TestGitManager_StageOptionLikePath(t *testing.T) {
	testDir := setupTestGitRepo(t)
	gm := NewGitManager(testDir, GitConfig{})

	// "--" keeps git from reading the path as a flag.
	if err := os.WriteFile(filepath.Join(testDir, "--all"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(testDir, "other.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := gm.Stage(context.Background(), []string{"--all"}); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	staged := gitOutput(t, testDir, "diff", "--cached", "--name-only")
	if staged != "--all" {
		t.Errorf("staged = %q, want only --all", staged)
	}
}

func TestGitManager_CommitFailure(t *testing.T) {
	testDir := setupTestGitRepo(t)
	gm := NewGitManager(testDir, GitConfig{})

	result, err := gm.Commit(context.Background(), "nothing changed", []string{"README.md"})
	if err == nil {
		t.Fatal("expected commit of an unchanged path to fail")
	}
	if result.ExitCode == 0 {
		t.Error("expected non-zero exit code")
	}

	if _, err := gm.Commit(context.Background(), "no paths", nil); err == nil {
		t.Error("expected error committing no paths")
	}
}

func TestPublish(t *testing.T) {
	testDir := setupTestGitRepo(t)
	gm := NewGitManager(testDir, GitConfig{AutoCommit: true})
	ctx := context.Background()

	featureDir := filepath.Join(testDir, "docs", "features", "checkout-flow")
	if err := os.MkdirAll(featureDir, 0755); err != nil {
		t.Fatalf("failed to create feature dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(featureDir, "AUTO-RUN.md"), []byte("# Auto Run\n"), 0644); err != nil {
		t.Fatalf("failed to write audit: %v", err)
	}

	outcome := &WorkflowOutcome{
		FilesToCommit: []string{"docs/features/checkout-flow/AUTO-RUN.md"},
		CommitMessage: "docs(checkout-flow): auto-plan aborted: no completion signal found",
	}
	result, err := Publish(ctx, gm, outcome)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.Hash == "" {
		t.Error("expected commit hash")
	}

	if _, err := Publish(ctx, gm, &WorkflowOutcome{}); !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("Publish() error = %v, want ErrNothingToCommit", err)
	}

	// Changes staged before the run stay staged and out of the commit.
	if err := os.WriteFile(filepath.Join(testDir, "unrelated.go"), []byte("package x\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	gitOutput(t, testDir, "add", "unrelated.go")
	if err := os.WriteFile(filepath.Join(featureDir, "AUTO-RUN.md"), []byte("# Auto Run\n\nsecond run\n"), 0644); err != nil {
		t.Fatalf("failed to write audit: %v", err)
	}
	if _, err := Publish(ctx, gm, outcome); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := gitOutput(t, testDir, "show", "--name-only", "--format=", "HEAD"); got != "docs/features/checkout-flow/AUTO-RUN.md" {
		t.Errorf("committed files = %q, want only the audit report", got)
	}
	if got := gitOutput(t, testDir, "diff", "--cached", "--name-only"); got != "unrelated.go" {
		t.Errorf("staged after publish = %q, want unrelated.go", got)
	}

	outcome.FilesToCommit = []string{"docs/features/checkout-flow/missing.md"}
	if _, err := Publish(ctx, gm, outcome); err == nil || !strings.Contains(err.Error(), "commit failure") {
		t.Errorf("Publish() error = %v, want commit failure", err)
	}
}
