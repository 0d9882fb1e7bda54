package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/gfd/pkg/feature"
	"github.com/entrhq/gfd/pkg/logging"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "gfd-logs")
	if err == nil {
		os.Setenv(logging.LogDirEnv, dir)
	}
	code := m.Run()
	if dir != "" {
		os.RemoveAll(dir)
	}
	os.Exit(code)
}

// TestHelperAgent stands in for the coding agent when the test binary is
// re-executed with GO_WANT_HELPER_PROCESS=1.
func TestHelperAgent(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)

	dir := os.Getenv("HELPER_FEATURE_DIR")
	switch os.Getenv("HELPER_SCENARIO") {
	case "plan":
		_ = os.WriteFile(filepath.Join(dir, "01-PLAN.md"), []byte("# Plan 1\n"), 0o644)
		fmt.Println(`{"type":"result","subtype":"success","result":"done\n## PLANNING COMPLETE","total_cost_usd":0.12,"usage":{"input_tokens":1000,"output_tokens":200}}`)
	case "abort":
		_ = os.WriteFile(filepath.Join(dir, "01-PLAN.md"), []byte("# Half a plan\n"), 0o644)
		fmt.Println(`{"type":"result","subtype":"success","result":"## ABORT: which payment provider?"}`)
	}
	os.Exit(0)
}

type cliFixture struct {
	root       string
	featureDir string
}

func newCLIFixture(t *testing.T, scenario string, autoCommit bool) *cliFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("helper agent relies on unix process groups")
	}

	root := t.TempDir()
	rel := filepath.Join("docs", "features", "checkout-flow")
	featureDir := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(featureDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(featureDir, "FEATURE.md"),
		[]byte("---\nname: Checkout Flow\nstatus: researched\n---\n\n# Checkout Flow\n"), 0o644))

	runnerConfig := fmt.Sprintf(`agent:
  binary: %q
  base_args: ["-test.run=TestHelperAgent", "--"]
  env:
    - GO_WANT_HELPER_PROCESS=1
    - HELPER_SCENARIO=%s
    - HELPER_FEATURE_DIR=%s
  timeout: 30s
git:
  auto_commit: %v
  author_name: GFD Bot
  author_email: gfd@example.com
`, os.Args[0], scenario, filepath.ToSlash(rel), autoCommit)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gfd-headless.yaml"), []byte(runnerConfig), 0o644))

	return &cliFixture{root: root, featureDir: featureDir}
}

func (f *cliFixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append(args, "--workspace", f.root, "--agents-dir", t.TempDir())
	code := execute(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	code := execute(context.Background(), []string{"version"}, &stdout, io.Discard)
	assert.Equal(t, 0, code)
	assert.Equal(t, "gfd-headless v"+version+"\n", stdout.String())
}

func TestWorkflowCommand_RequiresSlug(t *testing.T) {
	var stderr bytes.Buffer
	code := execute(context.Background(), []string{"auto-plan"}, io.Discard, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "accepts 1 arg(s)")
}

func TestWorkflowCommand_UnknownFeature(t *testing.T) {
	f := newCLIFixture(t, "plan", false)

	code, stdout, stderr := f.run(t, "auto-research", "no-such-feature")

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, feature.ErrFeatureNotFound.Error())
}

func TestWorkflowCommand_InvalidSlug(t *testing.T) {
	f := newCLIFixture(t, "plan", false)

	code, _, stderr := f.run(t, "auto-plan", "../escape")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")
}

func TestAutoPlan_Success(t *testing.T) {
	f := newCLIFixture(t, "plan", false)

	code, stdout, stderr := f.run(t, "auto-plan", "checkout-flow", "--max-turns", "12")

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "result=success\nplan_count=1\nplan=01-PLAN.md\n")
	assert.Contains(t, stdout, "audit=")
	assert.Contains(t, stdout, filepath.Join("docs", "features", "checkout-flow", "AUTO-RUN.md")+"\n")
	assert.Contains(t, stdout, "duration_seconds=")
	assert.NotContains(t, stdout, "commit=")
	assert.Contains(t, stderr, "Feature status: researched -> planned")

	assert.FileExists(t, filepath.Join(f.featureDir, "01-PLAN.md"))
	status, err := feature.NewStore().Status(filepath.Join(f.featureDir, "FEATURE.md"))
	require.NoError(t, err)
	assert.Equal(t, "planned", status)
}

func TestRunCommand(t *testing.T) {
	f := newCLIFixture(t, "plan", false)

	code, stdout, stderr := f.run(t, "run", "plan", "checkout-flow")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "result=success\nplan_count=1\n")

	code, _, stderr = f.run(t, "run", "deploy", "checkout-flow")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown workflow kind "deploy"`)
}

func TestAutoPlan_Aborted(t *testing.T) {
	f := newCLIFixture(t, "abort", false)

	code, stdout, stderr := f.run(t, "auto-plan", "checkout-flow")

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "result=aborted\nabort_reason=ambiguous decision point: which payment provider?\n")
	assert.Contains(t, stderr, "ambiguous decision point: which payment provider?")
	assert.NoFileExists(t, filepath.Join(f.featureDir, "01-PLAN.md"))
	assert.FileExists(t, filepath.Join(f.featureDir, "AUTO-RUN.md"))
}

func TestAutoPlan_JSON(t *testing.T) {
	f := newCLIFixture(t, "plan", false)

	code, stdout, stderr := f.run(t, "auto-plan", "checkout-flow", "--json")
	require.Equal(t, 0, code, stderr)

	var doc struct {
		Outcome struct {
			Succeeded         bool     `json:"succeeded"`
			UnitID            string   `json:"unit_id"`
			ArtifactsProduced []string `json:"artifacts_produced"`
			FilesToCommit     []string `json:"files_to_commit"`
			CommitMessage     string   `json:"commit_message"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.True(t, doc.Outcome.Succeeded)
	assert.Equal(t, "checkout-flow", doc.Outcome.UnitID)
	assert.Equal(t, []string{"01-PLAN.md"}, doc.Outcome.ArtifactsProduced)
	assert.Equal(t, []string{
		"docs/features/checkout-flow/AUTO-RUN.md",
		"docs/features/checkout-flow/01-PLAN.md",
		"docs/features/checkout-flow/FEATURE.md",
	}, doc.Outcome.FilesToCommit)
	assert.Equal(t, "feat(checkout-flow): auto-plan complete (1 plan(s))", doc.Outcome.CommitMessage)
}

func TestAutoPlan_Commits(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	f := newCLIFixture(t, "plan", true)

	git := func(args ...string) string {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = f.root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
		return strings.TrimSpace(string(out))
	}
	git("init")
	git("config", "user.email", "test@example.com")
	git("config", "user.name", "Test User")
	git("config", "commit.gpgsign", "false")
	git("add", ".")
	git("commit", "-m", "initial")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "unrelated.go"), []byte("package x\n"), 0o644))
	git("add", "unrelated.go")

	code, stdout, stderr := f.run(t, "auto-plan", "checkout-flow")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "leaving 1 staged file(s) out of the commit: unrelated.go")
	assert.Equal(t, "unrelated.go", git("diff", "--cached", "--name-only"))

	head := git("rev-parse", "HEAD")
	assert.Contains(t, stdout, "commit="+head+"\n")
	assert.Equal(t, "feat(checkout-flow): auto-plan complete (1 plan(s))", git("log", "-1", "--format=%s"))
	assert.Equal(t, "GFD Bot <gfd@example.com>", git("log", "-1", "--format=%an <%ae>"))

	files := git("show", "--name-only", "--format=", "HEAD")
	assert.ElementsMatch(t, []string{
		"docs/features/checkout-flow/01-PLAN.md",
		"docs/features/checkout-flow/AUTO-RUN.md",
		"docs/features/checkout-flow/FEATURE.md",
	}, strings.Split(files, "\n"))
}

func TestAutoPlan_NoCommitFlag(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	f := newCLIFixture(t, "plan", true)

	code, stdout, stderr := f.run(t, "auto-plan", "checkout-flow", "--no-commit")
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stdout, "commit=")
}
