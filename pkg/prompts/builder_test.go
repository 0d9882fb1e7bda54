package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/entrhq/gfd/pkg/executor/headless"
	"github.com/entrhq/gfd/pkg/feature"
)

func TestPromptBuilder(t *testing.T) {
	t.Run("PlanPrompt", func(t *testing.T) {
		prompt := NewPromptBuilder(headless.KindPlan).
			WithAgentDefinition("You are the planner.\n").
			WithFeature("checkout-flow", "docs/features/checkout-flow", "# Checkout\n").
			WithWorkingDirectory("/repo").
			WithArtifactDirectory("/repo/docs/features/checkout-flow").
			WithResearch("# Research notes\n").
			Build()

		wantInOrder := []string{
			"You are the planner.",
			"---",
			"## Auto-Plan Task",
			"**Feature slug:** checkout-flow",
			"**Feature directory:** docs/features/checkout-flow",
			"**Working directory:** /repo",
			"## FEATURE.md Contents",
			"# Checkout",
			"## RESEARCH.md Contents",
			"# Research notes",
			"## Critical Auto-Run Rules",
			"`## ABORT: <one-line reason>`",
			"`## PLANNING COMPLETE`",
			"Write all PLAN.md files to: /repo/docs/features/checkout-flow",
			"01-PLAN.md, 02-PLAN.md",
		}
		last := -1
		for _, want := range wantInOrder {
			idx := strings.Index(prompt, want)
			if idx < 0 {
				t.Fatalf("prompt missing %q:\n%s", want, prompt)
			}
			if idx < last {
				t.Errorf("%q appears out of order", want)
			}
			last = idx
		}
	})

	t.Run("ResearchPromptIgnoresResearchContent", func(t *testing.T) {
		prompt := NewPromptBuilder(headless.KindResearch).
			WithFeature("search", "docs/features/search", "# Search").
			WithArtifactDirectory("/repo/docs/features/search").
			WithResearch("stale").
			Build()

		if !strings.HasPrefix(prompt, "## Auto-Research Task") {
			t.Errorf("prompt without agent definition should start with the task header:\n%s", prompt)
		}
		if strings.Contains(prompt, "RESEARCH.md Contents") {
			t.Error("research prompt should not embed RESEARCH.md")
		}
		if !strings.Contains(prompt, "`## RESEARCH COMPLETE`") {
			t.Error("research prompt should carry the research completion marker")
		}
		if !strings.Contains(prompt, "Write RESEARCH.md to: "+filepath.Join("/repo/docs/features/search", "RESEARCH.md")) {
			t.Error("research prompt should name the output file")
		}
		if strings.Contains(prompt, "PLANNING COMPLETE") {
			t.Error("research prompt should not mention the planning marker")
		}
	})
}

func TestLoadAgentDefinition(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gfd-planner.md"), []byte("planner def"), 0644); err != nil {
		t.Fatal(err)
	}

	def, err := LoadAgentDefinition(dir, "gfd-planner")
	if err != nil || def != "planner def" {
		t.Errorf("LoadAgentDefinition() = %q, %v", def, err)
	}

	def, err = LoadAgentDefinition(dir, "gfd-researcher")
	if err != nil || def != "" {
		t.Errorf("missing definition should be empty without error, got %q, %v", def, err)
	}

	def, err = LoadAgentDefinition("", "gfd-planner")
	if err != nil || def != "" {
		t.Errorf("empty dir should be empty without error, got %q, %v", def, err)
	}
}

func TestDefaultAgentsDir(t *testing.T) {
	t.Setenv(AgentsDirEnv, "/custom/agents")
	if got := DefaultAgentsDir(); got != "/custom/agents" {
		t.Errorf("DefaultAgentsDir() = %q, want /custom/agents", got)
	}
}

func TestForFeature(t *testing.T) {
	root := t.TempDir()
	featureDir := filepath.Join(root, "docs", "features", "checkout-flow")
	agents := filepath.Join(root, "agents")
	for _, d := range []string{featureDir, agents} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		filepath.Join(featureDir, "FEATURE.md"):  "---\nstatus: researched\n---\n# Checkout\n",
		filepath.Join(featureDir, "RESEARCH.md"): "use the payments SDK",
		filepath.Join(agents, "gfd-planner.md"):  "planner role",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	reg, err := feature.NewRegistry(root, "")
	if err != nil {
		t.Fatal(err)
	}
	f, err := reg.Find("checkout-flow")
	if err != nil {
		t.Fatal(err)
	}

	prompt, err := ForFeature(headless.KindPlan, f, root, agents)
	if err != nil {
		t.Fatalf("ForFeature() error = %v", err)
	}
	for _, want := range []string{"planner role", "# Checkout", "use the payments SDK", "## PLANNING COMPLETE", f.Dir} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	research, err := ForFeature(headless.KindResearch, f, root, agents)
	if err != nil {
		t.Fatalf("ForFeature() error = %v", err)
	}
	if strings.Contains(research, "planner role") || strings.Contains(research, "use the payments SDK") {
		t.Error("research prompt should use the researcher definition and skip RESEARCH.md")
	}
}
