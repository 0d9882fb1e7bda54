// Package prompts assembles the stdin prompt for a headless workflow run.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/gfd/pkg/executor/headless"
	"github.com/entrhq/gfd/pkg/feature"
)

// AgentsDirEnv overrides where agent definition files are read from.
const AgentsDirEnv = "GFD_AGENTS_DIR"

// PromptBuilder constructs the prompt handed to the agent on stdin
type PromptBuilder struct {
	kind            headless.WorkflowKind
	agentDefinition string
	slug            string
	featureDir      string
	workingDir      string
	artifactDir     string
	featureContent  string
	researchContent string
}

// NewPromptBuilder creates a builder for kind
func NewPromptBuilder(kind headless.WorkflowKind) *PromptBuilder {
	return &PromptBuilder{kind: kind}
}

// WithAgentDefinition sets the agent role file contents placed first
func (pb *PromptBuilder) WithAgentDefinition(def string) *PromptBuilder {
	pb.agentDefinition = def
	return pb
}

// WithFeature sets the feature slug, its workspace-relative directory and
// the contents of its FEATURE.md
func (pb *PromptBuilder) WithFeature(slug, featureDir, content string) *PromptBuilder {
	pb.slug = slug
	pb.featureDir = featureDir
	pb.featureContent = content
	return pb
}

// WithWorkingDirectory sets the agent's working directory
func (pb *PromptBuilder) WithWorkingDirectory(dir string) *PromptBuilder {
	pb.workingDir = dir
	return pb
}

// WithArtifactDirectory sets the absolute directory artifacts are written to
func (pb *PromptBuilder) WithArtifactDirectory(dir string) *PromptBuilder {
	pb.artifactDir = dir
	return pb
}

// WithResearch adds RESEARCH.md contents. Only planning prompts include it.
func (pb *PromptBuilder) WithResearch(content string) *PromptBuilder {
	pb.researchContent = content
	return pb
}

// Build assembles the prompt
func (pb *PromptBuilder) Build() string {
	var b strings.Builder

	if pb.agentDefinition != "" {
		b.WriteString(strings.TrimRight(pb.agentDefinition, "\n"))
		b.WriteString("\n\n---\n\n")
	}

	title := "Auto-Research Task"
	if pb.kind == headless.KindPlan {
		title = "Auto-Plan Task"
	}
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "**Feature slug:** %s\n", pb.slug)
	fmt.Fprintf(&b, "**Feature directory:** %s\n", pb.featureDir)
	fmt.Fprintf(&b, "**Working directory:** %s\n\n", pb.workingDir)

	b.WriteString("## FEATURE.md Contents\n\n")
	b.WriteString(strings.TrimRight(pb.featureContent, "\n"))
	b.WriteString("\n\n")

	if pb.kind == headless.KindPlan && pb.researchContent != "" {
		b.WriteString("## RESEARCH.md Contents\n\n")
		b.WriteString(strings.TrimRight(pb.researchContent, "\n"))
		b.WriteString("\n\n")
	}

	b.WriteString(HeadlessRulesPrompt)
	b.WriteString("\n")
	switch pb.kind {
	case headless.KindPlan:
		fmt.Fprintf(&b, planRules, pb.kind.CompletionMarker(), pb.artifactDir)
	default:
		fmt.Fprintf(&b, researchRules, pb.kind.CompletionMarker(), filepath.Join(pb.artifactDir, "RESEARCH.md"))
	}
	b.WriteString("\n")

	return b.String()
}

// DefaultAgentsDir returns $GFD_AGENTS_DIR or ~/.claude/agents.
func DefaultAgentsDir() string {
	if dir := os.Getenv(AgentsDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "agents")
}

// LoadAgentDefinition reads <dir>/<role>.md. A missing file is not an error;
// the prompt is then built without an agent definition.
func LoadAgentDefinition(dir, role string) (string, error) {
	if dir == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(dir, role+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read agent definition %s: %w", role, err)
	}
	return string(data), nil
}

// ForFeature builds the prompt for running kind against f.
func ForFeature(kind headless.WorkflowKind, f *feature.Feature, workingDir, agentsDir string) (string, error) {
	def, err := LoadAgentDefinition(agentsDir, kind.AgentRole())
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(f.MetadataPath())
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", f.FeatureMD, err)
	}

	pb := NewPromptBuilder(kind).
		WithAgentDefinition(def).
		WithFeature(f.Slug, f.RelDir, string(content)).
		WithWorkingDirectory(workingDir).
		WithArtifactDirectory(f.Dir)

	if kind == headless.KindPlan {
		research, err := os.ReadFile(filepath.Join(f.Dir, "RESEARCH.md"))
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read RESEARCH.md: %w", err)
		}
		pb.WithResearch(string(research))
	}

	return pb.Build(), nil
}
