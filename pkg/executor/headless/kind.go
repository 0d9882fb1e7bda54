package headless

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// WorkflowKind identifies a category of headless run. Each kind has exactly
// one completion marker and one artifact naming convention.
type WorkflowKind string

const (
	// KindResearch produces RESEARCH.md for a feature.
	KindResearch WorkflowKind = "research"
	// KindPlan produces one or more NN-PLAN.md files for a feature.
	KindPlan WorkflowKind = "plan"
)

// ParseWorkflowKind accepts "research", "plan" or their command names.
func ParseWorkflowKind(s string) (WorkflowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "research", "auto-research":
		return KindResearch, nil
	case "plan", "auto-plan":
		return KindPlan, nil
	default:
		return "", fmt.Errorf("unknown workflow kind %q (must be 'research' or 'plan')", s)
	}
}

// Valid reports whether k is a known kind.
func (k WorkflowKind) Valid() bool {
	return k == KindResearch || k == KindPlan
}

// Command returns the CLI command name used in audit titles and commits.
func (k WorkflowKind) Command() string {
	return "auto-" + string(k)
}

// CompletionMarker returns the exact string the terminal record must carry.
func (k WorkflowKind) CompletionMarker() string {
	switch k {
	case KindResearch:
		return "## RESEARCH COMPLETE"
	case KindPlan:
		return "## PLANNING COMPLETE"
	default:
		return ""
	}
}

// AgentRole names the agent definition the prompt is built from. It is also
// the key for model profile lookups.
func (k WorkflowKind) AgentRole() string {
	switch k {
	case KindResearch:
		return "gfd-researcher"
	case KindPlan:
		return "gfd-planner"
	default:
		return ""
	}
}

// CompletedStatus is the feature status written after a successful run.
func (k WorkflowKind) CompletedStatus() string {
	switch k {
	case KindResearch:
		return "researched"
	case KindPlan:
		return "planned"
	default:
		return ""
	}
}

// ArtifactPatterns returns the glob patterns artifacts of this kind match.
func (k WorkflowKind) ArtifactPatterns() []string {
	switch k {
	case KindResearch:
		return []string{"RESEARCH.md", "*-RESEARCH.md"}
	case KindPlan:
		return []string{"*-PLAN.md"}
	default:
		return nil
	}
}

// Artifact is a file in the artifact directory matching a kind's pattern.
type Artifact struct {
	Name string
	Size int64
}

// ArtifactMatcher matches bare file names against a kind's patterns.
type ArtifactMatcher struct {
	patterns []glob.Glob
}

// NewArtifactMatcher compiles the patterns of kind.
func NewArtifactMatcher(kind WorkflowKind) (*ArtifactMatcher, error) {
	raw := kind.ArtifactPatterns()
	if len(raw) == 0 {
		return nil, fmt.Errorf("no artifact patterns for workflow kind %q", kind)
	}

	m := &ArtifactMatcher{}
	for _, p := range raw {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid artifact pattern '%s': %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether name (a bare file name) is an artifact.
func (m *ArtifactMatcher) Match(name string) bool {
	for _, g := range m.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Scan lists regular files in dir that match, sorted by name. A missing
// directory yields no artifacts.
func (m *ArtifactMatcher) Scan(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var found []Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() || !m.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, Artifact{Name: e.Name(), Size: info.Size()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// Remove deletes every matching file in dir. It keeps going after a failed
// delete and returns the names removed plus the per-file errors.
func (m *ArtifactMatcher) Remove(dir string) ([]string, []error) {
	found, err := m.Scan(dir)
	if err != nil {
		return nil, []error{err}
	}

	var removed []string
	var errs []error
	for _, a := range found {
		if err := os.Remove(filepath.Join(dir, a.Name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", a.Name, err))
			continue
		}
		removed = append(removed, a.Name)
	}
	return removed, errs
}

// artifactNames returns the names of artifacts.
func artifactNames(artifacts []Artifact) []string {
	names := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		names = append(names, a.Name)
	}
	return names
}
