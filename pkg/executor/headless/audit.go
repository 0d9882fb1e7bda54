package headless

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AuditReport is everything rendered into the audit file for one run.
type AuditReport struct {
	Unit      string
	Kind      WorkflowKind
	RunID     string
	Model     string
	StartedAt time.Time
	Result    RunResult

	// Artifacts are the committed artifact names, empty on failure.
	Artifacts []string
	// Changes lists files that changed outside the artifact pattern.
	Changes []FileChange
	// Gates is nil when no quality gates are configured.
	Gates *QualityGateResults
}

// AuditRecorder writes the per-unit audit report. The report is overwritten
// on every run and always committed.
type AuditRecorder struct {
	fileName  string
	tailLines int
}

// NewAuditRecorder creates a recorder writing fileName with a stdout tail
// of tailLines lines.
func NewAuditRecorder(fileName string, tailLines int) *AuditRecorder {
	if fileName == "" {
		fileName = "AUTO-RUN.md"
	}
	if tailLines <= 0 {
		tailLines = 50
	}
	return &AuditRecorder{fileName: fileName, tailLines: tailLines}
}

// FileName returns the bare report file name.
func (a *AuditRecorder) FileName() string {
	return a.fileName
}

// Write renders report into dir and returns the report path.
func (a *AuditRecorder) Write(dir string, report AuditReport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := filepath.Join(dir, a.fileName)
	if err := os.WriteFile(path, []byte(a.Render(report)), 0644); err != nil {
		return "", fmt.Errorf("failed to write audit report: %w", err)
	}
	return path, nil
}

// Render returns the report markdown.
func (a *AuditRecorder) Render(r AuditReport) string {
	var md strings.Builder

	status := "Aborted"
	if r.Result.Succeeded {
		status = "Success"
	}

	fmt.Fprintf(&md, "# Auto Run: %s %s\n\n", r.Kind.Command(), r.Unit)
	if r.RunID != "" {
		fmt.Fprintf(&md, "**Run ID:** %s\n", r.RunID)
	}
	fmt.Fprintf(&md, "**Status:** %s\n", status)
	fmt.Fprintf(&md, "**Started:** %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %.1fs\n", r.Result.DurationSeconds)
	if r.Model != "" {
		fmt.Fprintf(&md, "**Model:** %s\n", r.Model)
	}
	if r.Result.HasUsage() {
		fmt.Fprintf(&md, "**Tokens:** %s in / %s out / %s cache read | **Cost:** $%.4f\n",
			formatNumber(r.Result.InputTokens), formatNumber(r.Result.OutputTokens),
			formatNumber(r.Result.CacheReadTokens), r.Result.TotalCostUSD)
	}

	md.WriteString("\n## Outcome\n\n")
	if r.Result.Succeeded {
		md.WriteString("Command completed successfully.\n\n")
		writeList(&md, r.Artifacts)
	} else {
		fmt.Fprintf(&md, "Command aborted. Reason: %s\n", r.Result.AbortMessage())
	}

	md.WriteString("\n## Artifacts\n\n")
	if r.Result.Succeeded && len(r.Artifacts) > 0 {
		writeList(&md, r.Artifacts)
	} else {
		md.WriteString("None committed.\n")
	}

	if len(r.Changes) > 0 {
		md.WriteString("\n## Workspace Changes\n\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&md, "- %s: %s\n", c.Kind, c.Name)
		}
	}

	if r.Gates != nil && len(r.Gates.Results) > 0 {
		md.WriteString("\n## Quality Gates\n\n")
		for _, g := range r.Gates.Results {
			mark := "✅"
			if !g.Passed {
				mark = "❌"
			}
			fmt.Fprintf(&md, "- %s %s", mark, g.Name)
			if g.Required {
				md.WriteString(" (required)")
			}
			md.WriteString("\n")
			if g.Error != "" {
				fmt.Fprintf(&md, "  Error: %s\n", g.Error)
			}
		}
	}

	md.WriteString("\n## Agent Output (tail)\n\n```\n")
	if tail := tailLines(r.Result.Stdout, a.tailLines); tail != "" {
		md.WriteString(tail)
	} else {
		md.WriteString("(none)")
	}
	md.WriteString("\n```\n")

	if tail := tailLines(r.Result.Stderr, a.tailLines); tail != "" {
		md.WriteString("\n## Diagnostics (tail)\n\n```\n")
		md.WriteString(tail)
		md.WriteString("\n```\n")
	}

	return md.String()
}

func writeList(md *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(md, "- %s\n", it)
	}
}

// tailLines returns the last n lines of s without a trailing newline.
func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\r\n")
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
