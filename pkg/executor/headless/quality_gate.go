package headless

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GateTarget is what a quality gate validates: the artifacts of one run.
type GateTarget struct {
	Unit         string
	Kind         WorkflowKind
	WorkspaceDir string
	ArtifactDir  string
	// Artifacts holds bare file names inside ArtifactDir.
	Artifacts []string
}

// artifactPaths returns absolute artifact paths.
func (t GateTarget) artifactPaths() []string {
	paths := make([]string, 0, len(t.Artifacts))
	for _, a := range t.Artifacts {
		paths = append(paths, filepath.Join(t.ArtifactDir, a))
	}
	return paths
}

// QualityGate is a validation step run against produced artifacts before
// they are committed.
type QualityGate interface {
	// Name returns the name of the quality gate
	Name() string

	// Required returns true if failure should fail the run
	Required() bool

	// Execute runs the gate and returns an error if it fails
	Execute(ctx context.Context, target GateTarget) error
}

// artifactsPlaceholder expands to one argument per artifact path.
const artifactsPlaceholder = "{artifacts}"

// CommandQualityGate runs an external command as a quality gate. The
// command is split on whitespace and executed directly, never via a shell.
type CommandQualityGate struct {
	name     string
	command  string
	required bool
	timeout  time.Duration
}

// NewCommandQualityGate creates a new command-based quality gate
func NewCommandQualityGate(name, command string, required bool) *CommandQualityGate {
	return &CommandQualityGate{
		name:     name,
		command:  command,
		required: required,
		timeout:  5 * time.Minute,
	}
}

// WithTimeout overrides the default five minute limit.
func (g *CommandQualityGate) WithTimeout(d time.Duration) *CommandQualityGate {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// Name returns the name of the quality gate
func (g *CommandQualityGate) Name() string {
	return g.name
}

// Required returns true if failure should fail the run
func (g *CommandQualityGate) Required() bool {
	return g.required
}

// Execute runs the gate command in the workspace. The run's unit, kind and
// artifact locations are passed as GFD_* environment variables.
func (g *CommandQualityGate) Execute(ctx context.Context, target GateTarget) error {
	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := strings.Fields(g.command)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	args := make([]string, 0, len(parts))
	for _, p := range parts[1:] {
		if p == artifactsPlaceholder {
			args = append(args, target.artifactPaths()...)
			continue
		}
		args = append(args, p)
	}

	cmd := exec.CommandContext(execCtx, parts[0], args...)
	cmd.Dir = target.WorkspaceDir
	cmd.Env = append(os.Environ(),
		"GFD_UNIT="+target.Unit,
		"GFD_KIND="+string(target.Kind),
		"GFD_ARTIFACT_DIR="+target.ArtifactDir,
		"GFD_ARTIFACTS="+strings.Join(target.Artifacts, " "),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &QualityGateError{
			GateName: g.name,
			Command:  g.command,
			Output:   string(output),
			Err:      err,
		}
	}

	return nil
}

// ContentQualityGate requires every artifact to contain a given string.
type ContentQualityGate struct {
	name     string
	contains string
	required bool
}

// NewContentQualityGate creates a gate that checks artifact contents.
func NewContentQualityGate(name, contains string, required bool) *ContentQualityGate {
	return &ContentQualityGate{name: name, contains: contains, required: required}
}

// Name returns the name of the quality gate
func (g *ContentQualityGate) Name() string {
	return g.name
}

// Required returns true if failure should fail the run
func (g *ContentQualityGate) Required() bool {
	return g.required
}

// Execute reads each artifact and fails on the first one missing the text.
func (g *ContentQualityGate) Execute(_ context.Context, target GateTarget) error {
	var missing []string
	for i, path := range target.artifactPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			return &QualityGateError{GateName: g.name, Err: fmt.Errorf("failed to read %s: %w", target.Artifacts[i], err)}
		}
		if !strings.Contains(string(data), g.contains) {
			missing = append(missing, target.Artifacts[i])
		}
	}
	if len(missing) > 0 {
		return &QualityGateError{
			GateName: g.name,
			Output:   fmt.Sprintf("missing %q in: %s", g.contains, strings.Join(missing, ", ")),
			Err:      fmt.Errorf("%d artifact(s) lack required content", len(missing)),
		}
	}
	return nil
}

// QualityGateError represents a quality gate execution failure
type QualityGateError struct {
	GateName string
	Command  string
	Output   string
	Err      error
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("quality gate '%s' failed: %v", e.GateName, e.Err)
}

// Unwrap returns the underlying error
func (e *QualityGateError) Unwrap() error {
	return e.Err
}

// QualityGateRunner manages execution of multiple quality gates
type QualityGateRunner struct {
	gates []QualityGate
}

// NewQualityGateRunner creates a new quality gate runner
func NewQualityGateRunner(gates []QualityGate) *QualityGateRunner {
	return &QualityGateRunner{gates: gates}
}

// Len returns the number of configured gates.
func (r *QualityGateRunner) Len() int {
	if r == nil {
		return 0
	}
	return len(r.gates)
}

// RunAll executes every gate in order. Optional gate failures are recorded
// but do not clear AllPassed.
func (r *QualityGateRunner) RunAll(ctx context.Context, target GateTarget) *QualityGateResults {
	results := &QualityGateResults{
		AllPassed: true,
		Results:   make([]QualityGateResult, 0, r.Len()),
	}
	if r == nil {
		return results
	}

	for _, gate := range r.gates {
		start := time.Now()
		err := gate.Execute(ctx, target)

		result := QualityGateResult{
			Name:     gate.Name(),
			Required: gate.Required(),
			Passed:   err == nil,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Error = err.Error()
			var qe *QualityGateError
			if errors.As(err, &qe) {
				result.Output = tailLines(qe.Output, 20)
			}
			if gate.Required() {
				results.AllPassed = false
			}
		}
		results.Results = append(results.Results, result)
	}

	return results
}

// QualityGateResults contains results from running quality gates
type QualityGateResults struct {
	AllPassed bool                `json:"all_passed"`
	Results   []QualityGateResult `json:"results"`
}

// QualityGateResult represents the result of a single quality gate
type QualityGateResult struct {
	Name     string        `json:"name"`
	Required bool          `json:"required"`
	Passed   bool          `json:"passed"`
	Error    string        `json:"error,omitempty"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// GetFailedGates returns a list of failed required gates
func (r *QualityGateResults) GetFailedGates() []QualityGateResult {
	failed := make([]QualityGateResult, 0)
	for _, result := range r.Results {
		if result.Required && !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// FailedNames joins the names of failed required gates.
func (r *QualityGateResults) FailedNames() string {
	failed := r.GetFailedGates()
	names := make([]string, 0, len(failed))
	for _, f := range failed {
		names = append(names, f.Name)
	}
	return strings.Join(names, ", ")
}

// CreateQualityGates creates quality gates from configuration
func CreateQualityGates(configs []QualityGateConfig) []QualityGate {
	gates := make([]QualityGate, 0, len(configs))
	for _, config := range configs {
		if config.Contains != "" {
			gates = append(gates, NewContentQualityGate(config.Name, config.Contains, config.Required))
			continue
		}
		gates = append(gates, NewCommandQualityGate(config.Name, config.Command, config.Required).WithTimeout(config.Timeout))
	}
	return gates
}
