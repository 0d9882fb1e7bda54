package headless

import (
	"errors"
	"fmt"
	"strings"
)

// WorkflowRequest is everything one headless run needs. Build it with
// NewWorkflowRequest; the orchestrator never mutates it.
type WorkflowRequest struct {
	// UnitID is the feature slug the run operates on.
	UnitID string       `json:"unit_id"`
	Kind   WorkflowKind `json:"kind"`

	// WorkingDirectory is the repository root the agent runs in.
	WorkingDirectory string `json:"working_directory"`

	// ArtifactDirectory is the feature directory artifacts are written to.
	ArtifactDirectory string `json:"artifact_directory"`

	PromptBody          string   `json:"-"`
	AllowedCapabilities []string `json:"allowed_capabilities"`
	TurnBudget          int      `json:"turn_budget"`
	ModelTier           string   `json:"model_tier"`
}

// NewWorkflowRequest builds a request with de-duplicated capabilities and
// validates it.
func NewWorkflowRequest(unitID string, kind WorkflowKind, workDir, artifactDir, prompt string, capabilities []string, turnBudget int, modelTier string) (WorkflowRequest, error) {
	req := WorkflowRequest{
		UnitID:              unitID,
		Kind:                kind,
		WorkingDirectory:    workDir,
		ArtifactDirectory:   artifactDir,
		PromptBody:          prompt,
		AllowedCapabilities: dedupe(capabilities),
		TurnBudget:          turnBudget,
		ModelTier:           modelTier,
	}
	if err := req.Validate(); err != nil {
		return WorkflowRequest{}, err
	}
	return req, nil
}

// Validate checks the request is runnable.
func (r WorkflowRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.UnitID) == "" {
		errs = append(errs, fmt.Errorf("unit id is required"))
	}
	if !r.Kind.Valid() {
		errs = append(errs, fmt.Errorf("invalid workflow kind: %q", r.Kind))
	}
	if r.WorkingDirectory == "" {
		errs = append(errs, fmt.Errorf("working directory is required"))
	}
	if r.ArtifactDirectory == "" {
		errs = append(errs, fmt.Errorf("artifact directory is required"))
	}
	if strings.TrimSpace(r.PromptBody) == "" {
		errs = append(errs, fmt.Errorf("prompt body is required"))
	}
	if r.TurnBudget <= 0 {
		errs = append(errs, fmt.Errorf("turn budget must be positive, got %d", r.TurnBudget))
	}
	if strings.TrimSpace(r.ModelTier) == "" {
		errs = append(errs, fmt.Errorf("model tier is required"))
	}
	for _, c := range r.AllowedCapabilities {
		if c == "" || strings.ContainsAny(c, "\r\n") || strings.HasPrefix(c, "-") {
			errs = append(errs, fmt.Errorf("invalid capability name %q", c))
		}
	}
	return errors.Join(errs...)
}

// dedupe removes duplicates while preserving first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// Usage holds the token counters reported by the terminal record.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CacheReadTokens int `json:"cache_read_input_tokens"`
}

// TerminalRecord is the last "result" event on the agent's stdout.
type TerminalRecord struct {
	Text         string  `json:"result"`
	Subtype      string  `json:"subtype,omitempty"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	NumTurns     int     `json:"num_turns,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	Usage        Usage   `json:"usage"`
}

// RunResult describes one agent invocation. It is built once by the Invoker;
// the only permitted change afterwards is Downgrade.
type RunResult struct {
	Succeeded       bool            `json:"succeeded"`
	Stdout          string          `json:"-"`
	Stderr          string          `json:"-"`
	ExitCode        int             `json:"exit_code"`
	DurationSeconds float64         `json:"duration_seconds"`
	AbortReason     AbortReason     `json:"abort_reason,omitempty"`
	AbortDetail     string          `json:"abort_detail,omitempty"`
	InputTokens     int             `json:"input_tokens"`
	OutputTokens    int             `json:"output_tokens"`
	CacheReadTokens int             `json:"cache_read_tokens"`
	TotalCostUSD    float64         `json:"total_cost_usd"`
	Terminal        *TerminalRecord `json:"-"`
}

// Downgrade flips a result to failed. It never turns a failure into a
// success and keeps the first reason when the result already failed.
func (r *RunResult) Downgrade(reason AbortReason, detail string) {
	if !r.Succeeded && r.AbortReason != AbortNone {
		return
	}
	r.Succeeded = false
	r.AbortReason = reason
	r.AbortDetail = detail
}

// HasUsage reports whether token or cost data was captured.
func (r RunResult) HasUsage() bool {
	return r.InputTokens > 0 || r.OutputTokens > 0 || r.CacheReadTokens > 0 || r.TotalCostUSD > 0
}

// AbortMessage is the reason plus detail, as shown to users.
func (r RunResult) AbortMessage() string {
	if r.AbortReason == AbortNone {
		return ""
	}
	if r.AbortDetail == "" {
		return r.AbortReason.String()
	}
	return fmt.Sprintf("%s: %s", r.AbortReason, r.AbortDetail)
}

// WorkflowOutcome is the terminal value of an orchestrator run.
type WorkflowOutcome struct {
	Succeeded bool         `json:"succeeded"`
	RunID     string       `json:"run_id"`
	UnitID    string       `json:"unit_id"`
	Kind      WorkflowKind `json:"kind"`

	// ArtifactsProduced holds bare file names, sorted.
	ArtifactsProduced []string `json:"artifacts_produced"`
	AbortReason       string   `json:"abort_reason,omitempty"`
	AuditReportPath   string   `json:"audit_report_path,omitempty"`

	// FilesToCommit holds slash paths relative to the working directory.
	FilesToCommit []string `json:"files_to_commit"`
	CommitMessage string   `json:"commit_message"`

	Result RunResult `json:"result"`
}
