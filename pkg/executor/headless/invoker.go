package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/entrhq/gfd/pkg/logging"
)

// AgentConfig describes how to launch the coding agent. Flag names are
// configurable so another agent CLI with the same contract can be used.
type AgentConfig struct {
	Binary string `yaml:"binary" json:"binary"`

	// BaseArgs are placed before the generated arguments.
	BaseArgs []string `yaml:"base_args" json:"base_args"`

	HeadlessFlag     string   `yaml:"headless_flag" json:"headless_flag"`
	TurnBudgetFlag   string   `yaml:"turn_budget_flag" json:"turn_budget_flag"`
	ModelFlag        string   `yaml:"model_flag" json:"model_flag"`
	CapabilityFlag   string   `yaml:"capability_flag" json:"capability_flag"`
	OutputFormatFlag string   `yaml:"output_format_flag" json:"output_format_flag"`
	OutputFormat     string   `yaml:"output_format" json:"output_format"`
	ExtraArgs        []string `yaml:"extra_args" json:"extra_args"`

	// Env entries (KEY=VALUE) added to the inherited environment.
	Env []string `yaml:"env" json:"env"`

	// Timeout is the wall-clock limit for one run. Zero disables it.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	MaxTurns     int      `yaml:"max_turns" json:"max_turns"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`

	// MaxCaptureBytes bounds each captured stream. Zero uses DefaultMaxCapture.
	MaxCaptureBytes int `yaml:"max_capture_bytes" json:"max_capture_bytes"`
}

// DefaultAgentConfig returns settings for the claude CLI in print mode.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Binary:           "claude",
		HeadlessFlag:     "-p",
		TurnBudgetFlag:   "--max-turns",
		ModelFlag:        "--model",
		CapabilityFlag:   "--allowedTools",
		OutputFormatFlag: "--output-format",
		OutputFormat:     "stream-json",
		ExtraArgs:        []string{"--verbose"},
		Timeout:          20 * time.Minute,
		MaxTurns:         30,
		Capabilities:     []string{"Read", "Write", "Bash", "Glob", "Grep", "WebFetch"},
	}
}

// Validate checks the agent configuration.
func (c AgentConfig) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("agent binary is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("agent timeout cannot be negative")
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns cannot be negative")
	}
	if c.MaxCaptureBytes < 0 {
		return fmt.Errorf("max_capture_bytes cannot be negative")
	}
	return nil
}

// Runner executes one agent invocation for a request.
type Runner interface {
	Invoke(ctx context.Context, req WorkflowRequest) RunResult
}

// Invoker launches the agent binary and turns its output into a RunResult.
type Invoker struct {
	config AgentConfig
	reader ProtocolReader
	logger *logging.Logger
	onLine func(string)
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithInvokerLogger sets the session logger.
func WithInvokerLogger(l *logging.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

// WithStdoutTap registers a callback for each stdout line as it arrives.
func WithStdoutTap(fn func(line string)) InvokerOption {
	return func(i *Invoker) { i.onLine = fn }
}

// NewInvoker creates an invoker for config.
func NewInvoker(config AgentConfig, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		config: config,
		reader: NewStreamJSONReader(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// BuildArgs returns the agent argument vector for req, excluding BaseArgs.
// Every token is a separate element; nothing is ever joined for a shell.
func (i *Invoker) BuildArgs(req WorkflowRequest) []string {
	c := i.config
	args := make([]string, 0, 8+2*len(req.AllowedCapabilities)+len(c.ExtraArgs))
	if c.HeadlessFlag != "" {
		args = append(args, c.HeadlessFlag)
	}
	args = append(args,
		c.TurnBudgetFlag, strconv.Itoa(req.TurnBudget),
		c.ModelFlag, req.ModelTier,
	)
	for _, capability := range req.AllowedCapabilities {
		args = append(args, c.CapabilityFlag, capability)
	}
	args = append(args, c.OutputFormatFlag, c.OutputFormat)
	args = append(args, c.ExtraArgs...)
	return args
}

// Invoke runs the agent for req. Subprocess-side failures are reported in
// the returned RunResult, never as a Go error.
func (i *Invoker) Invoke(ctx context.Context, req WorkflowRequest) RunResult {
	runCtx := ctx
	if i.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.config.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, i.config.BaseArgs...), i.BuildArgs(req)...)
	cmd := exec.CommandContext(runCtx, i.config.Binary, args...)
	cmd.Dir = req.WorkingDirectory
	cmd.Env = append(os.Environ(), i.config.Env...)
	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return launchFailure(err)
	}
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	start := time.Now()
	i.logger.Infof("starting %s for %s (%s, model %s, max turns %d)", i.config.Binary, req.UnitID, req.Kind, req.ModelTier, req.TurnBudget)
	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		i.logger.Errorf("agent failed to start: %v", err)
		return launchFailure(err)
	}

	// Drains start before stdin is written so a child that writes first
	// cannot fill a pipe and stall.
	type drainResult struct {
		out Drained
		err error
	}
	drained := make(chan drainResult, 1)
	pipe := &PipeReader{MaxCapture: i.config.MaxCaptureBytes, OnStdoutLine: i.onLine}
	go func() {
		d, err := pipe.Drain(outR, errR)
		drained <- drainResult{d, err}
	}()

	if _, err := io.WriteString(stdin, req.PromptBody); err != nil {
		i.logger.Warnf("prompt write interrupted: %v", err)
	}
	if err := stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		i.logger.Warnf("failed to close agent stdin: %v", err)
	}

	waitErr := cmd.Wait()
	outW.Close()
	errW.Close()
	d := <-drained
	duration := time.Since(start)
	if d.err != nil {
		i.logger.Warnf("drain error: %v", d.err)
	}
	if d.out.StdoutTruncated || d.out.StderrTruncated {
		i.logger.Warnf("agent output exceeded capture limit; tail retained up to the limit only")
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if waitErr != nil {
		exitCode = 1
	}

	transcript := i.reader.Decode(req.Kind, d.out.Stdout, d.out.Stderr)
	ok, reason := Classify(transcript.Signals)

	result := RunResult{
		Succeeded:       ok,
		Stdout:          d.out.Stdout,
		Stderr:          d.out.Stderr,
		ExitCode:        exitCode,
		DurationSeconds: duration.Seconds(),
		AbortReason:     reason,
		Terminal:        transcript.Terminal,
	}
	if reason == AbortAmbiguous {
		result.AbortDetail = transcript.Signals.AbortNote
	}
	if t := transcript.Terminal; t != nil {
		result.InputTokens = t.Usage.InputTokens
		result.OutputTokens = t.Usage.OutputTokens
		result.CacheReadTokens = t.Usage.CacheReadTokens
		result.TotalCostUSD = t.TotalCostUSD
	}

	if runCtx.Err() != nil {
		// A killed run never counts, even if a marker was already emitted.
		result.Succeeded = false
		result.AbortReason = AbortTimeout
		result.AbortDetail = fmt.Sprintf("agent exceeded %s", i.config.Timeout)
		if ctx.Err() != nil {
			result.AbortReason = AbortCanceled
			result.AbortDetail = ctx.Err().Error()
		}
	}

	i.logger.Infof("agent exited with code %d after %.1fs (records=%d, succeeded=%v, reason=%q)",
		exitCode, result.DurationSeconds, transcript.Records, result.Succeeded, result.AbortReason)
	return result
}

func launchFailure(err error) RunResult {
	return RunResult{
		Succeeded:   false,
		Stderr:      err.Error(),
		ExitCode:    1,
		AbortReason: AbortLaunchFailed,
		AbortDetail: err.Error(),
	}
}
