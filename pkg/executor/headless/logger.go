package headless

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LogLevel represents the logging verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only critical information (errors, warnings, final summary)
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows standard run progress (default)
	LogLevelNormal
	// LogLevelVerbose shows agent events and gate output
	LogLevelVerbose
	// LogLevelDebug shows all internal details for debugging
	LogLevelDebug
)

// Logger is the console progress logger for headless runs. It writes to
// stderr so stdout stays machine-readable.
type Logger struct {
	level  LogLevel
	writer io.Writer

	// ANSI color codes
	colorReset     string
	colorGreen     string
	colorCyan      string
	colorSalmon    string
	colorYellow    string
	colorRed       string
	colorGray      string
	colorBoldGreen string
	colorBoldRed   string
	colorBoldWhite string

	startTime time.Time
	stepCount int
}

// NewLogger creates a new logger with the specified level
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level:          level,
		writer:         os.Stderr,
		colorReset:     "\033[0m",
		colorGreen:     "\033[32m",
		colorCyan:      "\033[36m",
		colorSalmon:    "\033[38;5;217m", // Salmon pink #FFB3BA
		colorYellow:    "\033[33m",
		colorRed:       "\033[31m",
		colorGray:      "\033[90m",
		colorBoldGreen: "\033[1;32m",
		colorBoldRed:   "\033[1;31m",
		colorBoldWhite: "\033[1;37m",
		startTime:      time.Now(),
	}
}

// SetOutput redirects the logger. Colors are dropped when plain is true.
func (l *Logger) SetOutput(w io.Writer, plain bool) {
	l.writer = w
	if plain {
		l.colorReset, l.colorGreen, l.colorCyan, l.colorSalmon = "", "", "", ""
		l.colorYellow, l.colorRed, l.colorGray = "", "", ""
		l.colorBoldGreen, l.colorBoldRed, l.colorBoldWhite = "", "", ""
	}
}

// Level returns the configured verbosity.
func (l *Logger) Level() LogLevel {
	return l.level
}

// Header prints a prominent header message
func (l *Logger) Header(message string) {
	if l.level >= LogLevelNormal {
		fmt.Fprintf(l.writer, "\n%s%s%s\n", l.colorBoldWhite, strings.Repeat("=", 70), l.colorReset)
		fmt.Fprintf(l.writer, "%s  %s%s\n", l.colorBoldWhite, message, l.colorReset)
		fmt.Fprintf(l.writer, "%s%s%s\n", l.colorBoldWhite, strings.Repeat("=", 70), l.colorReset)
	}
}

// Section prints a section divider
func (l *Logger) Section(title string) {
	if l.level >= LogLevelNormal {
		fmt.Fprintln(l.writer)
		fmt.Fprintf(l.writer, "%s▶ %s%s\n", l.colorCyan, title, l.colorReset)
		fmt.Fprintf(l.writer, "%s%s%s\n", l.colorGray, strings.Repeat("─", 50), l.colorReset)
	}
}

// Step prints a numbered step
func (l *Logger) Step(message string) {
	if l.level >= LogLevelNormal {
		l.stepCount++
		fmt.Fprintf(l.writer, "%s[%d] %s%s\n", l.colorCyan, l.stepCount, message, l.colorReset)
	}
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(l.writer, "%s✓ %s%s\n", l.colorBoldGreen, msg, l.colorReset)
	}
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(l.writer, "%s%s%s\n", l.colorSalmon, msg, l.colorReset)
	}
}

// Warningf prints a warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	if l.level >= LogLevelQuiet {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(l.writer, "%s⚠ Warning: %s%s\n", l.colorYellow, msg, l.colorReset)
	}
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level >= LogLevelQuiet {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(l.writer, "%s✗ Error: %s%s\n", l.colorBoldRed, msg, l.colorReset)
	}
}

// Verbosef prints detailed information (only in verbose mode)
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if l.level >= LogLevelVerbose {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(l.writer, "%s→ %s%s\n", l.colorGray, msg, l.colorReset)
	}
}

// Debugf prints debug information (only in debug mode)
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= LogLevelDebug {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(l.writer, "%s[DEBUG] %s%s\n", l.colorGray, msg, l.colorReset)
	}
}

// AgentEvent logs one summarised agent event
func (l *Logger) AgentEvent(description string, count int) {
	switch l.level {
	case LogLevelQuiet, LogLevelNormal:
		// Event stream is only shown when verbose
	case LogLevelVerbose, LogLevelDebug:
		fmt.Fprintf(l.writer, "%s  • %s (#%d)%s\n", l.colorGray, description, count, l.colorReset)
	}
}

// QualityGate logs quality gate execution
func (l *Logger) QualityGate(name string, passed bool, message string) {
	if l.level >= LogLevelNormal {
		if passed {
			fmt.Fprintf(l.writer, "%s  ✓ %s: passed%s\n", l.colorBoldGreen, name, l.colorReset)
		} else {
			fmt.Fprintf(l.writer, "%s  ✗ %s: failed%s\n", l.colorBoldRed, name, l.colorReset)
			if message != "" {
				fmt.Fprintf(l.writer, "%s    %s%s\n", l.colorGray, message, l.colorReset)
			}
		}
	}
}

// GitOperation logs a git operation
func (l *Logger) GitOperation(operation, details string) {
	if l.level >= LogLevelNormal {
		fmt.Fprintf(l.writer, "%s  🔀 Git: %s%s\n", l.colorCyan, operation, l.colorReset)
		if details != "" && l.level >= LogLevelVerbose {
			fmt.Fprintf(l.writer, "%s    %s%s\n", l.colorGray, details, l.colorReset)
		}
	}
}

// Summary prints the final run summary. commit may be nil.
func (l *Logger) Summary(outcome *WorkflowOutcome, commit *CommitResult) {
	if outcome == nil {
		return
	}

	l.printSummaryHeader()
	l.printStatus(outcome)
	fmt.Fprintf(l.writer, "  Unit: %s (%s)\n", outcome.UnitID, outcome.Kind.Command())
	fmt.Fprintf(l.writer, "  Duration: %.1fs\n", outcome.Result.DurationSeconds)
	l.printUsage(outcome.Result)
	l.printArtifacts(outcome)
	l.printGit(commit)
	l.printError(outcome)
	l.printSummaryFooter()
}

func (l *Logger) printSummaryHeader() {
	fmt.Fprintln(l.writer)
	fmt.Fprintf(l.writer, "%s%s%s\n", l.colorBoldWhite, strings.Repeat("=", 70), l.colorReset)
	fmt.Fprintf(l.writer, "%s  RUN SUMMARY%s\n", l.colorBoldWhite, l.colorReset)
	fmt.Fprintf(l.writer, "%s%s%s\n", l.colorBoldWhite, strings.Repeat("=", 70), l.colorReset)
}

func (l *Logger) printStatus(outcome *WorkflowOutcome) {
	fmt.Fprint(l.writer, "  Status: ")
	if outcome.Succeeded {
		fmt.Fprintf(l.writer, "%s✓ SUCCESS%s\n", l.colorBoldGreen, l.colorReset)
		return
	}
	fmt.Fprintf(l.writer, "%s✗ ABORTED%s\n", l.colorBoldRed, l.colorReset)
}

func (l *Logger) printUsage(r RunResult) {
	if !r.HasUsage() {
		return
	}
	fmt.Fprintf(l.writer, "\n  📊 Usage:\n")
	fmt.Fprintf(l.writer, "    Tokens: %s in / %s out / %s cache read\n",
		formatNumber(r.InputTokens), formatNumber(r.OutputTokens), formatNumber(r.CacheReadTokens))
	fmt.Fprintf(l.writer, "    Cost: $%.4f\n", r.TotalCostUSD)
}

func (l *Logger) printArtifacts(outcome *WorkflowOutcome) {
	if len(outcome.ArtifactsProduced) == 0 {
		return
	}
	fmt.Fprintf(l.writer, "\n  📝 Artifacts:\n")
	for _, a := range outcome.ArtifactsProduced {
		fmt.Fprintf(l.writer, "    • %s\n", a)
	}
	if l.level >= LogLevelVerbose && outcome.AuditReportPath != "" {
		fmt.Fprintf(l.writer, "    Audit: %s\n", outcome.AuditReportPath)
	}
}

func (l *Logger) printGit(commit *CommitResult) {
	if commit == nil || commit.Hash == "" {
		return
	}
	fmt.Fprintf(l.writer, "\n  🔀 Git:\n")
	fmt.Fprintf(l.writer, "    Commit: %s\n", commit.Hash)
	if commit.Pushed {
		fmt.Fprintf(l.writer, "    Pushed: yes\n")
	}
}

func (l *Logger) printError(outcome *WorkflowOutcome) {
	if outcome.Succeeded {
		return
	}
	fmt.Fprintln(l.writer)
	fmt.Fprintf(l.writer, "%s  Abort Reason:%s\n", l.colorBoldRed, l.colorReset)
	fmt.Fprintf(l.writer, "%s    %s%s\n", l.colorRed, outcome.AbortReason, l.colorReset)
}

func (l *Logger) printSummaryFooter() {
	fmt.Fprintf(l.writer, "%s%s%s\n", l.colorBoldWhite, strings.Repeat("=", 70), l.colorReset)
	fmt.Fprintln(l.writer)
}

// ParseLogLevel converts a string log level to LogLevel type
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "quiet":
		return LogLevelQuiet
	case "normal":
		return LogLevelNormal
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

// formatNumber formats large numbers with commas for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
