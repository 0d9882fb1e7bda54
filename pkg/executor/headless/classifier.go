package headless

// AbortReason is the closed set of reasons a run can fail. The empty value
// means the run succeeded.
type AbortReason string

const (
	AbortNone             AbortReason = ""
	AbortLaunchFailed     AbortReason = "process failed to start"
	AbortMaxTurns         AbortReason = "max-turns reached"
	AbortAmbiguous        AbortReason = "ambiguous decision point"
	AbortNoSignal         AbortReason = "no completion signal found"
	AbortArtifactMissing  AbortReason = "artifact not found after completion signal"
	AbortArtifactExists   AbortReason = "artifact already exists"
	AbortAlreadyRunning   AbortReason = "workflow already running"
	AbortTimeout          AbortReason = "wall-clock timeout exceeded"
	AbortCanceled         AbortReason = "run canceled"
	AbortQualityGate      AbortReason = "quality gate failed"
	AbortMetadataUpdate   AbortReason = "metadata update failed"
	AbortInvalidRequest   AbortReason = "invalid workflow request"
	AbortLeaseUnavailable AbortReason = "could not acquire run lease"
)

// String returns the human-readable reason.
func (r AbortReason) String() string {
	return string(r)
}

// Signals is the structured view of a transcript that classification works
// from. Only the ProtocolReader fills it in.
type Signals struct {
	// Completed is set when the terminal record carries the kind's marker.
	Completed bool
	// TurnBudgetExhausted is set when the agent hit its turn limit.
	TurnBudgetExhausted bool
	// DecisionRequested is set when the agent asked for a human.
	DecisionRequested bool
	// AbortNote is the text following "## ABORT:" if the agent emitted one.
	AbortNote string
}

// Classify maps signals to success or an abort reason. Priority when not
// completed is fixed: turn budget, then decision request, then no signal.
func Classify(s Signals) (bool, AbortReason) {
	switch {
	case s.Completed:
		return true, AbortNone
	case s.TurnBudgetExhausted:
		return false, AbortMaxTurns
	case s.DecisionRequested:
		return false, AbortAmbiguous
	default:
		return false, AbortNoSignal
	}
}
