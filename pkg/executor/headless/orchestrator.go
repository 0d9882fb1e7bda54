package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/gfd/pkg/feature"
	"github.com/entrhq/gfd/pkg/logging"
	"github.com/entrhq/gfd/pkg/security/workspace"
)

// State is a step of the orchestrator state machine.
type State string

const (
	StatePreflight   State = "Preflight"
	StateInvoking    State = "Invoking"
	StateValidating  State = "Validating"
	StateCommitting  State = "Committing"
	StateRollingBack State = "RollingBack"
	StateDone        State = "Done"
)

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// MetadataStore updates a feature's metadata file after a successful run.
// Complete records the new status and the usage row together.
type MetadataStore interface {
	Complete(path, status string, record feature.UsageRecord) error
}

// ErrNothingToCommit is returned by Publish for an outcome without files.
var ErrNothingToCommit = errors.New("outcome has no files to commit")

// Orchestrator runs one workflow request through preflight, invocation,
// validation and commit or rollback.
type Orchestrator struct {
	config      *Config
	runner      Runner
	metadata    MetadataStore
	gates       *QualityGateRunner
	constraints *ConstraintManager
	audit       *AuditRecorder

	log      *logging.Logger
	console  *Logger
	now      func() time.Time
	newRunID func() string
	observer func(Transition)

	mu    sync.Mutex
	trace []Transition
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetadataStore sets the store used to record status and usage.
func WithMetadataStore(m MetadataStore) Option {
	return func(o *Orchestrator) { o.metadata = m }
}

// WithSessionLogger sets the file logger for state transitions.
func WithSessionLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithConsole sets the console progress logger.
func WithConsole(l *Logger) Option {
	return func(o *Orchestrator) { o.console = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// WithObserver registers a callback for every state transition.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// NewOrchestrator creates an orchestrator. The config is validated and its
// gates and constraints compiled once.
func NewOrchestrator(config *Config, runner Runner, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	constraints, err := NewConstraintManager(config.Constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to create constraint manager: %w", err)
	}

	quiet := NewLogger(LogLevelQuiet)
	quiet.SetOutput(io.Discard, true)

	o := &Orchestrator{
		config:      config,
		runner:      runner,
		gates:       NewQualityGateRunner(CreateQualityGates(config.QualityGates)),
		constraints: constraints,
		audit:       NewAuditRecorder(config.Audit.FileName, config.Audit.TailLines),
		log:         logging.Discard(),
		console:     quiet,
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Trace returns the transitions of the most recent run.
func (o *Orchestrator) Trace() []Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Transition(nil), o.trace...)
}

func (o *Orchestrator) enter(next State) {
	o.mu.Lock()
	t := Transition{From: o.state, To: next, At: o.now()}
	o.state = next
	o.trace = append(o.trace, t)
	o.mu.Unlock()

	o.log.Infof("state %s -> %s", t.From, t.To)
	o.console.Debugf("state %s -> %s", t.From, t.To)
	if o.observer != nil {
		o.observer(t)
	}
}

// run carries per-invocation state between steps.
type run struct {
	req       WorkflowRequest
	matcher   *ArtifactMatcher
	snapshot  *DirSnapshot
	startedAt time.Time
	result    RunResult
	artifacts []string
	gates     *QualityGateResults

	// metadata holds the metadata file as it was before Committing.
	metadata *savedFile
}

type savedFile struct {
	path string
	data []byte
	perm os.FileMode
}

// restore puts the file back when its content changed.
func (f *savedFile) restore() error {
	current, err := os.ReadFile(f.path)
	if err == nil && string(current) == string(f.data) {
		return nil
	}
	if err := os.WriteFile(f.path, f.data, f.perm); err != nil {
		return fmt.Errorf("failed to restore %s: %w", f.path, err)
	}
	return nil
}

// Run executes req to completion. It never returns nil and never panics for
// subprocess-side failures; all of them become an aborted outcome.
func (o *Orchestrator) Run(ctx context.Context, req WorkflowRequest) *WorkflowOutcome {
	o.mu.Lock()
	o.trace = nil
	o.state = ""
	o.mu.Unlock()

	outcome := &WorkflowOutcome{
		RunID:             o.newRunID(),
		UnitID:            req.UnitID,
		Kind:              req.Kind,
		ArtifactsProduced: []string{},
		FilesToCommit:     []string{},
	}
	r := &run{req: req, startedAt: o.now()}

	o.enter(StatePreflight)
	o.console.Step(fmt.Sprintf("Preflight: %s %s", req.Kind.Command(), req.UnitID))

	if reason, detail := o.checkLocation(req); reason != AbortNone {
		return o.reject(outcome, r, reason, detail)
	}

	matcher, err := NewArtifactMatcher(req.Kind)
	if err != nil {
		return o.reject(outcome, r, AbortInvalidRequest, err.Error())
	}
	r.matcher = matcher

	host, _ := os.Hostname()
	lease, reclaimed, err := AcquireLease(req.ArtifactDirectory, Lease{
		RunID:     outcome.RunID,
		Kind:      req.Kind,
		Unit:      req.UnitID,
		PID:       os.Getpid(),
		Host:      host,
		StartedAt: r.startedAt,
	}, o.config.LeaseStaleAfter, r.startedAt)
	if err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			return o.reject(outcome, r, AbortAlreadyRunning, err.Error())
		}
		return o.reject(outcome, r, AbortLeaseUnavailable, err.Error())
	}
	if reclaimed {
		o.log.Warnf("reclaimed stale lease in %s", req.ArtifactDirectory)
		o.console.Warningf("reclaimed stale run lease for %s", req.UnitID)
	}
	defer func() {
		if err := lease.Release(); err != nil {
			o.log.Errorf("failed to release lease: %v", err)
		}
	}()

	if reason, detail := o.checkRequest(req); reason != AbortNone {
		o.log.Warnf("run refused for %s: %s: %s", req.UnitID, reason, detail)
		o.console.Errorf("%s: %s", reason, detail)
		r.result = RunResult{AbortReason: reason, AbortDetail: detail}
		return o.finish(ctx, outcome, r)
	}

	existing, err := matcher.Scan(req.ArtifactDirectory)
	if err != nil {
		r.result = RunResult{AbortReason: AbortInvalidRequest, AbortDetail: err.Error()}
		return o.finish(ctx, outcome, r)
	}
	if len(existing) > 0 {
		names := artifactNames(existing)
		o.log.Infof("artifacts already present for %s: %v", req.UnitID, names)
		o.console.Warningf("%s already has %s; delete them to re-run", req.UnitID, strings.Join(names, ", "))
		r.result = RunResult{AbortReason: AbortArtifactExists, AbortDetail: strings.Join(names, ", ")}
		return o.finish(ctx, outcome, r)
	}

	if r.snapshot, err = TakeSnapshot(req.ArtifactDirectory); err != nil {
		o.log.Warnf("snapshot failed: %v", err)
	}

	o.enter(StateInvoking)
	o.console.Step(fmt.Sprintf("Invoking agent (model %s, max %d turns)", req.ModelTier, req.TurnBudget))
	r.startedAt = o.now()
	r.result = o.runner.Invoke(ctx, req)

	o.enter(StateValidating)
	o.validate(ctx, r)

	if r.result.Succeeded {
		o.enter(StateCommitting)
		o.commit(r)
	}
	if !r.result.Succeeded {
		o.enter(StateRollingBack)
		o.rollback(r)
	}

	return o.finish(ctx, outcome, r)
}

// checkLocation makes sure the run has a known kind and an artifact
// directory inside the working directory. Nothing is written otherwise.
func (o *Orchestrator) checkLocation(req WorkflowRequest) (AbortReason, string) {
	if !req.Kind.Valid() {
		return AbortInvalidRequest, fmt.Sprintf("invalid workflow kind: %q", req.Kind)
	}
	if req.WorkingDirectory == "" || req.ArtifactDirectory == "" {
		return AbortInvalidRequest, "working and artifact directories are required"
	}

	guard, err := workspace.NewGuard(req.WorkingDirectory)
	if err != nil {
		return AbortInvalidRequest, err.Error()
	}
	if err := guard.ValidatePath(req.ArtifactDirectory); err != nil {
		return AbortInvalidRequest, err.Error()
	}
	return AbortNone, ""
}

// checkRequest validates the rest of req. It runs under the lease so the
// refusal can be recorded in the audit report.
func (o *Orchestrator) checkRequest(req WorkflowRequest) (AbortReason, string) {
	if err := req.Validate(); err != nil {
		return AbortInvalidRequest, err.Error()
	}
	if err := o.constraints.ValidateRequest(req); err != nil {
		return AbortInvalidRequest, err.Error()
	}
	return AbortNone, ""
}

// reject ends a run that was refused before the artifact directory was
// touched: a bad location, or a lease held by another run. No audit report
// is written.
func (o *Orchestrator) reject(outcome *WorkflowOutcome, r *run, reason AbortReason, detail string) *WorkflowOutcome {
	r.result = RunResult{AbortReason: reason, AbortDetail: detail}
	o.log.Warnf("run refused for %s: %s", r.req.UnitID, r.result.AbortMessage())
	o.console.Errorf("%s", r.result.AbortMessage())

	o.enter(StateDone)
	outcome.Result = r.result
	outcome.AbortReason = r.result.AbortMessage()
	return outcome
}

// validate treats the filesystem as ground truth for a claimed success.
func (o *Orchestrator) validate(ctx context.Context, r *run) {
	if !r.result.Succeeded {
		o.console.Errorf("agent run failed: %s", r.result.AbortMessage())
		return
	}

	found, err := r.matcher.Scan(r.req.ArtifactDirectory)
	if err != nil {
		r.result.Downgrade(AbortArtifactMissing, err.Error())
		return
	}

	var produced, empty []string
	for _, a := range found {
		if a.Size > 0 {
			produced = append(produced, a.Name)
		} else {
			empty = append(empty, a.Name)
		}
	}
	if len(produced) == 0 {
		detail := ""
		if len(empty) > 0 {
			detail = "only empty files: " + strings.Join(empty, ", ")
		}
		r.result.Downgrade(AbortArtifactMissing, detail)
		o.console.Errorf("completion signalled but no %s artifact found", r.req.Kind)
		return
	}
	for _, name := range empty {
		if err := os.Remove(filepath.Join(r.req.ArtifactDirectory, name)); err != nil {
			o.log.Warnf("failed to remove empty artifact %s: %v", name, err)
		}
	}
	r.artifacts = produced
	o.console.Successf("found %d artifact(s): %s", len(produced), strings.Join(produced, ", "))

	if o.gates.Len() == 0 {
		return
	}
	o.console.Section("Quality Gates")
	r.gates = o.gates.RunAll(ctx, GateTarget{
		Unit:         r.req.UnitID,
		Kind:         r.req.Kind,
		WorkspaceDir: r.req.WorkingDirectory,
		ArtifactDir:  r.req.ArtifactDirectory,
		Artifacts:    produced,
	})
	for _, g := range r.gates.Results {
		o.console.QualityGate(g.Name, g.Passed, g.Error)
	}
	if !r.gates.AllPassed {
		r.result.Downgrade(AbortQualityGate, r.gates.FailedNames())
	}
}

// commit records status and usage in the feature metadata. The file is
// saved first so rollback can restore it if the update fails part way.
func (o *Orchestrator) commit(r *run) {
	if o.metadata == nil {
		return
	}

	path := filepath.Join(r.req.ArtifactDirectory, o.config.MetadataFile)
	info, err := os.Stat(path)
	if err != nil {
		o.log.Errorf("metadata file: %v", err)
		r.result.Downgrade(AbortMetadataUpdate, err.Error())
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		o.log.Errorf("metadata file: %v", err)
		r.result.Downgrade(AbortMetadataUpdate, err.Error())
		return
	}
	r.metadata = &savedFile{path: path, data: data, perm: info.Mode().Perm()}

	record := feature.UsageRecord{
		Workflow:        string(r.req.Kind),
		Date:            r.startedAt,
		AgentRole:       r.req.Kind.AgentRole(),
		Model:           r.req.ModelTier,
		InputTokens:     r.result.InputTokens,
		OutputTokens:    r.result.OutputTokens,
		CacheReadTokens: r.result.CacheReadTokens,
		CostUSD:         r.result.TotalCostUSD,
	}
	if err := o.metadata.Complete(path, r.req.Kind.CompletedStatus(), record); err != nil {
		o.log.Errorf("metadata update failed: %v", err)
		r.result.Downgrade(AbortMetadataUpdate, err.Error())
	}
}

// rollback deletes every artifact the failed run may have left. Failures are
// logged only; the audit report is the durable record.
func (o *Orchestrator) rollback(r *run) {
	r.artifacts = nil
	if r.metadata != nil {
		if err := r.metadata.restore(); err != nil {
			o.log.Errorf("rollback: %v", err)
			o.console.Warningf("rollback: %v", err)
		}
	}
	removed, errs := r.matcher.Remove(r.req.ArtifactDirectory)
	for _, err := range errs {
		o.log.Errorf("rollback: %v", err)
		o.console.Warningf("rollback: %v", err)
	}
	if len(removed) > 0 {
		o.log.Infof("rollback removed %v", removed)
		o.console.Infof("Removed partial artifacts: %s", strings.Join(removed, ", "))
	}
}

// finish writes the audit report and assembles the outcome.
func (o *Orchestrator) finish(_ context.Context, outcome *WorkflowOutcome, r *run) *WorkflowOutcome {
	o.enter(StateDone)

	req := r.req
	var changes []FileChange
	if r.snapshot != nil {
		skip := func(name string) bool {
			return r.matcher.Match(name) || name == o.audit.FileName() || name == LeaseFileName || name == o.config.MetadataFile
		}
		var err error
		if changes, err = r.snapshot.Changes(skip); err != nil {
			o.log.Warnf("workspace diff failed: %v", err)
		}
	}

	succeeded := r.result.Succeeded
	if succeeded {
		outcome.ArtifactsProduced = append(outcome.ArtifactsProduced, r.artifacts...)
	}

	auditPath, err := o.audit.Write(req.ArtifactDirectory, AuditReport{
		Unit:      req.UnitID,
		Kind:      req.Kind,
		RunID:     outcome.RunID,
		Model:     req.ModelTier,
		StartedAt: r.startedAt,
		Result:    r.result,
		Artifacts: outcome.ArtifactsProduced,
		Changes:   changes,
		Gates:     r.gates,
	})
	if err != nil {
		o.log.Errorf("audit report: %v", err)
		o.console.Errorf("failed to write audit report: %v", err)
	} else {
		outcome.AuditReportPath = auditPath
		outcome.FilesToCommit = append(outcome.FilesToCommit, o.relPath(req, auditPath))
	}

	if succeeded {
		for _, a := range outcome.ArtifactsProduced {
			outcome.FilesToCommit = append(outcome.FilesToCommit, o.relPath(req, filepath.Join(req.ArtifactDirectory, a)))
		}
		if o.metadata != nil {
			outcome.FilesToCommit = append(outcome.FilesToCommit, o.relPath(req, filepath.Join(req.ArtifactDirectory, o.config.MetadataFile)))
		}
	}

	outcome.Succeeded = succeeded
	outcome.Result = r.result
	outcome.AbortReason = r.result.AbortMessage()
	outcome.CommitMessage = commitMessage(req, outcome)

	o.log.Infof("run %s finished: succeeded=%v reason=%q files=%v", outcome.RunID, outcome.Succeeded, outcome.AbortReason, outcome.FilesToCommit)
	return outcome
}

// relPath makes p relative to the working directory with forward slashes.
func (o *Orchestrator) relPath(req WorkflowRequest, p string) string {
	rel, err := filepath.Rel(req.WorkingDirectory, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func commitMessage(req WorkflowRequest, outcome *WorkflowOutcome) string {
	if outcome.Succeeded {
		if req.Kind == KindPlan {
			return fmt.Sprintf("feat(%s): %s complete (%d plan(s))", req.UnitID, req.Kind.Command(), len(outcome.ArtifactsProduced))
		}
		return fmt.Sprintf("feat(%s): %s complete", req.UnitID, req.Kind.Command())
	}
	return fmt.Sprintf("docs(%s): %s aborted: %s", req.UnitID, req.Kind.Command(), outcome.Result.AbortReason)
}

// Publish stages and commits the outcome's files and nothing else. A failure
// here never changes the outcome; callers report it separately.
func Publish(ctx context.Context, vc VersionControl, outcome *WorkflowOutcome) (CommitResult, error) {
	if outcome == nil || len(outcome.FilesToCommit) == 0 {
		return CommitResult{}, ErrNothingToCommit
	}
	if err := vc.Stage(ctx, outcome.FilesToCommit); err != nil {
		return CommitResult{ExitCode: exitCodeOf(err)}, fmt.Errorf("commit failure: %w", err)
	}
	result, err := vc.Commit(ctx, outcome.CommitMessage, outcome.FilesToCommit)
	if err != nil {
		return result, fmt.Errorf("commit failure: %w", err)
	}
	return result, nil
}
