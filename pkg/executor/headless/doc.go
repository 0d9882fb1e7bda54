// Package headless runs gfd's auto-research and auto-plan workflows without a
// human at the keyboard.
//
// A run hands one feature to the agent CLI (claude -p) as a child process,
// reads its stream-json output, and decides whether the workflow really
// finished. The filesystem is the ground truth: a completion marker without a
// non-empty artifact on disk is still a failure.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                     Orchestrator                        │
//	│  Preflight -> Invoking -> Validating -> Committing      │
//	│                              └-> RollingBack -> Done    │
//	└──────────┬──────────────────────────────┬───────────────┘
//	           │                              │
//	           ▼                              ▼
//	┌──────────────────────┐       ┌──────────────────────┐
//	│   Invoker (Runner)   │       │ Audit, Gates, Lease  │
//	│ stdin prompt, drained│       │ Metadata, Git sink   │
//	│ stdout/stderr pipes  │       └──────────────────────┘
//	└──────────┬───────────┘
//	           ▼
//	┌──────────────────────┐
//	│  StreamJSONReader    │
//	│  + Classify          │
//	└──────────────────────┘
//
// Example usage:
//
//	config := headless.DefaultConfig()
//	orch, _ := headless.NewOrchestrator(config, headless.NewInvoker(config.Agent),
//	    headless.WithMetadataStore(feature.NewStore()))
//
//	req, _ := headless.NewWorkflowRequest("checkout-flow", headless.KindPlan,
//	    root, featureDir, prompt, config.Agent.Capabilities, 30, "sonnet")
//	outcome := orch.Run(ctx, req)
//
//	git := headless.NewGitManager(root, config.Git)
//	commit, err := headless.Publish(ctx, git, outcome)
//
// Safety:
//
// The run lease (.auto-run.lock) keeps two runs out of one feature directory.
// Existing artifacts stop a run before the agent is spawned; they are never
// overwritten. Any failure after spawn removes every artifact the run may have
// written, and AUTO-RUN.md is always left behind describing what happened.
package headless
