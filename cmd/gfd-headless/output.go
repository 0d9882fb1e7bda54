package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/entrhq/gfd/pkg/executor/headless"
)

// jsonOutcome is the --json document.
type jsonOutcome struct {
	Outcome *headless.WorkflowOutcome `json:"outcome"`
	Commit  *headless.CommitResult    `json:"commit,omitempty"`
}

// writeOutcome prints the machine-readable result of a run.
func writeOutcome(w io.Writer, outcome *headless.WorkflowOutcome, commit *headless.CommitResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonOutcome{Outcome: outcome, Commit: commit})
	}

	kv := func(key string, value interface{}) {
		fmt.Fprintf(w, "%s=%v\n", key, value)
	}

	if outcome.Succeeded {
		kv("result", "success")
		if outcome.Kind == headless.KindPlan {
			kv("plan_count", len(outcome.ArtifactsProduced))
			for _, a := range outcome.ArtifactsProduced {
				kv("plan", a)
			}
		} else {
			for _, a := range outcome.ArtifactsProduced {
				kv("artifact", a)
			}
		}
	} else {
		kv("result", "aborted")
		kv("abort_reason", outcome.AbortReason)
	}

	if outcome.AuditReportPath != "" {
		kv("audit", outcome.AuditReportPath)
	}
	kv("duration_seconds", fmt.Sprintf("%.1f", outcome.Result.DurationSeconds))
	if commit != nil && commit.Hash != "" {
		kv("commit", commit.Hash)
	}
	return nil
}
