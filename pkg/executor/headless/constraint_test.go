package headless

import (
	"errors"
	"path/filepath"
	"testing"
)

func constraintRequest(capabilities []string, turnBudget int, rel string) WorkflowRequest {
	root := filepath.FromSlash("/work/repo")
	return WorkflowRequest{
		UnitID:              "checkout-flow",
		Kind:                KindPlan,
		WorkingDirectory:    root,
		ArtifactDirectory:   filepath.Join(root, filepath.FromSlash(rel)),
		PromptBody:          "plan",
		AllowedCapabilities: capabilities,
		TurnBudget:          turnBudget,
		ModelTier:           "sonnet",
	}
}

func TestConstraintManager_ValidateRequest(t *testing.T) {
	config := DefaultConfig().Constraints
	config.MaxTurnBudget = 50
	config.AllowedPaths = []string{"docs/features/**"}

	cm, err := NewConstraintManager(config)
	if err != nil {
		t.Fatalf("NewConstraintManager() error = %v", err)
	}

	tests := []struct {
		name     string
		req      WorkflowRequest
		wantType ViolationType
	}{
		{
			name: "valid request",
			req:  constraintRequest([]string{"Read", "Write", "Bash(npm test)"}, 30, "docs/features/checkout-flow"),
		},
		{
			name:     "turn budget over cap",
			req:      constraintRequest([]string{"Read"}, 51, "docs/features/checkout-flow"),
			wantType: ViolationTurnBudget,
		},
		{
			name:     "denied capability",
			req:      constraintRequest([]string{"Read", "Bash(rm -rf /)"}, 30, "docs/features/checkout-flow"),
			wantType: ViolationCapability,
		},
		{
			name:     "artifact dir outside allowed paths",
			req:      constraintRequest([]string{"Read"}, 30, "src/checkout"),
			wantType: ViolationPath,
		},
		{
			name:     "artifact dir inside .git",
			req:      constraintRequest([]string{"Read"}, 30, ".git/hooks"),
			wantType: ViolationPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cm.ValidateRequest(tt.req)
			if tt.wantType == "" {
				if err != nil {
					t.Errorf("ValidateRequest() error = %v, want nil", err)
				}
				return
			}

			var violation *ConstraintViolation
			if !errors.As(err, &violation) {
				t.Fatalf("ValidateRequest() error = %v, want ConstraintViolation", err)
			}
			if violation.Type != tt.wantType {
				t.Errorf("violation type = %s, want %s", violation.Type, tt.wantType)
			}
		})
	}
}

func TestConstraintManager_AllowedCapabilities(t *testing.T) {
	cm, err := NewConstraintManager(ConstraintConfig{
		AllowedCapabilities: []string{"Read", "Glob", "Bash(git *)"},
	})
	if err != nil {
		t.Fatalf("NewConstraintManager() error = %v", err)
	}

	if err := cm.ValidateRequest(constraintRequest([]string{"Read", "Bash(git log)"}, 10, "docs")); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
	if err := cm.ValidateRequest(constraintRequest([]string{"Write"}, 10, "docs")); err == nil {
		t.Error("expected Write to be rejected")
	}
}

func TestNewConstraintManager_InvalidPattern(t *testing.T) {
	if _, err := NewConstraintManager(ConstraintConfig{DeniedPaths: []string{"[unclosed"}}); err == nil {
		t.Error("expected error for invalid glob")
	}
}

func TestPatternMatcher_IsAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		denied   []string
		value    string
		expected bool
	}{
		{name: "no patterns allows all", value: "docs/a.md", expected: true},
		{name: "denied wins", allowed: []string{"**"}, denied: []string{".git/**"}, value: ".git/config", expected: false},
		{name: "allowed match", allowed: []string{"docs/**"}, value: "docs/features/x", expected: true},
		{name: "allowed miss", allowed: []string{"docs/**"}, value: "src/main.go", expected: false},
		{name: "single star stops at separator", allowed: []string{"docs/*"}, value: "docs/features/x", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := NewPatternMatcher(tt.allowed, tt.denied, '/')
			if err != nil {
				t.Fatalf("NewPatternMatcher() error = %v", err)
			}
			if got := pm.IsAllowed(tt.value); got != tt.expected {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}
