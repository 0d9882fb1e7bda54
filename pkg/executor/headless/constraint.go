package headless

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/gobwas/glob"
)

// ConstraintConfig limits what a headless run may ask the agent to do.
type ConstraintConfig struct {
	// Capability limits. Allowed empty means any capability not denied.
	AllowedCapabilities []string `yaml:"allowed_capabilities" json:"allowed_capabilities"`
	DeniedCapabilities  []string `yaml:"denied_capabilities" json:"denied_capabilities"`

	// MaxTurnBudget caps the per-run turn budget. Zero means no cap.
	MaxTurnBudget int `yaml:"max_turn_budget" json:"max_turn_budget"`

	// Path patterns the artifact directory (relative to the workspace)
	// must satisfy.
	AllowedPaths []string `yaml:"allowed_paths" json:"allowed_paths"`
	DeniedPaths  []string `yaml:"denied_paths" json:"denied_paths"`
}

// ConstraintViolation represents a constraint violation error
type ConstraintViolation struct {
	Type    ViolationType
	Message string
	Details map[string]interface{}
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation (%s): %s", e.Type, e.Message)
}

// ViolationType identifies the type of constraint that was violated
type ViolationType string

const (
	ViolationCapability ViolationType = "capability"
	ViolationTurnBudget ViolationType = "turn_budget"
	ViolationPath       ViolationType = "path"
)

// ConstraintManager checks workflow requests against configured limits
// before any agent is started.
type ConstraintManager struct {
	config       ConstraintConfig
	capabilities *PatternMatcher
	paths        *PatternMatcher
}

// NewConstraintManager compiles the configured patterns.
func NewConstraintManager(config ConstraintConfig) (*ConstraintManager, error) {
	capabilities, err := NewPatternMatcher(config.AllowedCapabilities, config.DeniedCapabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to compile capability patterns: %w", err)
	}
	paths, err := NewPatternMatcher(config.AllowedPaths, config.DeniedPaths, '/')
	if err != nil {
		return nil, fmt.Errorf("failed to compile path patterns: %w", err)
	}

	return &ConstraintManager{
		config:       config,
		capabilities: capabilities,
		paths:        paths,
	}, nil
}

// ValidateRequest returns the first violation in req, or nil.
func (cm *ConstraintManager) ValidateRequest(req WorkflowRequest) error {
	if cm.config.MaxTurnBudget > 0 && req.TurnBudget > cm.config.MaxTurnBudget {
		return &ConstraintViolation{
			Type:    ViolationTurnBudget,
			Message: fmt.Sprintf("turn budget %d exceeds maximum %d", req.TurnBudget, cm.config.MaxTurnBudget),
			Details: map[string]interface{}{
				"turn_budget":     req.TurnBudget,
				"max_turn_budget": cm.config.MaxTurnBudget,
			},
		}
	}

	for _, capability := range req.AllowedCapabilities {
		if !cm.capabilities.IsAllowed(capability) {
			return &ConstraintViolation{
				Type:    ViolationCapability,
				Message: fmt.Sprintf("capability '%s' is not permitted", capability),
				Details: map[string]interface{}{
					"capability":           capability,
					"allowed_capabilities": cm.config.AllowedCapabilities,
					"denied_capabilities":  cm.config.DeniedCapabilities,
				},
			}
		}
	}

	rel, err := filepath.Rel(req.WorkingDirectory, req.ArtifactDirectory)
	if err != nil {
		rel = req.ArtifactDirectory
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if !cm.paths.IsAllowed(rel) {
		return &ConstraintViolation{
			Type:    ViolationPath,
			Message: fmt.Sprintf("artifact directory '%s' does not match allowed paths", rel),
			Details: map[string]interface{}{
				"path":          rel,
				"allowed_paths": cm.config.AllowedPaths,
				"denied_paths":  cm.config.DeniedPaths,
			},
		}
	}

	return nil
}

// PatternMatcher handles glob allow/deny matching
type PatternMatcher struct {
	allowedPatterns []glob.Glob
	deniedPatterns  []glob.Glob
}

// NewPatternMatcher creates a new pattern matcher. Separators, when given,
// stop single-star wildcards from crossing them.
func NewPatternMatcher(allowed, denied []string, separators ...rune) (*PatternMatcher, error) {
	pm := &PatternMatcher{}

	for _, pattern := range allowed {
		g, err := glob.Compile(pattern, separators...)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		pm.allowedPatterns = append(pm.allowedPatterns, g)
	}

	for _, pattern := range denied {
		g, err := glob.Compile(pattern, separators...)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		pm.deniedPatterns = append(pm.deniedPatterns, g)
	}

	return pm, nil
}

// IsAllowed returns true if the value is allowed by the pattern rules
func (pm *PatternMatcher) IsAllowed(value string) bool {
	// Denied patterns take precedence
	for _, pattern := range pm.deniedPatterns {
		if pattern.Match(value) {
			return false
		}
	}

	// If no allowed patterns specified, allow all (except denied)
	if len(pm.allowedPatterns) == 0 {
		return true
	}

	for _, pattern := range pm.allowedPatterns {
		if pattern.Match(value) {
			return true
		}
	}

	return false
}
