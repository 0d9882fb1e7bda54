package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectConfigFile is the toolkit's per-repository settings file, relative
// to the workspace root.
const ProjectConfigFile = "docs/features/config.json"

// DefaultModel is used when no profile names a model for an agent.
const DefaultModel = "sonnet"

// ModelProfiles maps a profile name to the model tier of each agent role.
var ModelProfiles = map[string]map[string]string{
	"quality": {
		"gfd-planner":         "opus",
		"gfd-executor":        "opus",
		"gfd-verifier":        "opus",
		"gfd-researcher":      "opus",
		"gfd-codebase-mapper": "sonnet",
	},
	"balanced": {
		"gfd-planner":         "sonnet",
		"gfd-executor":        "sonnet",
		"gfd-verifier":        "sonnet",
		"gfd-researcher":      "sonnet",
		"gfd-codebase-mapper": "haiku",
	},
	"budget": {
		"gfd-planner":         "sonnet",
		"gfd-executor":        "haiku",
		"gfd-verifier":        "haiku",
		"gfd-researcher":      "haiku",
		"gfd-codebase-mapper": "haiku",
	},
}

// ProjectConfig is the subset of config.json the headless runner reads.
type ProjectConfig struct {
	ModelProfile   string            `json:"model_profile"`
	ModelOverrides map[string]string `json:"model_overrides"`
	PathPrefix     string            `json:"path_prefix"`
	Research       bool              `json:"research"`
	PlanChecker    bool              `json:"plan_checker"`
	AutoAdvance    bool              `json:"auto_advance"`
}

// DefaultProjectConfig returns the settings used when config.json is absent.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		ModelProfile:   "balanced",
		ModelOverrides: map[string]string{},
		PathPrefix:     "docs/features",
		Research:       true,
		PlanChecker:    true,
	}
}

// rawProjectConfig accepts both the flat and the nested config.json layouts.
type rawProjectConfig struct {
	ModelProfile   *string           `json:"model_profile"`
	ModelOverrides map[string]string `json:"model_overrides"`
	PathPrefix     *string           `json:"path_prefix"`
	Research       *bool             `json:"research"`
	PlanChecker    *bool             `json:"plan_checker"`
	AutoAdvance    *bool             `json:"auto_advance"`
	Workflow       *struct {
		Research    *bool `json:"research"`
		PlanCheck   *bool `json:"plan_check"`
		PlanChecker *bool `json:"plan_checker"`
		AutoAdvance *bool `json:"auto_advance"`
	} `json:"workflow"`
}

// LoadProject reads config.json from the workspace. A missing file yields
// the defaults; a malformed one is an error.
func LoadProject(workspaceDir string) (*ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	path := filepath.Join(workspaceDir, filepath.FromSlash(ProjectConfigFile))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ProjectConfigFile, err)
	}

	var raw rawProjectConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ProjectConfigFile, err)
	}

	if w := raw.Workflow; w != nil {
		setBool(&cfg.Research, w.Research)
		setBool(&cfg.PlanChecker, w.PlanCheck)
		setBool(&cfg.PlanChecker, w.PlanChecker)
		setBool(&cfg.AutoAdvance, w.AutoAdvance)
	}
	setBool(&cfg.Research, raw.Research)
	setBool(&cfg.PlanChecker, raw.PlanChecker)
	setBool(&cfg.AutoAdvance, raw.AutoAdvance)

	if raw.ModelProfile != nil && *raw.ModelProfile != "" {
		cfg.ModelProfile = *raw.ModelProfile
	}
	if raw.PathPrefix != nil && *raw.PathPrefix != "" {
		cfg.PathPrefix = *raw.PathPrefix
	}
	for agent, model := range raw.ModelOverrides {
		if model != "" {
			cfg.ModelOverrides[agent] = model
		}
	}
	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// ResolveModel returns the model tier for an agent role: an explicit
// override, then the profile table (unknown profiles fall back to
// balanced), then DefaultModel.
func (c *ProjectConfig) ResolveModel(agentRole string) string {
	if m := c.ModelOverrides[agentRole]; m != "" {
		return m
	}
	profile, ok := ModelProfiles[c.ModelProfile]
	if !ok {
		profile = ModelProfiles["balanced"]
	}
	if m, ok := profile[agentRole]; ok {
		return m
	}
	return DefaultModel
}
