// Package config loads gfd-headless settings.
//
// Precedence, highest first: CLI flags > GFD_* environment (including a
// workspace .env file) > .gfd-headless.yaml > defaults. Model selection comes
// from docs/features/config.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/gfd/pkg/executor/headless"
)

// RunnerConfigFile is the default runner settings file in the workspace.
const RunnerConfigFile = ".gfd-headless.yaml"

// Environment overrides.
const (
	EnvAgentBinary  = "GFD_AGENT_BINARY"
	EnvMaxTurns     = "GFD_MAX_TURNS"
	EnvTimeout      = "GFD_TIMEOUT"
	EnvModelProfile = "GFD_MODEL_PROFILE"
	EnvVerbosity    = "GFD_VERBOSITY"
)

// Settings is everything a headless run needs from configuration.
type Settings struct {
	Runner  *headless.Config
	Project *ProjectConfig

	// RunnerPath is the runner file that was read, empty when none was.
	RunnerPath string
}

// Load reads all configuration for workspaceDir. runnerPath may be empty to
// use RunnerConfigFile in the workspace; an explicit path must exist.
func Load(workspaceDir, runnerPath string) (*Settings, error) {
	if err := loadDotEnv(workspaceDir); err != nil {
		return nil, err
	}

	explicit := runnerPath != ""
	if !explicit {
		runnerPath = filepath.Join(workspaceDir, RunnerConfigFile)
	}

	runner, err := loadRunnerFromFile(runnerPath)
	switch {
	case err == nil:
	case os.IsNotExist(err) && !explicit:
		runner, runnerPath = headless.DefaultConfig(), ""
	default:
		return nil, err
	}

	if err := applyEnv(runner); err != nil {
		return nil, err
	}

	project, err := LoadProject(workspaceDir)
	if err != nil {
		return nil, err
	}
	if profile := os.Getenv(EnvModelProfile); profile != "" {
		project.ModelProfile = profile
	}

	return &Settings{Runner: runner, Project: project, RunnerPath: runnerPath}, nil
}

// loadDotEnv exports variables from <workspace>/.env that are not already
// set. The agent process inherits them.
func loadDotEnv(workspaceDir string) error {
	path := filepath.Join(workspaceDir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadRunnerFromFile loads runner settings from a YAML file on top of the
// defaults.
func loadRunnerFromFile(path string) (*headless.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := headless.DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

func applyEnv(c *headless.Config) error {
	if v := os.Getenv(EnvAgentBinary); v != "" {
		c.Agent.Binary = v
	}
	if v := os.Getenv(EnvMaxTurns); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvMaxTurns, v)
		}
		c.Agent.MaxTurns = n
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Agent.Timeout = d
	}
	if v := os.Getenv(EnvVerbosity); v != "" {
		c.Logging.Verbosity = strings.ToLower(v)
	}
	return nil
}
