package headless

import (
	"fmt"
	"time"
)

// Config holds runner settings shared by every workflow request.
type Config struct {
	// Agent launch settings
	Agent AgentConfig `yaml:"agent" json:"agent"`

	// Audit report settings
	Audit AuditConfig `yaml:"audit" json:"audit"`

	// Quality gates run against artifacts before committing
	QualityGates []QualityGateConfig `yaml:"quality_gates" json:"quality_gates"`

	// Git configuration
	Git GitConfig `yaml:"git" json:"git"`

	// Request constraints
	Constraints ConstraintConfig `yaml:"constraints" json:"constraints"`

	// LeaseStaleAfter is how old a lock file must be before it is reclaimed.
	// Zero means agent timeout plus five minutes.
	LeaseStaleAfter time.Duration `yaml:"lease_stale_after" json:"lease_stale_after"`

	// MetadataFile is the per-feature file holding status and usage.
	MetadataFile string `yaml:"metadata_file" json:"metadata_file"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AuditConfig controls the audit report.
type AuditConfig struct {
	FileName  string `yaml:"file_name" json:"file_name"`
	TailLines int    `yaml:"tail_lines" json:"tail_lines"`
}

// QualityGateConfig defines a quality gate to run before committing
type QualityGateConfig struct {
	Name     string        `yaml:"name" json:"name"`
	Command  string        `yaml:"command" json:"command"`
	Contains string        `yaml:"contains" json:"contains"`
	Required bool          `yaml:"required" json:"required"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// GitConfig defines git operation configuration
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit" json:"auto_commit"`
	AutoPush    bool   `yaml:"auto_push" json:"auto_push"`
	Remote      string `yaml:"remote" json:"remote"`
	AuthorName  string `yaml:"author_name" json:"author_name"`
	AuthorEmail string `yaml:"author_email" json:"author_email"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// Validate validates the configuration and fills derived defaults
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("invalid agent configuration: %w", err)
	}

	if c.Audit.FileName == "" {
		c.Audit.FileName = "AUTO-RUN.md"
	}
	if c.Audit.TailLines < 0 {
		return fmt.Errorf("audit tail_lines cannot be negative")
	}
	if c.Audit.TailLines == 0 {
		c.Audit.TailLines = 50
	}

	if c.MetadataFile == "" {
		c.MetadataFile = "FEATURE.md"
	}

	if c.LeaseStaleAfter < 0 {
		return fmt.Errorf("lease_stale_after cannot be negative")
	}
	if c.LeaseStaleAfter == 0 && c.Agent.Timeout > 0 {
		c.LeaseStaleAfter = c.Agent.Timeout + 5*time.Minute
	}
	if c.Agent.Timeout > 0 && c.LeaseStaleAfter <= c.Agent.Timeout {
		return fmt.Errorf("lease_stale_after (%s) must exceed agent timeout (%s)", c.LeaseStaleAfter, c.Agent.Timeout)
	}

	if c.Constraints.MaxTurnBudget < 0 {
		return fmt.Errorf("max_turn_budget cannot be negative")
	}

	for i, gate := range c.QualityGates {
		if gate.Name == "" {
			return fmt.Errorf("quality gate %d has no name", i)
		}
		if gate.Command == "" && gate.Contains == "" {
			return fmt.Errorf("quality gate '%s' needs a command or contains check", gate.Name)
		}
		if gate.Timeout < 0 {
			return fmt.Errorf("quality gate '%s' timeout cannot be negative", gate.Name)
		}
	}

	if c.Git.AutoPush && !c.Git.AutoCommit {
		return fmt.Errorf("auto_push requires auto_commit to be enabled")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Agent: DefaultAgentConfig(),
		Audit: AuditConfig{
			FileName:  "AUTO-RUN.md",
			TailLines: 50,
		},
		Git: GitConfig{
			AutoCommit: true,
		},
		Constraints: ConstraintConfig{
			DeniedCapabilities: []string{"Bash(rm -rf*)"},
			AllowedPaths:       []string{"**"},
			DeniedPaths:        []string{".git", ".git/**"},
		},
		MetadataFile: "FEATURE.md",
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}
