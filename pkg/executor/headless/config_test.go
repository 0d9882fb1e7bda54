package headless

import (
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if config.Agent.Binary != "claude" {
		t.Errorf("Agent.Binary = %q, want claude", config.Agent.Binary)
	}
	if config.Agent.MaxTurns != 30 {
		t.Errorf("Agent.MaxTurns = %d, want 30", config.Agent.MaxTurns)
	}
	if !config.Git.AutoCommit {
		t.Error("AutoCommit should default to true")
	}
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	config := &Config{Agent: DefaultAgentConfig()}
	config.Agent.Timeout = 10 * time.Minute

	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if config.Audit.FileName != "AUTO-RUN.md" || config.Audit.TailLines != 50 {
		t.Errorf("audit defaults not applied: %+v", config.Audit)
	}
	if config.MetadataFile != "FEATURE.md" {
		t.Errorf("MetadataFile = %q", config.MetadataFile)
	}
	if config.LeaseStaleAfter != 15*time.Minute {
		t.Errorf("LeaseStaleAfter = %v, want 15m", config.LeaseStaleAfter)
	}
	if config.Logging.Verbosity != "normal" {
		t.Errorf("Verbosity = %q", config.Logging.Verbosity)
	}
}

func TestConfig_LeaseFollowsTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		lease   time.Duration
		want    time.Duration
	}{
		{timeout: 20 * time.Minute, want: 25 * time.Minute},
		{timeout: time.Hour, want: 65 * time.Minute},
		{timeout: time.Hour, lease: 2 * time.Hour, want: 2 * time.Hour},
	}

	for _, tt := range tests {
		config := DefaultConfig()
		config.Agent.Timeout = tt.timeout
		config.LeaseStaleAfter = tt.lease

		if err := config.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if config.LeaseStaleAfter != tt.want {
			t.Errorf("timeout %v: LeaseStaleAfter = %v, want %v", tt.timeout, config.LeaseStaleAfter, tt.want)
		}
	}
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "missing binary", modify: func(c *Config) { c.Agent.Binary = "" }},
		{name: "negative timeout", modify: func(c *Config) { c.Agent.Timeout = -time.Second }},
		{name: "negative max turns", modify: func(c *Config) { c.Agent.MaxTurns = -1 }},
		{name: "negative tail", modify: func(c *Config) { c.Audit.TailLines = -1 }},
		{name: "negative lease", modify: func(c *Config) { c.LeaseStaleAfter = -time.Minute }},
		{name: "lease shorter than timeout", modify: func(c *Config) { c.LeaseStaleAfter = c.Agent.Timeout / 2 }},
		{name: "negative turn cap", modify: func(c *Config) { c.Constraints.MaxTurnBudget = -5 }},
		{name: "unnamed gate", modify: func(c *Config) { c.QualityGates = []QualityGateConfig{{Command: "true"}} }},
		{name: "empty gate", modify: func(c *Config) { c.QualityGates = []QualityGateConfig{{Name: "x"}} }},
		{name: "push without commit", modify: func(c *Config) { c.Git.AutoCommit = false; c.Git.AutoPush = true }},
		{name: "bad verbosity", modify: func(c *Config) { c.Logging.Verbosity = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
