// Package config provides configuration loading for TaskDesk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete TaskDesk configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// ServerConfig configures the daemon.
type ServerConfig struct {
	// Listen is the HTTP API listen address.
	Listen string `yaml:"listen"`
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`
}

// WorkflowConfig configures negotiation defaults.
type WorkflowConfig struct {
	// DefaultSLAHours is used when a create request omits sla_hours.
	DefaultSLAHours int `yaml:"default_sla_hours"`
	// ReopenSLAHours computes reopen_due_at for reopened tasks.
	ReopenSLAHours int `yaml:"reopen_sla_hours"`
	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:7521",
			DBPath: filepath.Join(homeDir, ".taskdesk", "taskdesk.db"),
		},
		Workflow: WorkflowConfig{
			DefaultSLAHours: 24,
			ReopenSLAHours:  48,
			SweepInterval:   time.Minute,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("server.db_path is required")
	}
	if c.Workflow.DefaultSLAHours < 1 || c.Workflow.DefaultSLAHours > 168 {
		return fmt.Errorf("workflow.default_sla_hours must be between 1 and 168")
	}
	if c.Workflow.ReopenSLAHours < 1 {
		return fmt.Errorf("workflow.reopen_sla_hours must be positive")
	}
	if c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("workflow.sweep_interval must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, applying defaults
// for unset fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
