package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Workflow.DefaultSLAHours != 24 {
		t.Errorf("Expected default SLA 24h, got %d", cfg.Workflow.DefaultSLAHours)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  listen: "0.0.0.0:9000"
workflow:
  default_sla_hours: 48
  sweep_interval: 30s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("Expected listen override, got %s", cfg.Server.Listen)
	}
	if cfg.Workflow.DefaultSLAHours != 48 {
		t.Errorf("Expected SLA override 48, got %d", cfg.Workflow.DefaultSLAHours)
	}
	if cfg.Workflow.SweepInterval != 30*time.Second {
		t.Errorf("Expected sweep interval 30s, got %v", cfg.Workflow.SweepInterval)
	}
	// Unset fields keep defaults
	if cfg.Workflow.ReopenSLAHours != 48 {
		t.Errorf("Expected default reopen SLA, got %d", cfg.Workflow.ReopenSLAHours)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("workflow:\n  default_sla_hours: 500\n"), 0644)

	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected validation error for out-of-range SLA hours")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing listen address")
	}

	cfg = DefaultConfig()
	cfg.Workflow.SweepInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero sweep interval")
	}
}
