package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.AgentCommand != "claude" {
		t.Errorf("AgentCommand = %q, want %q", cfg.AgentCommand, "claude")
	}
	if cfg.PortMin != 4000 || cfg.PortMax != 4100 {
		t.Errorf("port range = %d-%d, want 4000-4100", cfg.PortMin, cfg.PortMax)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("LoadFrom() created the file, want no side effects")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg.AgentCommand = "my-agent"
	cfg.AgentArgs = []string{"--resume"}
	cfg.PortMin = 5000
	cfg.PortMax = 5050
	cfg.MaxSessions = 3

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() after Save error = %v", err)
	}
	if got.AgentCommand != "my-agent" {
		t.Errorf("AgentCommand = %q, want %q", got.AgentCommand, "my-agent")
	}
	if len(got.AgentArgs) != 1 || got.AgentArgs[0] != "--resume" {
		t.Errorf("AgentArgs = %v, want [--resume]", got.AgentArgs)
	}
	if got.PortMin != 5000 || got.PortMax != 5050 {
		t.Errorf("port range = %d-%d, want 5000-5050", got.PortMin, got.PortMax)
	}
	if got.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d, want 3", got.MaxSessions)
	}
}

func TestLoadFromRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty agent command", "agent_command: \"\"\ncols: 80\nrows: 24\nport_min: 4000\nport_max: 4100\n"},
		{"zero cols", "agent_command: claude\ncols: 0\nrows: 24\nport_min: 4000\nport_max: 4100\n"},
		{"inverted port range", "agent_command: claude\ncols: 80\nrows: 24\nport_min: 5000\nport_max: 4000\n"},
		{"negative max sessions", "agent_command: claude\ncols: 80\nrows: 24\nport_min: 4000\nport_max: 4100\nmax_sessions: -1\n"},
		{"malformed yaml", "agent_command: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("LoadFrom() succeeded, want error")
			}
		})
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent_command: other-agent\ncols: 80\nrows: 24\nport_min: 4000\nport_max: 4100\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.AgentCommand != "other-agent" {
		t.Errorf("AgentCommand = %q, want %q", cfg.AgentCommand, "other-agent")
	}
	// Fields absent from the file keep their defaults.
	if cfg.MaxSessions != 8 {
		t.Errorf("MaxSessions = %d, want default 8", cfg.MaxSessions)
	}
	if cfg.WorktreeBase == "" {
		t.Error("WorktreeBase empty, want default")
	}
}
