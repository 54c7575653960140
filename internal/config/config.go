// Package config loads and persists the application configuration from
// ~/.antler/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// AgentCommand is the CLI agent executable spawned per session.
	AgentCommand string   `yaml:"agent_command"`
	AgentArgs    []string `yaml:"agent_args,omitempty"`

	// WorktreeBase is the directory under which per-session worktrees live.
	WorktreeBase string `yaml:"worktree_base"`

	// Terminal geometry for newly spawned sessions.
	Cols uint16 `yaml:"cols"`
	Rows uint16 `yaml:"rows"`

	// Port range [PortMin, PortMax) allocated to sessions.
	PortMin int `yaml:"port_min"`
	PortMax int `yaml:"port_max"`

	// MaxSessions bounds concurrently-running sessions. Zero means unbounded.
	MaxSessions int `yaml:"max_sessions,omitempty"`

	LogPath string `yaml:"log_path,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// configDir returns the path to the config directory
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".antler"), nil
}

func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AgentCommand: "claude",
		WorktreeBase: filepath.Join(os.TempDir(), "antler-worktrees"),
		Cols:         120,
		Rows:         30,
		PortMin:      4000,
		PortMax:      4100,
		MaxSessions:  8,
	}
}

// Load reads the config from disk, or returns defaults if it doesn't exist
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from an explicit path. A missing file yields
// defaults bound to that path, so the first Save creates it.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.AgentCommand == "" {
		return fmt.Errorf("agent_command must not be empty")
	}
	if c.Cols == 0 || c.Rows == 0 {
		return fmt.Errorf("cols and rows must be positive")
	}
	if c.PortMin <= 0 || c.PortMax <= c.PortMin {
		return fmt.Errorf("port range %d-%d is invalid", c.PortMin, c.PortMax)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}
	return nil
}

// Save writes the config to its file, creating the directory if needed.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		path, err := configPath()
		if err != nil {
			return err
		}
		c.filePath = path
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}
