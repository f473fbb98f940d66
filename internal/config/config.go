package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode says whether a remote store is configured. It is resolved once at
// startup and injected into every manager, never re-evaluated mid-session.
type Mode int

const (
	ModeCache Mode = iota
	ModeRemote
)

func (m Mode) RemoteActive() bool { return m == ModeRemote }

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "cache"
}

// Config models opsline.yml.
type Config struct {
	Remote struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"remote"`
	Session struct {
		TimeoutMinutes int `yaml:"timeout_minutes"`
		WarningMinutes int `yaml:"warning_minutes"`
	} `yaml:"session"`
	Activity struct {
		MaxCachedEntries int `yaml:"max_cached_entries"`
	} `yaml:"activity"`
	Server struct {
		JWTSecret string `yaml:"jwt_secret"`
		DevAuth   bool   `yaml:"dev_auth"`
	} `yaml:"server"`
}

// Mode resolves the storage mode from the presence of a remote URL.
func (c *Config) Mode() Mode {
	if c.Remote.URL != "" {
		return ModeRemote
	}
	return ModeCache
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

func (c *Config) SessionWarning() time.Duration {
	return time.Duration(c.Session.WarningMinutes) * time.Minute
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Session.TimeoutMinutes <= 0 {
		return fmt.Errorf("config.session.timeout_minutes must be positive")
	}
	if c.Session.WarningMinutes <= 0 {
		return fmt.Errorf("config.session.warning_minutes must be positive")
	}
	if c.Session.WarningMinutes >= c.Session.TimeoutMinutes {
		return fmt.Errorf("config.session.warning_minutes must be less than timeout_minutes")
	}
	if c.Activity.MaxCachedEntries <= 0 {
		return fmt.Errorf("config.activity.max_cached_entries must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "opsline.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration: cache-only mode, the
// reference 30 minute inactivity timeout with a 5 minute warning lead,
// and a 200 entry cap on the cached activity log.
func Default() *Config {
	var cfg Config
	cfg.Session.TimeoutMinutes = 30
	cfg.Session.WarningMinutes = 5
	cfg.Activity.MaxCachedEntries = 200
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted
// sections keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
