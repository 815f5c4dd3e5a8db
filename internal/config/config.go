// Package config loads the daemon configuration from YAML with
// environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	KeyDir    string          `yaml:"key_dir"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Connections []ConnectionConfig `yaml:"connections"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // "mongodb" or "memory"
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// TransportConfig configures the outbound HTTP client.
type TransportConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// SchedulerConfig configures the sweep scheduler.
type SchedulerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	FetchWindowDays int           `yaml:"fetch_window_days"`
}

// ConnectionConfig describes one bank connection.
type ConnectionConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	HostID    string `yaml:"host_id"`
	PartnerID string `yaml:"partner_id"`
	UserID    string `yaml:"user_id"`
	SystemID  string `yaml:"system_id"`

	Fetch  bool `yaml:"fetch"`
	Submit bool `yaml:"submit"`
}

// Load reads a configuration file, expanding ${VAR} references from
// the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.KeyDir == "" {
		c.KeyDir = "keys"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "ebics"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 5 * time.Minute
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = 4
	}
	if c.Scheduler.FetchWindowDays == 0 {
		c.Scheduler.FetchWindowDays = 7
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "mongodb":
		if c.Storage.URI == "" {
			return fmt.Errorf("storage.uri is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.Name == "" {
			return fmt.Errorf("connections[%d]: name is required", i)
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connection name %q", conn.Name)
		}
		seen[conn.Name] = true
		if conn.URL == "" {
			return fmt.Errorf("connection %q: url is required", conn.Name)
		}
		if conn.HostID == "" || conn.PartnerID == "" || conn.UserID == "" {
			return fmt.Errorf("connection %q: host_id, partner_id and user_id are required", conn.Name)
		}
	}
	return nil
}
