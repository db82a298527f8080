// Package config loads the engine configuration from YAML
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skimworks/skim/types"
)

// Config is the engine's operator-supplied configuration
type Config struct {
	Version  string         `yaml:"version"`
	Provider string         `yaml:"provider"`
	Accounts []string       `yaml:"accounts"`
	Regions  []string       `yaml:"regions"`
	Families []types.Family `yaml:"families,omitempty"`

	RulesPath   string `yaml:"rules_path"`
	PricingPath string `yaml:"pricing_path"`
	StorageDir  string `yaml:"storage_dir"`

	Scan      Scan      `yaml:"scan,omitempty"`
	Metrics   Metrics   `yaml:"metrics,omitempty"`
	Daemon    Daemon    `yaml:"daemon,omitempty"`
	Telemetry Telemetry `yaml:"telemetry,omitempty"`
}

// Scan tunes scan concurrency and unit retry behavior
type Scan struct {
	UnitWorkers  int `yaml:"unit_workers,omitempty"`
	UnitAttempts int `yaml:"unit_attempts,omitempty"`
}

// Metrics tunes the metric source and the provider rate limits
type Metrics struct {
	CallsPerSecond float64       `yaml:"calls_per_second,omitempty"`
	Burst          int           `yaml:"burst,omitempty"`
	CacheTTL       time.Duration `yaml:"cache_ttl,omitempty"`
}

// Daemon tunes continuous operation
type Daemon struct {
	Interval   time.Duration `yaml:"interval,omitempty"`
	ListenAddr string        `yaml:"listen_addr,omitempty"`
}

// Telemetry configures logging and export
type Telemetry struct {
	LogLevel     string `yaml:"log_level,omitempty"`
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
}

// Load reads, parses and validates a configuration file, then fills
// in defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate ensures the config has the required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if c.RulesPath == "" {
		return fmt.Errorf("rules_path is required")
	}
	if c.PricingPath == "" {
		return fmt.Errorf("pricing_path is required")
	}

	known := map[types.Family]bool{}
	for _, family := range types.KnownFamilies() {
		known[family] = true
	}
	for _, family := range c.Families {
		if !known[family] {
			return fmt.Errorf("unknown family %q", family)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Families) == 0 {
		c.Families = types.KnownFamilies()
	}
	if c.StorageDir == "" {
		c.StorageDir = "."
	}
	if c.Scan.UnitWorkers <= 0 {
		c.Scan.UnitWorkers = 4
	}
	if c.Scan.UnitAttempts <= 0 {
		c.Scan.UnitAttempts = 2
	}
	if c.Metrics.CallsPerSecond <= 0 {
		c.Metrics.CallsPerSecond = 10
	}
	if c.Metrics.Burst <= 0 {
		c.Metrics.Burst = 5
	}
	if c.Metrics.CacheTTL <= 0 {
		c.Metrics.CacheTTL = 10 * time.Minute
	}
	if c.Daemon.Interval <= 0 {
		c.Daemon.Interval = time.Hour
	}
	if c.Daemon.ListenAddr == "" {
		c.Daemon.ListenAddr = ":9090"
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "info"
	}
}
