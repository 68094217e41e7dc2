// Package config loads sine's application configuration: everything
// that is not part of the network topology itself (logging, control
// surface, discovery backend, metrics export, mobility playback). A
// YAML-backed struct with a DefaultConfig, os.ExpandEnv environment
// variable expansion, and an env override for the one setting operators
// most often need to flip without editing the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is sine's top-level application configuration.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Topology  TopologyConfig  `yaml:"topology"`
	Control   ControlConfig   `yaml:"control"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Mobility  MobilityConfig  `yaml:"mobility"`
	Solver    SolverConfig    `yaml:"solver"`
}

// FrameworkConfig holds general runtime settings.
type FrameworkConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TopologyConfig points at the network.yaml topology and sets how often
// it is polled.
type TopologyConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ControlConfig configures the HTTP control surface (C11).
type ControlConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ListenAddr     string        `yaml:"listen_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DiscoveryConfig selects and configures the container-orchestrator
// backend that resolves node -> container PID. Both backends leave the
// local interface name map empty, so topology interface names are used.
type DiscoveryConfig struct {
	// Backend is "docker" or "kurtosis".
	Backend         string `yaml:"backend"`
	KurtosisEnclave string `yaml:"kurtosis_enclave"`
}

// MetricsConfig configures the Prometheus exporter and, optionally, a
// read-back client the control surface's debug query endpoint proxies
// to.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`

	// QueryURL, when set, points at the Prometheus server scraping this
	// instance's exporter; it enables GET /metrics/query on the control
	// surface. Empty disables the endpoint.
	QueryURL     string        `yaml:"query_url"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// MobilityConfig configures the waypoint-playback companion process.
type MobilityConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WaypointFile string        `yaml:"waypoint_file"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SolverConfig optionally points at an external ray-tracing process
// (spec.md §6.1). When ExternalURL is empty, sine uses only the FSPL fallback.
type SolverConfig struct {
	ExternalURL    string        `yaml:"external_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitHz    float64       `yaml:"rate_limit_hz"`
	Burst          int           `yaml:"burst"`
}

// DefaultConfig returns sine's baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Topology: TopologyConfig{
			Path:         "network.yaml",
			PollInterval: 100 * time.Millisecond,
		},
		Control: ControlConfig{
			Enabled:        true,
			ListenAddr:     ":8002",
			RequestTimeout: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Backend: "docker",
		},
		Metrics: MetricsConfig{
			Enabled:      true,
			ListenAddr:   ":9102",
			QueryTimeout: 30 * time.Second,
		},
		Mobility: MobilityConfig{
			Enabled:      false,
			TickInterval: 1 * time.Second,
		},
		Solver: SolverConfig{
			RequestTimeout: 10 * time.Second,
			RateLimitHz:    5,
			Burst:          2,
		},
	}
}

// Load reads path as YAML over DefaultConfig, expanding environment
// variables first. A missing file is not an error: Load returns the
// defaults unchanged so a config file is optional.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "sine.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if addr := os.Getenv("SINE_CONTROL_LISTEN_ADDR"); addr != "" {
		cfg.Control.ListenAddr = addr
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
