// ABOUTME: Daemon configuration loading and parsing for clawpald.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete clawpald configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	SSHHosts []SSHHost      `yaml:"ssh_hosts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig holds the gateway endpoint configuration.
type GatewayConfig struct {
	// URL is the gateway WebSocket endpoint, e.g. ws://127.0.0.1:18789.
	URL string `yaml:"url"`
}

// BridgeConfig holds node-bridge timing configuration.
type BridgeConfig struct {
	RequestTimeout  time.Duration `yaml:"-"`
	AutoRejectDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw  string `yaml:"request_timeout"`
	AutoRejectDelayRaw string `yaml:"auto_reject_delay"`
}

// SSHHost describes one remote host the daemon can run commands on.
type SSHHost struct {
	ID         string `yaml:"id"`
	Label      string `yaml:"label"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	AuthMethod string `yaml:"auth_method"` // "key" | "ssh_config"
	KeyPath    string `yaml:"key_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}

	for i, h := range c.SSHHosts {
		if h.ID == "" {
			return fmt.Errorf("ssh_hosts[%d].id is required", i)
		}
		if h.Host == "" {
			return fmt.Errorf("ssh_hosts[%d].host is required", i)
		}
		switch h.AuthMethod {
		case "", "key", "ssh_config":
		default:
			return fmt.Errorf("ssh_hosts[%d].auth_method must be \"key\" or \"ssh_config\"", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bridge.RequestTimeoutRaw != "" {
		cfg.Bridge.RequestTimeout, err = time.ParseDuration(cfg.Bridge.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Bridge.RequestTimeoutRaw, err)
		}
	}

	if cfg.Bridge.AutoRejectDelayRaw != "" {
		cfg.Bridge.AutoRejectDelay, err = time.ParseDuration(cfg.Bridge.AutoRejectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing auto_reject_delay %q: %w", cfg.Bridge.AutoRejectDelayRaw, err)
		}
	}

	return nil
}
