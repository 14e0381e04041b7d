package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultConfigPath = "mcp-bridge.yaml"
)

// ClientInfo identifies this client during the MCP initialize handshake.
type ClientInfo struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig describes one MCP server endpoint and the Session tuning
// knobs for it. Field names track the Config surface spec.md §6 lists for
// Session construction; zero values are replaced with the documented
// defaults by Normalize.
type ServerConfig struct {
	Transport string            `yaml:"transport"` // "http" | "subprocess"
	URL       string            `yaml:"url,omitempty"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Token     string            `yaml:"-"` // from Env, never from YAML

	FailureStrategy string `yaml:"failure_strategy"` // "immediate_unregister" | "mark_unavailable"

	MaxRetries            int   `yaml:"max_retries"`
	BaseRetryDelayMs      int   `yaml:"base_retry_delay_ms"`
	MaxRetryDelayMs       int   `yaml:"max_retry_delay_ms"`
	HealthCheckIntervalMs int   `yaml:"health_check_interval_ms"`
	CapabilityTimeoutMs   int   `yaml:"capability_timeout_ms"`
	RetryJitter           *bool `yaml:"retry_jitter"`
	CircuitThreshold      int   `yaml:"circuit_threshold"`
	CircuitResetMs        int   `yaml:"circuit_reset_ms"`
}

// Normalize fills in the spec.md §6 defaults for any zero-valued field.
func (s *ServerConfig) Normalize() {
	if s.FailureStrategy == "" {
		s.FailureStrategy = "immediate_unregister"
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.BaseRetryDelayMs == 0 {
		s.BaseRetryDelayMs = 1000
	}
	if s.MaxRetryDelayMs == 0 {
		s.MaxRetryDelayMs = 30000
	}
	if s.HealthCheckIntervalMs == 0 {
		s.HealthCheckIntervalMs = 30000
	}
	if s.CapabilityTimeoutMs == 0 {
		s.CapabilityTimeoutMs = 5000
	}
	if s.RetryJitter == nil {
		t := true
		s.RetryJitter = &t
	}
	if s.CircuitThreshold == 0 {
		s.CircuitThreshold = 5
	}
	if s.CircuitResetMs == 0 {
		s.CircuitResetMs = 60000
	}
}

func (s ServerConfig) RetryDelay() time.Duration     { return time.Duration(s.BaseRetryDelayMs) * time.Millisecond }
func (s ServerConfig) MaxRetryDelay() time.Duration  { return time.Duration(s.MaxRetryDelayMs) * time.Millisecond }
func (s ServerConfig) HealthInterval() time.Duration { return time.Duration(s.HealthCheckIntervalMs) * time.Millisecond }
func (s ServerConfig) CapabilityTimeout() time.Duration {
	return time.Duration(s.CapabilityTimeoutMs) * time.Millisecond
}
func (s ServerConfig) CircuitReset() time.Duration { return time.Duration(s.CircuitResetMs) * time.Millisecond }
func (s ServerConfig) Jitter() bool {
	if s.RetryJitter == nil {
		return true
	}
	return *s.RetryJitter
}

// Config holds the configuration for the MCP tools-bridge demo.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format string `yaml:"format"` // text, json
		Output string `yaml:"output"` // stdout, stderr, /path/to/file
	} `yaml:"log"`

	Client ClientInfo `yaml:"client"`

	MCP map[string]ServerConfig `yaml:"mcp"`
}

// GetLogLevel returns the slog.Level based on Log.Level string
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from YAML file and supplements with environment variables
func LoadConfig() *Config {
	cfg := &Config{}

	// Set some defaults before loading
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Client.Name = "mcp-tools-bridge"
	cfg.Client.Version = "0.1.0"

	// Try to load from YAML
	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else {
		if !os.IsNotExist(err) {
			slog.Error("read config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config not found, using defaults", "path", configPath)
	}

	if cfg.MCP == nil {
		cfg.MCP = map[string]ServerConfig{}
	}
	for name, sc := range cfg.MCP {
		sc.Normalize()
		sc.Token = getEnv(tokenEnvVar(name), sc.Token)
		cfg.MCP[name] = sc
	}

	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		cfg.Log.Level = envLogLevel
	}
	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		cfg.Log.Format = envLogFormat
	}
	if envLogOutput := os.Getenv("LOG_OUTPUT"); envLogOutput != "" {
		cfg.Log.Output = envLogOutput
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if len(c.MCP) == 0 {
		errs = append(errs, "at least one MCP server must be configured")
	}
	for name, sc := range c.MCP {
		switch sc.Transport {
		case "http":
			if sc.URL == "" {
				errs = append(errs, fmt.Sprintf("server %q: url is required for http transport", name))
			}
		case "subprocess":
			if sc.Command == "" {
				errs = append(errs, fmt.Sprintf("server %q: command is required for subprocess transport", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("server %q: unknown transport %q", name, sc.Transport))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Helper functions for reading environment variables

func tokenEnvVar(serverName string) string {
	return "MCP_" + strings.ToUpper(strings.ReplaceAll(serverName, "-", "_")) + "_TOKEN"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
