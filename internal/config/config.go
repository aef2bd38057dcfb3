package config

import "context"

// Package config provides configuration management for the incident
// response agent.
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (highest priority; INCIDENTAGENT_* prefix
//     for most settings; LLM_PROVIDER / LLM_MODEL / LLM_API_KEY_ENV /
//     LLM_TEMPERATURE / OPENAI_BASE_URL are read unprefixed, bypassing
//     the prefix)
//  2. YAML config file (default /etc/incident-agent/config.yaml)
//  3. Built-in defaults (lowest priority)
//
// No command-line flags are read.
//
// Main Configuration Sections:
//
//  1. Server   - webhook/query HTTP listener port, CORS origins
//  2. LLM      - provider, model, temperature, API key env var name
//  3. Agent    - max_replan_attempts, channel capacity, timeouts
//  4. Database - embedded SQLite event-log path
//  5. Logging  - audit + app log paths, rotation, level
type Config struct {
	Server struct {
		Port int
		// AllowedOrigins is a list of origins permitted to open webhook/
		// websocket connections. ["*"] allows any (development only).
		AllowedOrigins []string
	}

	LLM struct {
		Provider      string
		Model         string
		APIKeyEnv     string
		Temperature   float64
		OpenAIBaseURL string
		// Configured is computed at Load/Validate time: true once the
		// API key named by APIKeyEnv resolves to a non-empty value.
		Configured bool
	}

	Agent struct {
		MaxReplanAttempts  int
		ChannelCapacity    int
		ToolTimeoutSeconds int
		LLMTimeoutSeconds  int
		PlanTimeoutSeconds int
		RecentFactWindow   int
	}

	Database struct {
		SQLitePath string
	}

	Logging struct {
		AuditLogPath string
		AppLogPath   string
		Level        string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager rooted at configPath.
func NewConfigManager(configPath string) (ConfigManager, error) {
	return &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/incident-agent/config.yaml")
}
