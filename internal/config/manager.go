package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("INCIDENTAGENT")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file - defaults + env vars only
		} else if os.IsNotExist(err) {
			// same
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
			// channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.api_key_env", defaults.LLM.APIKeyEnv)
	m.viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	m.viper.SetDefault("llm.openai_base_url", defaults.LLM.OpenAIBaseURL)

	m.viper.SetDefault("agent.max_replan_attempts", defaults.Agent.MaxReplanAttempts)
	m.viper.SetDefault("agent.channel_capacity", defaults.Agent.ChannelCapacity)
	m.viper.SetDefault("agent.tool_timeout_seconds", defaults.Agent.ToolTimeoutSeconds)
	m.viper.SetDefault("agent.llm_timeout_seconds", defaults.Agent.LLMTimeoutSeconds)
	m.viper.SetDefault("agent.plan_timeout_seconds", defaults.Agent.PlanTimeoutSeconds)
	m.viper.SetDefault("agent.recent_fact_window", defaults.Agent.RecentFactWindow)

	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.APIKeyEnv = m.viper.GetString("llm.api_key_env")
	cfg.LLM.Temperature = m.viper.GetFloat64("llm.temperature")
	cfg.LLM.OpenAIBaseURL = m.viper.GetString("llm.openai_base_url")

	cfg.Agent.MaxReplanAttempts = m.viper.GetInt("agent.max_replan_attempts")
	cfg.Agent.ChannelCapacity = m.viper.GetInt("agent.channel_capacity")
	cfg.Agent.ToolTimeoutSeconds = m.viper.GetInt("agent.tool_timeout_seconds")
	cfg.Agent.LLMTimeoutSeconds = m.viper.GetInt("agent.llm_timeout_seconds")
	cfg.Agent.PlanTimeoutSeconds = m.viper.GetInt("agent.plan_timeout_seconds")
	cfg.Agent.RecentFactWindow = m.viper.GetInt("agent.recent_fact_window")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies the unprefixed environment variables named
// explicitly in the webhook/LLM wiring: LLM_PROVIDER, LLM_MODEL,
// LLM_API_KEY_ENV, LLM_TEMPERATURE and OPENAI_BASE_URL bypass the
// INCIDENTAGENT_ prefix entirely.
func (m *viperConfigManager) applyEnvOverrides() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		m.config.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		m.config.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY_ENV"); v != "" {
		m.config.LLM.APIKeyEnv = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m.config.LLM.Temperature = f
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		m.config.LLM.OpenAIBaseURL = v
	}

	if key := os.Getenv(m.config.LLM.APIKeyEnv); key != "" {
		m.config.LLM.Configured = true
	}
}
