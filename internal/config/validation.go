package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	validProviders := map[string]bool{
		"openai":    true,
		"anthropic": true,
		"ollama":    true,
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, anthropic, ollama", c.LLM.Provider),
		})
	}

	if c.LLM.APIKeyEnv == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.api_key_env",
			Message: "api_key_env must name the environment variable holding the provider credential",
		})
	} else {
		// Missing credentials are not fatal: the LLM agents degrade to
		// runbook-only operation and facts that match no runbook get no
		// action. Configured only records the fact.
		c.LLM.Configured = os.Getenv(c.LLM.APIKeyEnv) != ""
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, &ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 2, got %f", c.LLM.Temperature),
		})
	}

	if c.Agent.MaxReplanAttempts < 1 {
		errs = append(errs, &ValidationError{
			Field:   "agent.max_replan_attempts",
			Message: fmt.Sprintf("max_replan_attempts must be at least 1, got %d", c.Agent.MaxReplanAttempts),
		})
	}

	if c.Agent.ChannelCapacity < 1 {
		errs = append(errs, &ValidationError{
			Field:   "agent.channel_capacity",
			Message: fmt.Sprintf("channel_capacity must be at least 1, got %d", c.Agent.ChannelCapacity),
		})
	}

	if c.Agent.ToolTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "agent.tool_timeout_seconds",
			Message: fmt.Sprintf("tool_timeout_seconds must be at least 1, got %d", c.Agent.ToolTimeoutSeconds),
		})
	}

	if c.Agent.LLMTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "agent.llm_timeout_seconds",
			Message: fmt.Sprintf("llm_timeout_seconds must be at least 1, got %d", c.Agent.LLMTimeoutSeconds),
		})
	}

	if c.Agent.PlanTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "agent.plan_timeout_seconds",
			Message: fmt.Sprintf("plan_timeout_seconds must be at least 1, got %d", c.Agent.PlanTimeoutSeconds),
		})
	}

	if c.Agent.RecentFactWindow < 1 || c.Agent.RecentFactWindow > 50 {
		errs = append(errs, &ValidationError{
			Field:   "agent.recent_fact_window",
			Message: fmt.Sprintf("recent_fact_window must be between 1 and 50, got %d", c.Agent.RecentFactWindow),
		})
	}

	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if c.Logging.AuditLogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "logging.audit_log_path",
			Message: "audit_log_path is required",
		})
	}

	if c.Logging.AppLogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "logging.app_log_path",
			Message: "app_log_path is required",
		})
	}

	return errs
}
