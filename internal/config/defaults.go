package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	cfg.LLM.Temperature = 0.2
	cfg.LLM.OpenAIBaseURL = ""

	cfg.Agent.MaxReplanAttempts = 3
	cfg.Agent.ChannelCapacity = 256
	cfg.Agent.ToolTimeoutSeconds = 30
	cfg.Agent.LLMTimeoutSeconds = 60
	cfg.Agent.PlanTimeoutSeconds = 600
	cfg.Agent.RecentFactWindow = 16

	cfg.Database.SQLitePath = "/var/lib/incident-agent/incidents.db"

	cfg.Logging.AuditLogPath = "/var/log/incident-agent/audit.log"
	cfg.Logging.AppLogPath = "/var/log/incident-agent/app.log"
	cfg.Logging.Level = "info"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
