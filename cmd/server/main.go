package main

// Package main is the entry point for the incident response agent.
//
// Startup order:
//  1. Load and validate configuration (YAML + env, see internal/config).
//  2. Open the audit logger and the SQLite-backed event log.
//  3. Build the action registry, seed runbooks, and the Kubernetes tool
//     executor the BDI loop drives runbook steps through.
//  4. Construct the LLM agent bundle, only if an API key is configured.
//  5. Wire the webhook/query HTTP server and the escalation channel.
//  6. Fan the webhook server's fact source through the stream
//     multiplexer and drive the BDI loop off whatever it emits.
//
// Shutdown runs in the opposite order: the multiplexer's output
// channel closes once the HTTP server stops accepting new facts, the
// main loop drains whatever is left and lets the BDI task finish its
// current incident, and the event log closes last so every event up
// to the final action is durable on disk.
import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sentineloop/incident-agent/internal/actions"
	"github.com/sentineloop/incident-agent/internal/audit"
	"github.com/sentineloop/incident-agent/internal/bdi"
	"github.com/sentineloop/incident-agent/internal/config"
	"github.com/sentineloop/incident-agent/internal/escalation"
	"github.com/sentineloop/incident-agent/internal/eventlog"
	"github.com/sentineloop/incident-agent/internal/fact"
	"github.com/sentineloop/incident-agent/internal/httpapi"
	"github.com/sentineloop/incident-agent/internal/k8stools"
	"github.com/sentineloop/incident-agent/internal/llm"
	"github.com/sentineloop/incident-agent/internal/metrics"
	"github.com/sentineloop/incident-agent/internal/rules"
	"github.com/sentineloop/incident-agent/internal/streammux"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := config.NewConfigManagerWithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "config: load: %v\n", err)
		return 1
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "config: validate: %v\n", err)
		return 1
	}
	cfg := mgr.Get(ctx)

	auditLogger, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		return 1
	}
	defer auditLogger.Close()
	_ = auditLogger.LogServerStarted(ctx)
	defer auditLogger.LogServerShutdown(ctx)

	appLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer appLogger.Sync()

	events, err := eventlog.Open(cfg.Database.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eventlog: open %s: %v\n", cfg.Database.SQLitePath, err)
		return 2
	}
	defer events.Close()

	engine := rules.NewEngine()
	registry := actions.DefaultRegistry()
	runbooks := actions.SeedRunbooks()

	toolExecutor, err := buildToolExecutor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "k8stools: %v\n", err)
		return 1
	}

	agents := buildLLMAgents(cfg, toolExecutor, appLogger)

	escalationChannel := escalation.New(cfg.Agent.ChannelCapacity)

	httpServer := httpapi.New(fmt.Sprintf(":%d", cfg.Server.Port), httpapi.Deps{
		Events:               events,
		Engine:               engine,
		Escalation:           escalationChannel,
		Logger:               appLogger,
		Audit:                auditLogger,
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		FactQueueCapacity:    cfg.Agent.ChannelCapacity,
		CommandQueueCapacity: cfg.Agent.ChannelCapacity,
	})

	loop := bdi.New(engine, registry, runbooks, events, toolExecutor, escalationChannel, agents, bdi.Config{
		MaxReplanAttempts: cfg.Agent.MaxReplanAttempts,
		RecentFactWindow:  cfg.Agent.RecentFactWindow,
	}, auditLogger)

	mux := streammux.New(cfg.Agent.ChannelCapacity, func(source string, dropped fact.Fact) {
		metrics.FactsDropped.WithLabelValues(source).Inc()
		appLogger.Warn("streammux: dropped fact under backpressure",
			zap.String("source", source), zap.String("incident_id", dropped.IncidentID()))
	})

	facts, err := mux.Run(ctx, []streammux.Source{httpServer.FactSource()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "streammux: %v\n", err)
		return 1
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start(ctx) }()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever the multiplexer still has buffered before
			// the BDI loop and event log shut down underneath us.
			for f := range facts {
				loop.Step(context.Background(), f)
			}
			if err := <-errCh; err != nil {
				fmt.Fprintf(os.Stderr, "httpapi: %v\n", err)
				return 1
			}
			return 0
		case f, ok := <-facts:
			if !ok {
				if err := <-errCh; err != nil {
					fmt.Fprintf(os.Stderr, "httpapi: %v\n", err)
					return 1
				}
				return 0
			}
			loop.Step(ctx, f)
		case cmd := <-httpServer.Commands():
			loop.HandleCommand(ctx, cmd)
		}
	}
}

// buildLLMAgents constructs the optional uncertain path. A nil result
// disables it: facts the rule engine can't classify on its own are
// recorded but get no plan and no escalation.
func buildLLMAgents(cfg *config.Config, tools actions.ToolExecutor, logger *zap.Logger) *bdi.LLMAgents {
	if !cfg.LLM.Configured {
		return nil
	}
	provider, err := llm.NewProvider(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      os.Getenv(cfg.LLM.APIKeyEnv),
		BaseURL:     cfg.LLM.OpenAIBaseURL,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		logger.Warn("llm: disabling uncertain path", zap.Error(err))
		return nil
	}
	return &bdi.LLMAgents{
		Interpreter: &llm.Interpreter{Provider: provider},
		Analyzer:    &llm.Analyzer{Provider: provider, Tools: tools},
		Proposer:    &llm.Proposer{Provider: provider},
	}
}

// buildToolExecutor connects to the cluster named by KUBECONFIG (or
// in-cluster config when running as a pod) and scopes the executor to
// the single workload named by TARGET_NAMESPACE/TARGET_DEPLOYMENT/
// TARGET_POD — the workload the agent is currently deployed to watch
// over. A production deployment sets these per agent instance.
func buildToolExecutor() (*k8stools.Executor, error) {
	restCfg, err := k8stools.LoadConfig(os.Getenv("KUBECONFIG"))
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	target := k8stools.Target{
		Namespace:  envOrDefault("TARGET_NAMESPACE", "default"),
		Deployment: os.Getenv("TARGET_DEPLOYMENT"),
		Pod:        os.Getenv("TARGET_POD"),
	}
	return k8stools.New(restCfg, target)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
