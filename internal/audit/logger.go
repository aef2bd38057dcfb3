package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging of ambient operational
// events. Domain activity for an incident (facts, plans, actions) goes
// through eventlog instead.
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogServerStarted/Shutdown log process lifecycle events
	LogServerStarted(ctx context.Context) error
	LogServerShutdown(ctx context.Context) error

	// LogWebhookReceived/Rejected log ingestion at the HTTP boundary
	LogWebhookReceived(ctx context.Context, source string) error
	LogWebhookRejected(ctx context.Context, source string, err error) error

	// LogEscalationRaised/Responded log escalation lifecycle events
	LogEscalationRaised(ctx context.Context, incidentID, reason string) error
	LogEscalationResponded(ctx context.Context, incidentID, decision, responder string) error

	// LogIrreversibleBlocked logs an Irreversible action blocked pending approval
	LogIrreversibleBlocked(ctx context.Context, incidentID, action string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// audit logger: always INFO level, append-only
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogServerStarted logs process startup.
func (l *auditLogger) LogServerStarted(ctx context.Context) error {
	event := NewEvent(EventServerStarted).
		WithResult(ResultSuccess).
		WithDescription("incident agent started")

	return l.Log(ctx, event)
}

// LogServerShutdown logs process shutdown.
func (l *auditLogger) LogServerShutdown(ctx context.Context) error {
	event := NewEvent(EventServerShutdown).
		WithResult(ResultSuccess).
		WithDescription("incident agent shutting down")

	return l.Log(ctx, event)
}

// LogWebhookReceived logs a successfully ingested webhook.
func (l *auditLogger) LogWebhookReceived(ctx context.Context, source string) error {
	event := NewEvent(EventWebhookReceived).
		WithResource(source, "webhook_source").
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("webhook accepted from %s", source))

	return l.Log(ctx, event)
}

// LogWebhookRejected logs a webhook rejected at validation.
func (l *auditLogger) LogWebhookRejected(ctx context.Context, source string, err error) error {
	event := NewEvent(EventWebhookRejected).
		WithResource(source, "webhook_source").
		WithError(err, "webhook_validation").
		WithDescription(fmt.Sprintf("webhook rejected from %s", source))

	return l.Log(ctx, event)
}

// LogEscalationRaised logs an incident moving to human escalation.
func (l *auditLogger) LogEscalationRaised(ctx context.Context, incidentID, reason string) error {
	event := NewEvent(EventEscalationRaised).
		WithCorrelationID(incidentID).
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("incident %s escalated: %s", incidentID, reason))

	return l.Log(ctx, event)
}

// LogEscalationResponded logs a human decision on an escalated incident.
func (l *auditLogger) LogEscalationResponded(ctx context.Context, incidentID, decision, responder string) error {
	event := NewEvent(EventEscalationResponded).
		WithCorrelationID(incidentID).
		WithUser(responder).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("incident %s escalation resolved: %s by %s", incidentID, decision, responder))

	return l.Log(ctx, event)
}

// LogIrreversibleBlocked logs an Irreversible step withheld pending approval.
func (l *auditLogger) LogIrreversibleBlocked(ctx context.Context, incidentID, action string) error {
	event := NewEvent(EventIrreversibleBlocked).
		WithCorrelationID(incidentID).
		WithAction(action).
		WithResult(ResultDenied).
		WithDescription(fmt.Sprintf("irreversible action %s blocked pending approval", action))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	return l.Sync()
}

type correlationIDKey struct{}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}

// nopLogger discards every event. It backs callers that want an
// always-non-nil Logger without standing up log files, the way
// zap.NewNop backs callers that want an always-non-nil *zap.Logger.
type nopLogger struct{}

// NewNop returns a Logger that discards everything written to it.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Log(ctx context.Context, event *Event) error                 { return nil }
func (nopLogger) LogServerStarted(ctx context.Context) error                  { return nil }
func (nopLogger) LogServerShutdown(ctx context.Context) error                 { return nil }
func (nopLogger) LogWebhookReceived(ctx context.Context, source string) error { return nil }
func (nopLogger) LogWebhookRejected(ctx context.Context, source string, err error) error {
	return nil
}
func (nopLogger) LogEscalationRaised(ctx context.Context, incidentID, reason string) error {
	return nil
}
func (nopLogger) LogEscalationResponded(ctx context.Context, incidentID, decision, responder string) error {
	return nil
}
func (nopLogger) LogIrreversibleBlocked(ctx context.Context, incidentID, action string) error {
	return nil
}
func (nopLogger) Sync() error  { return nil }
func (nopLogger) Close() error { return nil }
