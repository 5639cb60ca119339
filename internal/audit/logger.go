package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for the append-only actions audit trail.
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogCycle logs monitoring cycle lifecycle events
	LogCycleStarted(ctx context.Context, cycleID string) error
	LogCycleCompleted(ctx context.Context, cycleID string, executed int, duration time.Duration) error

	// LogAction logs one executed/failed remediation action
	LogAction(ctx context.Context, cycleID, action, target, reason, result string, success bool) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// Dir is the directory holding both log files
	Dir string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum app log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		Dir:        "/var/log/ai_health",
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
		LogLevel:   "info",
	}
}

// NewAppLogger builds the application logger: JSON output, size-based
// rotation, leveled per config.
func NewAppLogger(config *Config) (*zap.Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(config.Dir, "doctor.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(rotator),
		level,
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
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

// NewLogger creates the actions audit logger. The trail is written at INFO
// level regardless of the app log level: an executed action must never be
// filtered out of the audit file.
func NewLogger(config *Config, appLogger *zap.Logger) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(config.Dir, "actions.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: zap.New(core),
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

// LogCycleStarted logs when a monitoring cycle starts
func (l *auditLogger) LogCycleStarted(ctx context.Context, cycleID string) error {
	event := NewEvent(EventCycleStarted).
		WithCorrelationID(cycleID).
		WithDescription(fmt.Sprintf("Cycle %s started", cycleID))
	return l.Log(ctx, event)
}

// LogCycleCompleted logs when a monitoring cycle completes
func (l *auditLogger) LogCycleCompleted(ctx context.Context, cycleID string, executed int, duration time.Duration) error {
	event := NewEvent(EventCycleCompleted).
		WithCorrelationID(cycleID).
		WithDuration(duration).
		WithMetadata("actions_executed", executed).
		WithDescription(fmt.Sprintf("Cycle %s completed, %d actions executed", cycleID, executed))
	return l.Log(ctx, event)
}

// LogAction logs one remediation action outcome
func (l *auditLogger) LogAction(ctx context.Context, cycleID, action, target, reason, result string, success bool) error {
	eventType := EventActionExecuted
	res := ResultSuccess
	if !success {
		eventType = EventActionFailed
		res = ResultFailure
	}
	event := NewEvent(eventType).
		WithCorrelationID(cycleID).
		WithAction(action, target).
		WithReason(reason).
		WithResult(res).
		WithDescription(fmt.Sprintf("%s(%s): %s - Result: %s", action, target, reason, result))
	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.auditLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()
	return l.Sync()
}
