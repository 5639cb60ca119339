package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		Dir:        tmpDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   false,
		LogLevel:   "info",
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
}

func TestNewAppLoggerWithInvalidLevel(t *testing.T) {
	config := &Config{
		Dir:      t.TempDir(),
		LogLevel: "invalid",
	}

	_, err := NewAppLogger(config)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}

	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Dir != "/var/log/ai_health" {
		t.Errorf("Expected log dir '/var/log/ai_health', got %s", config.Dir)
	}

	if config.MaxSize != 50 {
		t.Errorf("Expected max size 50, got %d", config.MaxSize)
	}

	if config.MaxBackups != 5 {
		t.Errorf("Expected max backups 5, got %d", config.MaxBackups)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
}

func TestLogEvent(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		Dir:        tmpDir,
		MaxSize:    10,
		MaxBackups: 3,
		LogLevel:   "info",
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	event := NewEvent(EventActionExecuted).
		WithCorrelationID("cycle-123").
		WithAction("clear_cache", "memory").
		WithReason("Memory usage high: 92.0%").
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	// Force flush
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	auditPath := filepath.Join(tmpDir, "actions.log")
	content, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "cycle-123") {
		t.Error("Log does not contain correlation ID")
	}

	if !strings.Contains(logContent, "action.executed") {
		t.Error("Log does not contain event type")
	}

	if !strings.Contains(logContent, "clear_cache") {
		t.Error("Log does not contain action")
	}
}

func TestLogCycleLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		Dir:      tmpDir,
		LogLevel: "info",
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	cycleID := "cycle-456"

	if err := logger.LogCycleStarted(ctx, cycleID); err != nil {
		t.Fatalf("LogCycleStarted failed: %v", err)
	}

	if err := logger.LogCycleCompleted(ctx, cycleID, 2, 5*time.Second); err != nil {
		t.Fatalf("LogCycleCompleted failed: %v", err)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "actions.log"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, cycleID) {
		t.Error("Log does not contain cycle ID")
	}

	if !strings.Contains(logContent, "cycle.started") {
		t.Error("Log does not contain started event")
	}

	if !strings.Contains(logContent, "cycle.completed") {
		t.Error("Log does not contain completed event")
	}
}

func TestLogAction(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		Dir:      tmpDir,
		LogLevel: "info",
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	if err := logger.LogAction(ctx, "cycle-1", "restart_failed_services", "cloudflared.service",
		"1 services have failed", "SUCCESS: restarted cloudflared.service", true); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	if err := logger.LogAction(ctx, "cycle-1", "clean_logs", "disk",
		"Disk usage high: 94.0%", "ERROR: journalctl vacuum failed", false); err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "actions.log"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "action.executed") {
		t.Error("Log does not contain executed event")
	}

	if !strings.Contains(logContent, "action.failed") {
		t.Error("Log does not contain failed event")
	}

	if !strings.Contains(logContent, "cloudflared.service") {
		t.Error("Log does not contain target")
	}
}

func TestBufferAutoFlush(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		Dir:      tmpDir,
		LogLevel: "info",
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	// Log multiple events
	for i := 0; i < 5; i++ {
		event := NewEvent(EventCycleCompleted).
			WithCorrelationID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	// Wait for auto-flush (1 second ticker)
	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(filepath.Join(tmpDir, "actions.log"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	if len(content) == 0 {
		t.Error("Audit log is empty after auto-flush")
	}
}

func TestBufferFullFlush(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		Dir:      tmpDir,
		LogLevel: "info",
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	// Log 100+ events to trigger buffer flush
	for i := 0; i < 105; i++ {
		event := NewEvent(EventCycleCompleted).
			WithCorrelationID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "actions.log"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	// Count number of events (each event is a JSON line)
	lines := strings.Split(string(content), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}

	if eventCount < 105 {
		t.Errorf("Expected at least 105 events, got %d", eventCount)
	}
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventActionExecuted).
		WithCorrelationID("corr-123").
		WithAction("throttle_cpu", "cpu").
		WithReason("CPU temperature critical: 81.2°C (threshold: 75.0°C)").
		WithDescription("Throttling CPU clock").
		WithResult(ResultSuccess).
		WithDuration(3 * time.Second).
		WithMetadata("improvement", 1.67)

	if event.CorrelationID != "corr-123" {
		t.Errorf("Expected correlation ID 'corr-123', got %s", event.CorrelationID)
	}

	if event.Action != "throttle_cpu" {
		t.Errorf("Expected action 'throttle_cpu', got %s", event.Action)
	}

	if event.Target != "cpu" {
		t.Errorf("Expected target 'cpu', got %s", event.Target)
	}

	if event.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", event.Result)
	}

	if event.DurationMs != 3000 {
		t.Errorf("Expected duration 3000ms, got %d", event.DurationMs)
	}

	if improvement, ok := event.Metadata["improvement"].(float64); !ok || improvement != 1.67 {
		t.Errorf("Expected metadata improvement 1.67, got %v", event.Metadata["improvement"])
	}
}

func TestEventJSONSerialization(t *testing.T) {
	event := NewEvent(EventCycleStarted).
		WithCorrelationID("cycle-789").
		WithResult(ResultSuccess)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if decoded.CorrelationID != "cycle-789" {
		t.Errorf("Expected correlation ID 'cycle-789', got %s", decoded.CorrelationID)
	}

	if decoded.EventType != EventCycleStarted {
		t.Errorf("Expected event type 'cycle.started', got %s", decoded.EventType)
	}

	if decoded.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", decoded.Result)
	}
}
