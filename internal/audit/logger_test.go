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
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		Compress:     false,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "invalid",
	}

	_, err := NewLogger(config)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}

	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}

	if config.AppLogPath != "logs/app.log" {
		t.Errorf("Expected app log path 'logs/app.log', got %s", config.AppLogPath)
	}

	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}

	if config.MaxBackups != 10 {
		t.Errorf("Expected max backups 10, got %d", config.MaxBackups)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
}

func TestLogEvent(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	event := NewEvent(EventTurnStarted).
		WithCorrelationID("test-123").
		WithSession("sess-1").
		WithScope("C_001", "Z_001").
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	// Force flush
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// Verify log file was created
	if _, err := os.Stat(config.AuditLogPath); os.IsNotExist(err) {
		t.Fatal("Audit log file was not created")
	}

	// Read and verify log content
	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "test-123") {
		t.Error("Log does not contain correlation ID")
	}

	if !strings.Contains(logContent, "turn.started") {
		t.Error("Log does not contain event type")
	}

	if !strings.Contains(logContent, "Z_001") {
		t.Error("Log does not contain zone scope")
	}
}

func TestLogTurnLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	sessionID := "sess-456"

	if err := logger.LogTurnStarted(ctx, sessionID, "no power in my area"); err != nil {
		t.Fatalf("LogTurnStarted failed: %v", err)
	}

	if err := logger.LogTurnCompleted(ctx, sessionID, "run-789", 5*time.Second); err != nil {
		t.Fatalf("LogTurnCompleted failed: %v", err)
	}

	// Force flush
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, sessionID) {
		t.Error("Log does not contain session ID")
	}

	if !strings.Contains(logContent, "turn.started") {
		t.Error("Log does not contain started event")
	}

	if !strings.Contains(logContent, "turn.completed") {
		t.Error("Log does not contain completed event")
	}

	if !strings.Contains(logContent, "run-789") {
		t.Error("Log does not contain run ID")
	}
}

func TestLogClarificationAsked(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	if err := logger.LogClarificationAsked(ctx, "sess-1", "Which zone?", 1); err != nil {
		t.Fatalf("LogClarificationAsked failed: %v", err)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	if !strings.Contains(string(content), "turn.clarification_asked") {
		t.Error("Log does not contain clarification event")
	}
}

func TestLogCollaboratorUnavailable(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	if err := logger.LogCollaboratorUnavailable(ctx, "sess-1", "service_outages", context.DeadlineExceeded); err != nil {
		t.Fatalf("LogCollaboratorUnavailable failed: %v", err)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "evidence.collaborator_unavailable") {
		t.Error("Log does not contain unavailability event")
	}

	if !strings.Contains(logContent, "service_outages") {
		t.Error("Log does not contain source name")
	}
}

func TestEventJSONMarshal(t *testing.T) {
	event := NewEvent(EventRunRecorded).
		WithCorrelationID("corr-1").
		WithSession("sess-1").
		WithRun("run-1").
		WithResult(ResultSuccess).
		WithDuration(1500 * time.Millisecond)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.EventType != EventRunRecorded {
		t.Errorf("Expected event type %s, got %s", EventRunRecorded, decoded.EventType)
	}

	if decoded.DurationMs != 1500 {
		t.Errorf("Expected duration 1500ms, got %d", decoded.DurationMs)
	}
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := context.Background()

	if got := GetCorrelationID(ctx); got != "" {
		t.Errorf("Expected empty correlation ID, got %s", got)
	}

	ctx = WithCorrelationID(ctx, "corr-42")
	if got := GetCorrelationID(ctx); got != "corr-42" {
		t.Errorf("Expected corr-42, got %s", got)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	id := GenerateCorrelationID()
	if id == "" {
		t.Fatal("Expected non-empty correlation ID")
	}
}
