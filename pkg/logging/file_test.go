package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNewFileLogger(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:       logPath,
		Format:     FormatText,
		Level:      InfoLevel,
		MaxSize:    1024 * 1024,
		MaxBackups: 3,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	if logger == nil {
		t.Error("NewFileLogger() returned nil")
	}

	// Verify file was created
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestNewFileLogger_CreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()

	// Use a nested path that doesn't exist
	logPath := filepath.Join(tempDir, "nested", "dir", "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatText,
		Level:  InfoLevel,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	// Verify directory was created
	dir := filepath.Dir(logPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}

func TestFileLogger_LogLevels(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatText,
		Level:  InfoLevel, // Only INFO and above
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()

	// Debug should be filtered
	logger.Debug(ctx, "debug message", nil)
	// Info should be logged
	logger.Info(ctx, "info message", nil)
	// Warn should be logged
	logger.Warn(ctx, "warn message", nil)
	// Error should be logged
	logger.Error(ctx, "error message", nil, nil)

	logger.Close()

	// Read log file
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)

	// Debug should NOT be present
	if strings.Contains(logContent, "debug message") {
		t.Error("Debug message should be filtered at INFO level")
	}

	// Others should be present
	if !strings.Contains(logContent, "info message") {
		t.Error("Info message should be present")
	}
	if !strings.Contains(logContent, "warn message") {
		t.Error("Warn message should be present")
	}
	if !strings.Contains(logContent, "error message") {
		t.Error("Error message should be present")
	}
}

func TestFileLogger_DebugLevel(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatText,
		Level:  DebugLevel, // Log everything
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()
	logger.Debug(ctx, "debug message", nil)
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	if !strings.Contains(string(content), "debug message") {
		t.Error("Debug message should be present at DEBUG level")
	}
}

func TestFileLogger_TextFormat(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatText,
		Level:  InfoLevel,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()
	logger.Info(ctx, "test message", Fields{"key": "value", "count": 42})
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)

	// logrus text format: timestamp=... level=info message="..." key=value
	if !strings.Contains(logContent, "level=info") {
		t.Error("Log should contain level=info marker")
	}
	if !strings.Contains(logContent, "test message") {
		t.Error("Log should contain the message")
	}
	if !strings.Contains(logContent, "key=value") {
		t.Error("Log should contain the field")
	}
}

func TestFileLogger_JSONFormat(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatJSON,
		Level:  InfoLevel,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()
	logger.Info(ctx, "test message", Fields{"key": "value", "count": 42})
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	// Parse as JSON
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	// Check fields
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["message"] != "test message" {
		t.Errorf("message = %v, want 'test message'", entry["message"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want 'value'", entry["key"])
	}
	if entry["timestamp"] == nil {
		t.Error("timestamp should be present")
	}
}

func TestFileLogger_ErrorWithErr(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatJSON,
		Level:  InfoLevel,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()
	testErr := &testError{msg: "something went wrong"}
	logger.Error(ctx, "operation failed", testErr, Fields{"operation": "test"})
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	if entry["error"] != "something went wrong" {
		t.Errorf("error = %v, want 'something went wrong'", entry["error"])
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

func TestFileLogger_WithFields(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatJSON,
		Level:  InfoLevel,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()

	// Create logger with base fields
	loggerWithFields := logger.WithFields(Fields{"component": "transfer"})

	// Log with additional fields
	loggerWithFields.Info(ctx, "test", Fields{"action": "copy"})
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	// Should have both base and additional fields
	if entry["component"] != "transfer" {
		t.Errorf("component = %v, want 'transfer'", entry["component"])
	}
	if entry["action"] != "copy" {
		t.Errorf("action = %v, want 'copy'", entry["action"])
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:       logPath,
		Format:     FormatText,
		Level:      InfoLevel,
		MaxSize:    100, // Very small for testing
		MaxBackups: 2,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()

	// Write enough to trigger rotation
	for i := 0; i < 20; i++ {
		logger.Info(ctx, "This is a test message that is long enough to trigger rotation eventually", nil)
	}
	logger.Close()

	// Check that backup files were created
	backup1 := logPath + ".1"
	if _, err := os.Stat(backup1); os.IsNotExist(err) {
		t.Error("Backup file .1 should exist after rotation")
	}

	// Main file should still exist
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Main log file should still exist")
	}
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()
	ctx := context.Background()

	// None of these should panic
	logger.Debug(ctx, "debug", nil)
	logger.Info(ctx, "info", nil)
	logger.Warn(ctx, "warn", nil)
	logger.Error(ctx, "error", nil, nil)

	// WithFields should return a logger
	newLogger := logger.WithFields(Fields{"key": "value"})
	if newLogger == nil {
		t.Error("WithFields should return a logger")
	}

	// Close should not error
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"ERROR", ErrorLevel},
		{"unknown", InfoLevel}, // Default
		{"", InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := LevelString(tt.level)
			if result != tt.expected {
				t.Errorf("LevelString(%v) = %q, want %q", tt.level, result, tt.expected)
			}
		})
	}
}

func TestFileLogger_WithFieldsSharesRotation(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	logger, err := NewFileLogger(FileLoggerConfig{
		Path:       logPath,
		Format:     FormatText,
		Level:      InfoLevel,
		MaxSize:    200,
		MaxBackups: 1,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	child := logger.WithFields(Fields{"plan": "p1"})
	for i := 0; i < 10; i++ {
		child.Info(context.Background(), "child message long enough to grow the file", nil)
	}
	logger.Close()

	if _, err := os.Stat(logPath + ".1"); os.IsNotExist(err) {
		t.Error("derived logger should rotate the shared file")
	}
	if _, err := os.Stat(logPath + ".2"); err == nil {
		t.Error("backups beyond MaxBackups should be removed")
	}
}

func TestWriterLogger(t *testing.T) {
	var buf strings.Builder
	logger := NewWriterLogger(&buf, FormatJSON, WarnLevel)

	logger.Info(context.Background(), "hidden", nil)
	logger.Warn(context.Background(), "shown", Fields{"file": "a.pdf"})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info should be filtered at WARN level")
	}
	if !strings.Contains(out, `"file":"a.pdf"`) {
		t.Errorf("output = %q, want file field", out)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFileLogger_ConcurrentWrites(t *testing.T) {
	tempDir := t.TempDir()

	logPath := filepath.Join(tempDir, "test.log")
	config := FileLoggerConfig{
		Path:   logPath,
		Format: FormatText,
		Level:  InfoLevel,
	}

	logger, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	ctx := context.Background()

	// Concurrent writes
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				logger.Info(ctx, "concurrent message", Fields{"goroutine": id, "iteration": j})
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for concurrent writes")
		}
	}

	logger.Close()

	// Verify file is readable and has content
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1000 {
		t.Errorf("Expected 1000 log lines, got %d", len(lines))
	}
}

func TestToLogrus(t *testing.T) {
	tests := []struct {
		level Level
		want  logrus.Level
	}{
		{DebugLevel, logrus.DebugLevel},
		{InfoLevel, logrus.InfoLevel},
		{WarnLevel, logrus.WarnLevel},
		{ErrorLevel, logrus.ErrorLevel},
		{Level(99), logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := toLogrus(tt.level); got != tt.want {
			t.Errorf("toLogrus(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestWriterLogger_FieldNames(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, FormatJSON, DebugLevel)

	logger.WithFields(Fields{"plan_id": "p1"}).Error(context.Background(), "copy failed",
		errors.New("disk full"), Fields{"path": "a.txt"})
	logger.Error(context.Background(), "no cause", nil, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	want := map[string]interface{}{
		"level":   "error",
		"message": "copy failed",
		"error":   "disk full",
		"plan_id": "p1",
		"path":    "a.txt",
	}
	for k, v := range want {
		if first[k] != v {
			t.Errorf("%s = %v, want %v", k, first[k], v)
		}
	}
	ts, _ := first["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", ts, err)
	}

	var second map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if _, ok := second["error"]; ok {
		t.Error("a nil error should not add an error field")
	}
}

func TestWriterLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, FormatText, InfoLevel)

	logger.Debug(context.Background(), "hidden", nil)
	logger.Warn(context.Background(), "slow destination", Fields{"empty": ""})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Debug should be filtered at INFO level")
	}
	for _, want := range []string{"level=warning", `message="slow destination"`, `empty=""`} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, want %s", out, want)
		}
	}
}
