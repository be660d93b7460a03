package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// TestNewLogger_DevEnvironment проверяет создание логгера для dev окружения
func TestNewLogger_DevEnvironment(t *testing.T) {
	logger, err := NewLogger("dev", "debug", "test-service")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if logger == nil {
		t.Fatal("Expected logger, got nil")
	}

	logger.Info("Test message")
	logger.With(String("test", "value")).Info("Test message with field")
}

// TestNewLoggerTo_ProdWritesJSON проверяет JSON формат для prod окружения
func TestNewLoggerTo_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLoggerTo(&buf, "prod", "info", "reqtrack")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	logger.Info("session restored", String("user", "alice"), Int("attempt", 1))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "session restored" {
		t.Errorf("Expected msg 'session restored', got %v", entry["msg"])
	}
	if entry["service"] != "reqtrack" {
		t.Errorf("Expected service 'reqtrack', got %v", entry["service"])
	}
	if entry["user"] != "alice" {
		t.Errorf("Expected user 'alice', got %v", entry["user"])
	}
}

// TestLogger_LevelFilter проверяет, что debug не пишется на уровне info
func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLoggerTo(&buf, "prod", "info", "reqtrack")

	logger.Debug("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug message must be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Warn message must be written, got %q", out)
	}
}

// TestFieldHelpers проверяет вспомогательные конструкторы полей
func TestFieldHelpers(t *testing.T) {
	if f := Error(nil); f.String != "nil" {
		t.Errorf("Expected 'nil' for nil error, got %q", f.String)
	}
	if f := Error(errors.New("boom")); f.String != "boom" {
		t.Errorf("Expected 'boom', got %q", f.String)
	}
	if f := Duration("took", time.Second); f.Key != "took" {
		t.Errorf("Expected key 'took', got %q", f.Key)
	}
}

// TestCtxField проверяет извлечение request_id из контекста
func TestCtxField(t *testing.T) {
	if f := CtxField(context.Background()); f.String != "unknown" {
		t.Errorf("Expected 'unknown', got %q", f.String)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	if f := CtxField(ctx); f.String != "req-1" {
		t.Errorf("Expected 'req-1', got %q", f.String)
	}
}

// TestNewNop проверяет, что nop логгер безопасен
func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Error("nothing")
	if err := logger.Sync(); err != nil {
		t.Errorf("Expected no error from nop Sync, got %v", err)
	}
}
