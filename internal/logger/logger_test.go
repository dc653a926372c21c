package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No run ID set
	if id := RunID(ctx); id != "" {
		t.Errorf("expected empty run id, got %q", id)
	}

	// Set and retrieve
	ctx = WithRunID(ctx, "sync-BTC-123")
	if id := RunID(ctx); id != "sync-BTC-123" {
		t.Errorf("expected 'sync-BTC-123', got %q", id)
	}
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewRunID("sync", "BTC", ts)

	if id == "" {
		t.Fatal("expected non-empty run id")
	}
	if !strings.HasPrefix(id, "sync-BTC-") {
		t.Errorf("expected run id to start with 'sync-BTC-', got %s", id)
	}
	// Verify it contains the nano timestamp
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected run id to contain nanoseconds, got %s", id)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug {
		t.Error("expected debug level")
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("expected info fallback for unknown level")
	}
}

func TestAttrs(t *testing.T) {
	ctx := context.Background()

	// No run ID
	attrs := Attrs(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no run id, got %v", attrs)
	}

	// With run ID set it returns [slog.Attr] which is a single element
	ctx = WithRunID(ctx, "abc-123")
	attrs = Attrs(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with run id set")
	}
}
