package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed(redact bool) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar(), redact: redact}, logs
}

func TestRedactsSecretsAndHashesIDs(t *testing.T) {
	log, logs := observed(true)
	log.Info("turn", "session_id", "abc-123", "api_key", "sk-live", "stage", "topic")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", fields["api_key"])
	}
	sid, _ := fields["session_id"].(string)
	if !strings.HasPrefix(sid, "hash:") || strings.Contains(sid, "abc-123") {
		t.Errorf("session_id = %q, want hashed", sid)
	}
	if fields["stage"] != "topic" {
		t.Errorf("stage = %v, want topic", fields["stage"])
	}
}

func TestRedactionDisabled(t *testing.T) {
	log, logs := observed(false)
	log.With("session_id", "abc-123").Warn("retry")

	fields := logs.All()[0].ContextMap()
	if fields["session_id"] != "abc-123" {
		t.Errorf("session_id = %v, want raw value", fields["session_id"])
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Options{Mode: "prod", Level: "debug"}); err != nil {
		t.Errorf("New(prod, debug): %v", err)
	}
}
