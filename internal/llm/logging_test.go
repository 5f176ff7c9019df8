package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/abhisek/learnintake/internal/logger"
	"github.com/abhisek/learnintake/internal/store"
)

type recordingEvents struct {
	store.NopEventRepo
	mu     sync.Mutex
	events []store.LLMRequestEventData
}

func (r *recordingEvents) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return nil
}

func TestLoggingProviderRecordsEvents(t *testing.T) {
	events := &recordingEvents{}
	mock := NewMockProvider(
		MockJSON(map[string]any{"value": "go", "confidence": 0.9}),
		MockResponse{Err: errors.New("network down")},
	)
	p := WithLogging(mock, "mock", events, logger.Nop())

	ctx := WithPurpose(context.Background(), "extract:topic")
	req := Request{System: "sys", Messages: []Message{{Role: RoleUser, Content: "파이썬"}}, Schema: answerSchema()}
	if _, err := p.Generate(ctx, req); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := p.Generate(ctx, req); err == nil {
		t.Fatal("second call should fail")
	}

	if len(events.events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events.events))
	}
	ok, failed := events.events[0], events.events[1]
	if !ok.Success || ok.Purpose != "extract:topic" || ok.InputTokens != 10 {
		t.Errorf("success event = %+v", ok)
	}
	if !strings.Contains(ok.RequestBody, "[system]") || !strings.Contains(ok.RequestBody, "[schema: test-answer]") {
		t.Errorf("request body = %q", ok.RequestBody)
	}
	if failed.Success || failed.ErrorMessage != "network down" {
		t.Errorf("failure event = %+v", failed)
	}
}

func TestPurposeDefault(t *testing.T) {
	if got := PurposeFrom(context.Background()); got != "unknown" {
		t.Errorf("PurposeFrom = %q, want unknown", got)
	}
}
