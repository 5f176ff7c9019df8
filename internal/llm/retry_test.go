package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Backoff:     Backoff{InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2},
	}
}

var okContent = json.RawMessage(`{"ok":true}`)

func TestRetry(t *testing.T) {
	down := &ErrProviderUnavailable{Err: errors.New("down")}
	tests := []struct {
		name      string
		attempts  int
		responses []MockResponse
		wantErr   bool
		wantCalls int
	}{
		{"first attempt succeeds", 3, []MockResponse{{Content: okContent}}, false, 1},
		{"transient then success", 3, []MockResponse{{Err: down}, {Content: okContent}}, false, 2},
		{"all attempts fail", 3, []MockResponse{{Err: down}, {Err: down}, {Err: down}}, true, 3},
		{"single attempt never retries", 1, []MockResponse{{Err: down}, {Content: okContent}}, true, 1},
		{"max tokens is final", 3, []MockResponse{{Err: &ErrMaxTokensExceeded{}}, {Content: okContent}}, true, 1},
		{"unauthorized is final", 3, []MockResponse{{Err: &ErrUnauthorized{Err: errors.New("401")}}, {Content: okContent}}, true, 1},
		{"invalid response retried once", 3, []MockResponse{
			{Err: &ErrInvalidResponse{Err: errors.New("bad")}},
			{Err: &ErrInvalidResponse{Err: errors.New("bad")}},
			{Content: okContent},
		}, true, 2},
		{"rate limit honours retry after", 2, []MockResponse{
			{Err: &ErrRateLimit{RetryAfter: time.Millisecond, Err: errors.New("429")}},
			{Content: okContent},
		}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			_, err := WithRetry(mock, fastRetry(tt.attempts)).Generate(context.Background(), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{}},
		MockResponse{Content: okContent},
	)
	cfg := RetryConfig{MaxAttempts: 2, Backoff: Backoff{InitialWait: time.Hour, Multiplier: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := WithRetry(mock, cfg).Generate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{InitialWait: 100 * time.Millisecond, MaxWait: 300 * time.Millisecond, Multiplier: 2}
	for attempt, base := range []time.Duration{100, 200, 300, 300} {
		base *= time.Millisecond
		got := b.Delay(attempt)
		lo, hi := time.Duration(float64(base)*0.8), time.Duration(float64(base)*1.2)
		if got < lo || got > hi {
			t.Errorf("Delay(%d) = %v, want within [%v, %v]", attempt, got, lo, hi)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded must not be retryable")
	}
	if !Retryable(&ErrRateLimit{}) {
		t.Error("rate limit should be retryable")
	}
	if !Retryable(errors.New("connection reset")) {
		t.Error("unknown errors are treated as transient")
	}
}
