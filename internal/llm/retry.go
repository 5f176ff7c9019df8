package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is an exponential backoff schedule with ±20% jitter.
type Backoff struct {
	InitialWait time.Duration `mapstructure:"initial_wait" yaml:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(b.InitialWait) * math.Pow(mult, float64(attempt))
	if b.MaxWait > 0 && wait > float64(b.MaxWait) {
		wait = float64(b.MaxWait)
	}
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		return 0
	}
	return time.Duration(wait)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryConfig configures WithRetry.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	Backoff     `mapstructure:",squash" yaml:",inline"`
}

// RetryProvider retries transient provider errors.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps p so transient failures are retried per cfg.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	attempts := max(r.config.MaxAttempts, 1)
	retriedInvalid := false

	var lastErr error
	for attempt := range attempts {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !Retryable(err) {
			return nil, err
		}
		// Schema violations get a single second chance.
		var inv *ErrInvalidResponse
		if errors.As(err, &inv) {
			if retriedInvalid {
				return nil, err
			}
			retriedInvalid = true
		}
		if attempt == attempts-1 {
			break
		}

		wait := r.config.Delay(attempt)
		var rl *ErrRateLimit
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}
		if err := Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *RetryProvider) ModelID() string { return r.inner.ModelID() }

// Retryable reports whether err is worth another attempt. Context errors,
// truncation and rejected credentials are final.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}
	var unauth *ErrUnauthorized
	return !errors.As(err, &unauth)
}
