// Package extractor turns one learner utterance into a candidate value for
// the stage being assessed.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/abhisek/learnintake/internal/assessment"
)

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 20 * time.Second

var tracer = otel.Tracer("github.com/abhisek/learnintake/internal/extractor")

// Extraction is the normalized interpretation of an utterance.
type Extraction struct {
	Value                 string
	Confidence            float64
	IsClear               bool
	ClarificationQuestion string
}

// RawExtraction is what a Gateway returns before normalization. Confidence
// is a pointer so a missing score can be told apart from a zero score.
type RawExtraction struct {
	Value                 string
	Confidence            *float64
	IsClear               bool
	ClarificationQuestion string
}

// Request carries everything a gateway may use to interpret an utterance.
type Request struct {
	Stage     assessment.Stage
	Utterance string

	// History is the recent transcript, oldest first, excluding Utterance.
	History []assessment.Message

	// Known holds the values already confirmed for earlier stages.
	Known map[assessment.Stage]string

	// Rejected is the candidate the learner just declined, if any.
	Rejected string
}

// Gateway is the language-understanding service.
type Gateway interface {
	Extract(ctx context.Context, req Request) (*RawExtraction, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (*RawExtraction, error)

func (f GatewayFunc) Extract(ctx context.Context, req Request) (*RawExtraction, error) {
	return f(ctx, req)
}

// FailureKind classifies why no extraction was produced.
type FailureKind string

const (
	GatewayTimeout FailureKind = "gateway_timeout"
	GatewayError   FailureKind = "gateway_error"
)

// Failure is returned when the gateway produced nothing usable.
type Failure struct {
	Kind  FailureKind
	Stage assessment.Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extract %s: %s: %v", f.Stage, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == GatewayTimeout
}

// errMissingConfidence marks a value returned without a score.
var errMissingConfidence = errors.New("value returned without confidence")

// Config tunes the Extractor.
type Config struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Extractor calls the gateway under a deadline and normalizes its output.
// It holds no per-session state.
type Extractor struct {
	gateway Gateway
	timeout time.Duration
}

func New(gw Gateway, cfg Config) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{gateway: gw, timeout: timeout}
}

// Extract interprets req.Utterance for req.Stage. Any failure is reported
// as a *Failure; a guessed value is never returned.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Extraction, error) {
	ctx, span := tracer.Start(ctx, "extractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("stage", req.Stage.String()))

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gateway.Extract(callCtx, req)
	if err == nil && raw == nil {
		err = errors.New("gateway returned no extraction")
	}
	if err != nil {
		f := &Failure{Kind: GatewayError, Stage: req.Stage, Err: err}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			f.Kind = GatewayTimeout
		}
		span.RecordError(f)
		span.SetStatus(codes.Error, string(f.Kind))
		return nil, f
	}

	ext, err := normalize(raw)
	if err != nil {
		f := &Failure{Kind: GatewayError, Stage: req.Stage, Err: err}
		span.RecordError(f)
		span.SetStatus(codes.Error, string(f.Kind))
		return nil, f
	}
	span.SetAttributes(
		attribute.Float64("confidence", ext.Confidence),
		attribute.Bool("clear", ext.IsClear),
	)
	return ext, nil
}

func normalize(raw *RawExtraction) (*Extraction, error) {
	ext := &Extraction{
		Value:                 strings.TrimSpace(raw.Value),
		IsClear:               raw.IsClear,
		ClarificationQuestion: strings.TrimSpace(raw.ClarificationQuestion),
	}
	if raw.Confidence == nil {
		if ext.Value != "" {
			return nil, errMissingConfidence
		}
	} else {
		ext.Confidence = clamp(*raw.Confidence)
	}
	if ext.Value == "" {
		ext.IsClear = false
		ext.Confidence = 0
	}
	return ext, nil
}

func clamp(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
