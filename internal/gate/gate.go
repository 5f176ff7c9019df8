// Package gate decides whether an extracted value is trustworthy enough to
// propose, and interprets the learner's reply to a proposal.
package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/extractor"
)

const (
	// DefaultAcceptanceThreshold is the minimum confidence for proposing a
	// value without further clarification.
	DefaultAcceptanceThreshold = 0.8

	// DefaultClarificationCap is how many clarifying questions a stage may
	// ask before the gate stops looping.
	DefaultClarificationCap = 3
)

// ExhaustedPolicy selects what happens when the clarification cap is hit.
type ExhaustedPolicy string

const (
	// ForceConfirm proposes the best candidate flagged as low confidence.
	ForceConfirm ExhaustedPolicy = "force-confirm"
	// Fail abandons the session.
	Fail ExhaustedPolicy = "fail"
)

// Config holds the acceptance and clarification limits.
type Config struct {
	AcceptanceThreshold float64         `mapstructure:"acceptance_threshold" yaml:"acceptance_threshold"`
	ClarificationCap    int             `mapstructure:"clarification_cap" yaml:"clarification_cap"`
	ExhaustedPolicy     ExhaustedPolicy `mapstructure:"exhausted_policy" yaml:"exhausted_policy"`
}

// DefaultConfig returns threshold 0.8, cap 3 and the force-confirm policy.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold: DefaultAcceptanceThreshold,
		ClarificationCap:    DefaultClarificationCap,
		ExhaustedPolicy:     ForceConfirm,
	}
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if c.AcceptanceThreshold <= 0 || c.AcceptanceThreshold > 1 {
		return fmt.Errorf("acceptance threshold %.2f must be in (0, 1]", c.AcceptanceThreshold)
	}
	if c.ClarificationCap < 0 {
		return fmt.Errorf("clarification cap %d must not be negative", c.ClarificationCap)
	}
	switch c.ExhaustedPolicy {
	case ForceConfirm, Fail:
	default:
		return fmt.Errorf("unknown exhausted policy %q (want %s or %s)", c.ExhaustedPolicy, ForceConfirm, Fail)
	}
	return nil
}

// DecisionKind enumerates gate outcomes.
type DecisionKind int

const (
	ReplaceAndClarify DecisionKind = iota
	ProposeConfirmation
	RejectAffirmation
	Confirm
	Decline
	Abandon
)

func (k DecisionKind) String() string {
	switch k {
	case ReplaceAndClarify:
		return "replace_and_clarify"
	case ProposeConfirmation:
		return "propose_confirmation"
	case RejectAffirmation:
		return "reject_affirmation"
	case Confirm:
		return "confirm"
	case Decline:
		return "decline"
	case Abandon:
		return "abandon"
	}
	return fmt.Sprintf("decision(%d)", int(k))
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Kind DecisionKind

	// Value is the candidate for ReplaceAndClarify and ProposeConfirmation.
	// Empty on ReplaceAndClarify means the stored candidate is kept.
	Value      string
	Confidence float64

	// Question is the clarifying question of ReplaceAndClarify.
	Question string

	// LowConfidence marks a proposal forced by the clarification cap.
	LowConfidence bool

	// KeepAttempts makes ReplaceAndClarify leave ClarificationAttempts as is.
	KeepAttempts bool
}

// Gate is stateless; one value serves every session.
type Gate struct {
	cfg Config
}

// New returns a Gate for cfg. cfg should already be validated.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Config returns the settings the gate was built with.
func (g *Gate) Config() Config { return g.cfg }

// Evaluate judges an extraction against a pending record. utterance is the
// raw learner text, used as the last-resort candidate of a forced proposal
// unless it reads as a bare yes, no or exit word.
func (g *Gate) Evaluate(rec assessment.StageRecord, ext extractor.Extraction, utterance string) Decision {
	if ext.IsClear && ext.Value != "" && ext.Confidence >= g.cfg.AcceptanceThreshold {
		return Decision{Kind: ProposeConfirmation, Value: ext.Value, Confidence: ext.Confidence}
	}

	if rec.ClarificationAttempts >= g.cfg.ClarificationCap {
		if g.cfg.ExhaustedPolicy == Fail {
			return Decision{Kind: Abandon}
		}
		value, confidence, ok := bestCandidate(rec, ext, utterance)
		if !ok {
			// A bare "아니요" is not an answer.
			return Decision{Kind: ReplaceAndClarify, Question: DefaultQuestion(rec.Stage), KeepAttempts: true}
		}
		return Decision{Kind: ProposeConfirmation, Value: value, Confidence: confidence, LowConfidence: true}
	}

	question := ext.ClarificationQuestion
	if question == "" {
		question = DefaultQuestion(rec.Stage)
	}
	return Decision{Kind: ReplaceAndClarify, Value: ext.Value, Confidence: ext.Confidence, Question: question}
}

// bestCandidate picks the new value, else the stored one, else the raw
// utterance when it reads as an answer rather than a reply word.
func bestCandidate(rec assessment.StageRecord, ext extractor.Extraction, utterance string) (string, float64, bool) {
	switch {
	case ext.Value != "":
		return ext.Value, ext.Confidence, true
	case rec.Value != "":
		return rec.Value, rec.Confidence, true
	}
	raw := strings.TrimSpace(utterance)
	switch Classify(raw) {
	case IntentUnrelated, IntentDetail:
		return raw, 0, raw != ""
	}
	return "", 0, false
}

// EvaluateReply interprets a classified reply against rec. It returns false
// when the reply is not a confirmation answer and must be extracted as a
// fresh answer instead.
func (g *Gate) EvaluateReply(rec assessment.StageRecord, intent Intent) (Decision, bool) {
	awaiting := rec.Status == assessment.StatusAwaitingConfirmation
	switch {
	case awaiting && intent == IntentAffirm:
		return Decision{Kind: Confirm, Value: rec.Value, Confidence: rec.Confidence, LowConfidence: rec.LowConfidence}, true
	case awaiting && (intent == IntentReject || intent == IntentDetail):
		// A correction or further explanation replaces the proposal.
		return Decision{Kind: Decline, Value: rec.Value}, true
	case awaiting:
		// Short noise while a proposal is open is out of context.
		return Decision{Kind: RejectAffirmation}, true
	case intent == IntentAffirm:
		return Decision{Kind: RejectAffirmation}, true
	}
	return Decision{}, false
}

// Apply returns rec transformed by d. RejectAffirmation and Abandon leave
// the record unchanged.
func Apply(rec assessment.StageRecord, d Decision, now time.Time) assessment.StageRecord {
	switch d.Kind {
	case ReplaceAndClarify:
		if d.Value != "" {
			rec.Value = d.Value
			rec.Confidence = d.Confidence
		}
		rec.Status = assessment.StatusPending
		if !d.KeepAttempts {
			rec.ClarificationAttempts++
		}
	case ProposeConfirmation:
		rec.Value = d.Value
		rec.Confidence = d.Confidence
		rec.Status = assessment.StatusAwaitingConfirmation
		rec.LowConfidence = d.LowConfidence
	case Confirm:
		rec.Status = assessment.StatusConfirmed
	case Decline:
		rec.Status = assessment.StatusPending
		rec.Value = ""
		rec.Confidence = 0
		rec.LowConfidence = false
	default:
		return rec
	}
	rec.UpdatedAt = now
	return rec
}
