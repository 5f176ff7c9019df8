// Package dialog runs one conversational turn of the assessment: it reads
// the session, interprets the utterance, applies the gate decision and
// persists the result.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/extractor"
	"github.com/abhisek/learnintake/internal/gate"
	"github.com/abhisek/learnintake/internal/llm"
	"github.com/abhisek/learnintake/internal/logger"
	"github.com/abhisek/learnintake/internal/sequencer"
	"github.com/abhisek/learnintake/internal/store"
)

var tracer = otel.Tracer("github.com/abhisek/learnintake/internal/dialog")

// Termination reasons recorded on the session.
const (
	ReasonUserExit           = "user_exit"
	ReasonClarificationLimit = "clarification_limit"
	ReasonExternal           = "terminated"
)

// Extractor interprets one utterance for one stage.
type Extractor interface {
	Extract(ctx context.Context, req extractor.Request) (*extractor.Extraction, error)
}

// Config tunes the Orchestrator.
type Config struct {
	Gate gate.Config

	// GatewayRetries is how many times a failed extraction is retried
	// before the learner gets an apology.
	GatewayRetries int
	Backoff        llm.Backoff

	// HistoryTurns bounds how much transcript is sent with an extraction.
	HistoryTurns int
}

func DefaultConfig() Config {
	return Config{
		Gate:           gate.DefaultConfig(),
		GatewayRetries: 2,
		Backoff:        llm.Backoff{InitialWait: 300 * time.Millisecond, MaxWait: 2 * time.Second, Multiplier: 2},
		HistoryTurns:   6,
	}
}

// Response is the outcome of one turn.
type Response struct {
	Reply           string              `json:"reply"`
	Stage           assessment.Stage    `json:"stage"`
	StageIndex      int                 `json:"stage_index"`
	ConfirmedStages []assessment.Stage  `json:"confirmed_stages"`
	Complete        bool                `json:"complete"`
	Terminated      bool                `json:"terminated"`
	Progress        assessment.Progress `json:"progress"`
}

func respond(reply string, s *assessment.Session) *Response {
	p := assessment.ProgressOf(s)
	return &Response{
		Reply:           reply,
		Stage:           p.Stage,
		StageIndex:      p.StageIndex,
		ConfirmedStages: p.ConfirmedStages,
		Complete:        p.Complete,
		Terminated:      p.Terminated,
		Progress:        p,
	}
}

// Orchestrator drives the assessment conversation. It is safe for
// concurrent use; turns on the same session are serialized by the updater.
type Orchestrator struct {
	updater   *store.Updater
	sessions  store.SessionStore
	extractor Extractor
	gate      *gate.Gate
	cfg       Config
	events    store.EventRepo
	log       *logger.Logger
	now       func() time.Time
}

func New(updater *store.Updater, ext Extractor, cfg Config, events store.EventRepo, log *logger.Logger) *Orchestrator {
	if events == nil {
		events = store.NopEventRepo{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		updater:   updater,
		sessions:  updater.Sessions,
		extractor: ext,
		gate:      gate.New(cfg.Gate),
		cfg:       cfg,
		events:    events,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// turn collects what one run of the mutation produced. It is reset when the
// updater reruns the mutation after a version conflict.
type turn struct {
	reply  string
	events []store.StageEventData
}

func (t *turn) event(s *assessment.Session, kind store.StageEventKind, rec assessment.StageRecord) {
	t.events = append(t.events, store.StageEventData{
		SessionID:  s.ID,
		Stage:      rec.Stage.String(),
		Kind:       kind,
		Value:      rec.Value,
		Confidence: rec.Confidence,
		Attempts:   rec.ClarificationAttempts,
	})
}

// HandleUtterance processes one learner utterance and returns the reply
// with a progress snapshot. Conversational irregularities are answered
// with a reprompt; only store errors and ErrConcurrentUpdate are returned.
func (o *Orchestrator) HandleUtterance(ctx context.Context, sessionID, text string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "dialog.HandleUtterance", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	text = strings.TrimSpace(text)
	var t turn
	s, err := o.updater.Update(ctx, sessionID, func(ctx context.Context, s *assessment.Session) (bool, error) {
		t = turn{}
		return o.step(ctx, s, text, &t)
	})
	if err != nil {
		o.log.Warn("turn failed", "session_id", sessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("stage", s.Cursor.String()), attribute.Bool("complete", s.Completed))

	for _, ev := range t.events {
		if err := o.events.AppendStageEvent(context.WithoutCancel(ctx), ev); err != nil {
			o.log.Warn("record stage event", "session_id", sessionID, "kind", ev.Kind, "error", err)
		}
	}
	return respond(t.reply, s), nil
}

// step runs one turn against a freshly loaded session. It returns false
// when the turn must leave the stored session untouched.
func (o *Orchestrator) step(ctx context.Context, s *assessment.Session, text string, t *turn) (bool, error) {
	if s.Closed() {
		t.reply = closedReply(s)
		return false, nil
	}
	now := o.now()
	stage := sequencer.CurrentStage(s)
	if text == "" {
		t.reply = o.reprompt(s)
		return false, nil
	}

	intent := gate.Classify(text)
	if intent == gate.IntentExit {
		sequencer.Terminate(s, ReasonUserExit, now)
		t.event(s, store.StageEventTerminated, s.Record(stage))
		t.reply = exitReply
		o.record(s, stage, text, now, t.reply)
		return true, nil
	}

	before := s.Clone()
	var rejected string
	if d, ok := o.gate.EvaluateReply(s.Record(stage), intent); ok {
		switch d.Kind {
		case gate.RejectAffirmation:
			// Replayed or stray confirmations leave the session as it is.
			t.reply = o.reprompt(s)
			t.event(s, store.StageEventRejectAffirmation, s.Record(stage))
			return false, nil
		case gate.Confirm:
			if err := sequencer.Apply(s, stage, d, now); err != nil {
				return o.misrouted(s, t, err)
			}
			rec := s.Record(stage)
			t.event(s, store.StageEventConfirmed, rec)
			sequencer.AdvanceIfConfirmed(s)
			if sequencer.IsComplete(s) {
				t.reply = acknowledgment(rec) + "\n\n" + completionMessage(s)
			} else {
				t.reply = acknowledgment(rec) + "\n\n" + openingPrompt(s)
			}
			o.record(s, stage, text, now, t.reply)
			return true, nil
		case gate.Decline:
			rejected = d.Value
			if err := sequencer.Apply(s, stage, d, now); err != nil {
				return o.misrouted(s, t, err)
			}
			t.event(s, store.StageEventDeclined, before.Record(stage))
		}
	}

	ext, err := o.extract(ctx, s, stage, text, rejected)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Stage records are restored to their state before this turn.
		s.Records = before.Records
		t.events = nil
		t.event(s, store.StageEventGatewayFailure, s.Record(stage))
		t.reply = apologyReply
		o.record(s, stage, text, now, t.reply)
		return true, nil
	}

	d := o.gate.Evaluate(s.Record(stage), *ext, text)
	if d.Kind == gate.Abandon {
		sequencer.Terminate(s, ReasonClarificationLimit, now)
		t.event(s, store.StageEventAbandoned, s.Record(stage))
		t.reply = abandonReply(stage)
		o.record(s, stage, text, now, t.reply)
		return true, nil
	}
	if err := sequencer.Apply(s, stage, d, now); err != nil {
		return o.misrouted(s, t, err)
	}
	rec := s.Record(stage)
	switch {
	case d.Kind == gate.ReplaceAndClarify:
		t.event(s, store.StageEventClarify, rec)
		t.reply = d.Question
	case d.LowConfidence:
		t.event(s, store.StageEventForced, rec)
		t.reply = confirmationPrompt(stage, rec.Value, true)
	default:
		t.event(s, store.StageEventProposed, rec)
		t.reply = confirmationPrompt(stage, rec.Value, false)
	}
	o.record(s, stage, text, now, t.reply)
	return true, nil
}

// extract calls the extractor, retrying failures with backoff.
func (o *Orchestrator) extract(ctx context.Context, s *assessment.Session, stage assessment.Stage, text, rejected string) (*extractor.Extraction, error) {
	req := extractor.Request{
		Stage:     stage,
		Utterance: text,
		History:   s.RecentHistory(o.cfg.HistoryTurns),
		Known:     assessment.Known(s),
		Rejected:  rejected,
	}
	var lastErr error
	for attempt := 0; attempt <= o.cfg.GatewayRetries; attempt++ {
		if attempt > 0 {
			if err := llm.Sleep(ctx, o.cfg.Backoff.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		ext, err := o.extractor.Extract(ctx, req)
		if err == nil {
			return ext, nil
		}
		lastErr = err
		o.log.Warn("extraction failed", "session_id", s.ID, "stage", stage, "attempt", attempt+1,
			"timeout", extractor.IsTimeout(err), "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// misrouted turns a sequencer refusal into a reprompt without writing.
func (o *Orchestrator) misrouted(s *assessment.Session, t *turn, err error) (bool, error) {
	o.log.Warn("sequencer refused decision", "session_id", s.ID, "error", err)
	t.events = nil
	if errors.Is(err, sequencer.ErrSessionClosed) {
		t.reply = closedReply(s)
	} else {
		t.reply = o.reprompt(s)
	}
	return false, nil
}

func (o *Orchestrator) record(s *assessment.Session, stage assessment.Stage, text string, now time.Time, reply string) {
	s.AppendMessage(assessment.RoleUser, text, stage, now)
	s.AppendMessage(assessment.RoleAssistant, reply, stage, now)
	s.UpdatedAt = now
}

// reprompt repeats what the current stage is waiting for.
func (o *Orchestrator) reprompt(s *assessment.Session) string {
	if s.Closed() {
		return closedReply(s)
	}
	rec := s.Record(s.Cursor)
	if rec.Status == assessment.StatusAwaitingConfirmation {
		return reaskPrefix + confirmationPrompt(rec.Stage, rec.Value, false)
	}
	return alreadyConfirmed(s)
}

func closedReply(s *assessment.Session) string {
	if s.Completed {
		return completedReply
	}
	return terminatedReply
}

// Start returns the opening message for a session without modifying it.
func (o *Orchestrator) Start(ctx context.Context, sessionID string) (*Response, error) {
	s, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	switch {
	case s.Closed():
		return respond(closedReply(s), s), nil
	case len(s.History) == 0:
		return respond(greeting+"\n\n"+openingPrompt(s), s), nil
	}
	rec := s.Record(s.Cursor)
	if rec.Status == assessment.StatusAwaitingConfirmation {
		return respond(welcomeBack+" "+confirmationPrompt(rec.Stage, rec.Value, rec.LowConfidence), s), nil
	}
	return respond(welcomeBack+" "+openingPrompt(s), s), nil
}

// GetProgress returns the progress snapshot without processing anything.
func (o *Orchestrator) GetProgress(ctx context.Context, sessionID string) (*assessment.Progress, error) {
	s, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	p := assessment.ProgressOf(s)
	return &p, nil
}

// Profile returns the finished profile, or assessment.ErrNotComplete.
func (o *Orchestrator) Profile(ctx context.Context, sessionID string) (*assessment.Profile, error) {
	s, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return assessment.ProfileOf(s)
}

// Terminate closes the session. Terminating a closed session is a no-op.
func (o *Orchestrator) Terminate(ctx context.Context, sessionID, reason string) (*Response, error) {
	if reason == "" {
		reason = ReasonExternal
	}
	var changed bool
	s, err := o.updater.Update(ctx, sessionID, func(_ context.Context, s *assessment.Session) (bool, error) {
		changed = sequencer.Terminate(s, reason, o.now())
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		o.log.Info("session terminated", "session_id", sessionID, "reason", reason)
		ev := store.StageEventData{SessionID: s.ID, Stage: s.Cursor.String(), Kind: store.StageEventTerminated}
		if err := o.events.AppendStageEvent(context.WithoutCancel(ctx), ev); err != nil {
			o.log.Warn("record stage event", "session_id", sessionID, "error", err)
		}
	}
	return respond(closedReply(s), s), nil
}

// UserMessage is the natural-language reply for an error returned by the
// orchestrator, for transports that must never show raw errors.
func UserMessage(err error) string {
	if errors.Is(err, store.ErrConcurrentUpdate) {
		return busyReply
	}
	return apologyReply
}
