package assessment

import (
	"errors"
	"fmt"
	"time"
)

// StageRecord is the per-stage state of a session.
type StageRecord struct {
	Stage Stage `json:"stage"`

	// Value is the current candidate or confirmed answer. Empty means absent.
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Status     Status  `json:"status"`

	// ClarificationAttempts counts ambiguous extractions for this stage.
	ClarificationAttempts int `json:"clarification_attempts"`

	// LowConfidence marks a value proposed after the clarification cap was
	// reached rather than because the gateway was confident.
	LowConfidence bool `json:"low_confidence,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// HasValue reports whether the record holds a candidate or confirmed value.
func (r StageRecord) HasValue() bool { return r.Value != "" }

// Role identifies the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the append-only conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the full persisted state of one learner's assessment.
type Session struct {
	ID string `json:"id"`

	// Records holds exactly one record per stage, in stage order.
	Records []StageRecord `json:"records"`

	// Cursor is the stage currently being collected.
	Cursor Stage `json:"cursor"`

	History []Message `json:"history"`

	Completed         bool   `json:"completed"`
	Terminated        bool   `json:"terminated"`
	TerminationReason string `json:"termination_reason,omitempty"`

	// Version is the optimistic concurrency token. It is zero for a session
	// that has never been saved and is bumped by the store on every save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns a freshly initialized session with every stage pending.
func NewSession(id string, now time.Time) *Session {
	records := make([]StageRecord, 0, StageCount)
	for _, st := range Stages() {
		records = append(records, StageRecord{Stage: st, Status: StatusPending})
	}
	return &Session{
		ID:        id,
		Records:   records,
		Cursor:    StageTopic,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Record returns the record for stage. It panics for StageDone.
func (s *Session) Record(stage Stage) StageRecord {
	return s.Records[stage]
}

// SetRecord replaces the record for rec.Stage.
func (s *Session) SetRecord(rec StageRecord) {
	s.Records[rec.Stage] = rec
}

// Closed reports whether the session refuses further mutation.
func (s *Session) Closed() bool { return s.Completed || s.Terminated }

// ConfirmedStages returns the stages whose records are confirmed, in order.
func (s *Session) ConfirmedStages() []Stage {
	var out []Stage
	for _, r := range s.Records {
		if r.Status == StatusConfirmed {
			out = append(out, r.Stage)
		}
	}
	return out
}

// AppendMessage adds an entry to the conversation history.
func (s *Session) AppendMessage(role Role, text string, stage Stage, now time.Time) {
	s.History = append(s.History, Message{Role: role, Text: text, Stage: stage, Timestamp: now})
}

// RecentHistory returns at most the last n history entries.
func (s *Session) RecentHistory(n int) []Message {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return append([]Message(nil), s.History...)
	}
	return append([]Message(nil), s.History[len(s.History)-n:]...)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Records = append([]StageRecord(nil), s.Records...)
	c.History = append([]Message(nil), s.History...)
	return &c
}

var errInvalidSession = errors.New("invalid session")

// Validate checks the structural invariants of a session: confirmed records
// form a prefix ending at the cursor, at most one record awaits confirmation,
// and completion agrees with the cursor.
func (s *Session) Validate() error {
	if len(s.Records) != StageCount {
		return fmt.Errorf("%w: %d records, want %d", errInvalidSession, len(s.Records), StageCount)
	}
	if !s.Cursor.valid() {
		return fmt.Errorf("%w: cursor %d out of range", errInvalidSession, int(s.Cursor))
	}
	awaiting := 0
	for i, r := range s.Records {
		if r.Stage != Stage(i) {
			return fmt.Errorf("%w: record %d holds stage %s", errInvalidSession, i, r.Stage)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("%w: %s confidence %.2f out of range", errInvalidSession, r.Stage, r.Confidence)
		}
		if r.ClarificationAttempts < 0 {
			return fmt.Errorf("%w: %s negative clarification attempts", errInvalidSession, r.Stage)
		}
		switch {
		case r.Stage < s.Cursor:
			if r.Status != StatusConfirmed {
				return fmt.Errorf("%w: %s before cursor is %s", errInvalidSession, r.Stage, r.Status)
			}
		case r.Stage == s.Cursor:
			if r.Status == StatusConfirmed {
				return fmt.Errorf("%w: cursor stage %s already confirmed", errInvalidSession, r.Stage)
			}
		default:
			if r.Status != StatusPending {
				return fmt.Errorf("%w: %s after cursor is %s", errInvalidSession, r.Stage, r.Status)
			}
		}
		if r.Status == StatusAwaitingConfirmation {
			if !r.HasValue() {
				return fmt.Errorf("%w: %s awaiting confirmation without a value", errInvalidSession, r.Stage)
			}
			awaiting++
		}
		if r.Status == StatusConfirmed && !r.HasValue() {
			return fmt.Errorf("%w: %s confirmed without a value", errInvalidSession, r.Stage)
		}
	}
	if awaiting > 1 {
		return fmt.Errorf("%w: %d stages awaiting confirmation", errInvalidSession, awaiting)
	}
	if s.Completed != (s.Cursor == StageDone) {
		return fmt.Errorf("%w: completed=%v with cursor %s", errInvalidSession, s.Completed, s.Cursor)
	}
	return nil
}
