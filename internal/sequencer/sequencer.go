// Package sequencer moves a session through the stages in order. It is the
// only code that writes stage records.
package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/gate"
)

var (
	// ErrOutOfOrderStageAccess is returned when a decision targets a stage
	// other than the cursor.
	ErrOutOfOrderStageAccess = errors.New("stage is not the current stage")

	// ErrSessionClosed is returned for completed or terminated sessions.
	ErrSessionClosed = errors.New("session is closed")
)

// CurrentStage returns the stage the session is on.
func CurrentStage(s *assessment.Session) assessment.Stage {
	return s.Cursor
}

// IsComplete reports whether every stage is confirmed.
func IsComplete(s *assessment.Session) bool {
	return s.Completed && s.Cursor.IsTerminal()
}

// Apply writes decision d into the record of stage. It never advances the
// cursor; see AdvanceIfConfirmed.
func Apply(s *assessment.Session, stage assessment.Stage, d gate.Decision, now time.Time) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if stage != s.Cursor {
		return fmt.Errorf("%w: got %s, current %s", ErrOutOfOrderStageAccess, stage, s.Cursor)
	}
	s.SetRecord(gate.Apply(s.Record(stage), d, now))
	s.UpdatedAt = now
	return nil
}

// AdvanceIfConfirmed moves the cursor past a confirmed current stage. Moving
// onto Done completes the session.
func AdvanceIfConfirmed(s *assessment.Session) bool {
	if s.Closed() || s.Cursor.IsTerminal() {
		return false
	}
	if s.Record(s.Cursor).Status != assessment.StatusConfirmed {
		return false
	}
	s.Cursor = s.Cursor.Next()
	if s.Cursor.IsTerminal() {
		s.Completed = true
	}
	return true
}

// Terminate closes the session. It is a no-op on an already closed session
// and reports whether anything changed.
func Terminate(s *assessment.Session, reason string, now time.Time) bool {
	if s.Closed() {
		return false
	}
	s.Terminated = true
	s.TerminationReason = reason
	s.UpdatedAt = now
	return true
}
