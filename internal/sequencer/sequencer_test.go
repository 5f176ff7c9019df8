package sequencer

import (
	"errors"
	"testing"
	"time"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/gate"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func confirmStage(t *testing.T, s *assessment.Session, value string) {
	t.Helper()
	stage := CurrentStage(s)
	if err := Apply(s, stage, gate.Decision{Kind: gate.ProposeConfirmation, Value: value, Confidence: 0.9}, now); err != nil {
		t.Fatalf("propose %s: %v", stage, err)
	}
	if AdvanceIfConfirmed(s) {
		t.Fatalf("%s advanced before confirmation", stage)
	}
	if err := Apply(s, stage, gate.Decision{Kind: gate.Confirm}, now); err != nil {
		t.Fatalf("confirm %s: %v", stage, err)
	}
	if !AdvanceIfConfirmed(s) {
		t.Fatalf("%s did not advance after confirmation", stage)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("after %s: %v", stage, err)
	}
}

func TestWalkAllStages(t *testing.T) {
	s := assessment.NewSession("s1", now)
	if got := CurrentStage(s); got != assessment.StageTopic {
		t.Fatalf("initial stage = %s", got)
	}

	want := []assessment.Stage{assessment.StageGoal, assessment.StageTime, assessment.StageBudget,
		assessment.StageLevel, assessment.StageDone}
	for i, next := range want {
		confirmStage(t, s, "v")
		if got := CurrentStage(s); got != next {
			t.Fatalf("step %d: stage = %s, want %s", i, got, next)
		}
	}
	if !IsComplete(s) || !s.Completed {
		t.Fatal("session should be complete")
	}
	if AdvanceIfConfirmed(s) {
		t.Error("done must be terminal")
	}
}

func TestApplyRejectsOutOfOrderStage(t *testing.T) {
	s := assessment.NewSession("s1", now)
	before := s.Clone()

	err := Apply(s, assessment.StageBudget, gate.Decision{Kind: gate.ProposeConfirmation, Value: "무료"}, now)
	if !errors.Is(err, ErrOutOfOrderStageAccess) {
		t.Fatalf("err = %v, want ErrOutOfOrderStageAccess", err)
	}
	if s.Record(assessment.StageBudget) != before.Record(assessment.StageBudget) {
		t.Error("out-of-order apply mutated the record")
	}

	confirmStage(t, s, "파이썬")
	if err := Apply(s, assessment.StageTopic, gate.Decision{Kind: gate.Decline}, now); !errors.Is(err, ErrOutOfOrderStageAccess) {
		t.Fatalf("confirmed stage reopened: %v", err)
	}
}

func TestClosedSessionRefusesMutation(t *testing.T) {
	s := assessment.NewSession("s1", now)
	if !Terminate(s, "user_exit", now) {
		t.Fatal("terminate reported no change")
	}
	if Terminate(s, "again", now) {
		t.Error("second terminate should be a no-op")
	}
	if s.TerminationReason != "user_exit" {
		t.Errorf("reason = %q", s.TerminationReason)
	}
	err := Apply(s, assessment.StageTopic, gate.Decision{Kind: gate.ProposeConfirmation, Value: "x"}, now)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
	if AdvanceIfConfirmed(s) {
		t.Error("terminated session advanced")
	}
	if IsComplete(s) {
		t.Error("terminated session reported complete")
	}
}

func TestConfirmedStagesFormPrefix(t *testing.T) {
	s := assessment.NewSession("s1", now)
	confirmStage(t, s, "a")
	confirmStage(t, s, "b")

	got := s.ConfirmedStages()
	if len(got) != 2 || got[0] != assessment.StageTopic || got[1] != assessment.StageGoal {
		t.Fatalf("confirmed = %v", got)
	}
}
