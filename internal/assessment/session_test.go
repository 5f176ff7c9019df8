package assessment

import (
	"encoding/json"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestStageOrder(t *testing.T) {
	want := []string{"topic", "goal", "time", "budget", "level"}
	for i, st := range Stages() {
		if st.String() != want[i] {
			t.Errorf("stage %d = %q, want %q", i, st, want[i])
		}
		if st.Index() != i+1 {
			t.Errorf("%s index = %d, want %d", st, st.Index(), i+1)
		}
	}
	if StageLevel.Next() != StageDone {
		t.Errorf("level.Next() = %s, want done", StageLevel.Next())
	}
	if StageDone.Next() != StageDone {
		t.Error("done must be its own successor")
	}
}

func TestParseStage(t *testing.T) {
	for _, st := range append(Stages(), StageDone) {
		got, err := ParseStage(st.String())
		if err != nil {
			t.Fatalf("ParseStage(%q): %v", st, err)
		}
		if got != st {
			t.Errorf("ParseStage(%q) = %s", st, got)
		}
	}
	if _, err := ParseStage("hobby"); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestSessionJSONUsesStageNames(t *testing.T) {
	s := NewSession("s1", t0)
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["cursor"] != "topic" {
		t.Errorf("cursor = %v, want \"topic\"", generic["cursor"])
	}

	var back Session
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Errorf("round-tripped session invalid: %v", err)
	}
}

func TestNewSessionIsValid(t *testing.T) {
	s := NewSession("s1", t0)
	if err := s.Validate(); err != nil {
		t.Fatalf("new session invalid: %v", err)
	}
	if s.Cursor != StageTopic {
		t.Errorf("cursor = %s, want topic", s.Cursor)
	}
	for _, r := range s.Records {
		if r.Status != StatusPending || r.HasValue() {
			t.Errorf("%s: want empty pending record, got %+v", r.Stage, r)
		}
	}
}

func TestValidateRejectsBrokenInvariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Session)
	}{
		{"gap in confirmed prefix", func(s *Session) {
			s.Cursor = StageTime
			s.Records[StageTopic] = StageRecord{Stage: StageTopic, Value: "go", Status: StatusConfirmed}
		}},
		{"confirmed past cursor", func(s *Session) {
			s.Records[StageGoal] = StageRecord{Stage: StageGoal, Value: "job", Status: StatusConfirmed}
		}},
		{"awaiting without value", func(s *Session) {
			s.Records[StageTopic].Status = StatusAwaitingConfirmation
		}},
		{"awaiting past cursor", func(s *Session) {
			s.Records[StageGoal] = StageRecord{Stage: StageGoal, Value: "job", Status: StatusAwaitingConfirmation}
		}},
		{"confidence out of range", func(s *Session) {
			s.Records[StageTopic].Confidence = 1.5
		}},
		{"completed before done", func(s *Session) {
			s.Completed = true
		}},
		{"missing record", func(s *Session) {
			s.Records = s.Records[:4]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("s1", t0)
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSession("s1", t0)
	s.AppendMessage(RoleUser, "hello", StageTopic, t0)

	c := s.Clone()
	c.Records[StageTopic].Value = "파이썬"
	c.AppendMessage(RoleAssistant, "hi", StageTopic, t0)

	if s.Records[StageTopic].Value != "" {
		t.Error("clone shares records with original")
	}
	if len(s.History) != 1 {
		t.Errorf("original history len = %d, want 1", len(s.History))
	}
}

func TestRecentHistory(t *testing.T) {
	s := NewSession("s1", t0)
	for _, text := range []string{"a", "b", "c", "d"} {
		s.AppendMessage(RoleUser, text, StageTopic, t0)
	}
	got := s.RecentHistory(3)
	if len(got) != 3 || got[0].Text != "b" || got[2].Text != "d" {
		t.Errorf("RecentHistory(3) = %+v", got)
	}
	if len(s.RecentHistory(10)) != 4 {
		t.Error("RecentHistory larger than history should return everything")
	}
	if s.RecentHistory(0) != nil {
		t.Error("RecentHistory(0) should be nil")
	}
}

func completedSession() *Session {
	s := NewSession("done", t0)
	values := []string{"파이썬 웹 개발", "CAREER_CHANGE", "REGULAR", "STANDARD", "BEGINNER"}
	for i, st := range Stages() {
		s.Records[st] = StageRecord{Stage: st, Value: values[i], Confidence: 0.9, Status: StatusConfirmed}
	}
	s.Records[StageBudget].LowConfidence = true
	s.Cursor = StageDone
	s.Completed = true
	return s
}

func TestProgressOf(t *testing.T) {
	s := NewSession("s1", t0)
	s.Records[StageTopic] = StageRecord{Stage: StageTopic, Value: "go", Confidence: 0.9, Status: StatusConfirmed}
	s.Cursor = StageGoal

	p := ProgressOf(s)
	if p.Stage != StageGoal || p.StageIndex != 2 {
		t.Errorf("progress stage = %s/%d, want goal/2", p.Stage, p.StageIndex)
	}
	if len(p.ConfirmedStages) != 1 || p.ConfirmedStages[0] != StageTopic {
		t.Errorf("confirmed = %v", p.ConfirmedStages)
	}
	if p.Percentage != 20 {
		t.Errorf("percentage = %d, want 20", p.Percentage)
	}
	if !p.Stages[StageGoal].Current {
		t.Error("goal should be marked current")
	}

	done := ProgressOf(completedSession())
	if done.StageIndex != StageCount || !done.Complete || done.Percentage != 100 {
		t.Errorf("completed progress = %+v", done)
	}
}

func TestProfileOf(t *testing.T) {
	if _, err := ProfileOf(NewSession("s1", t0)); err != ErrNotComplete {
		t.Errorf("incomplete profile err = %v, want ErrNotComplete", err)
	}

	p, err := ProfileOf(completedSession())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Topic != "파이썬 웹 개발" || p.Level != "BEGINNER" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.LowConfidence) != 1 || p.LowConfidence[0] != StageBudget {
		t.Errorf("low confidence = %v, want [budget]", p.LowConfidence)
	}
}
