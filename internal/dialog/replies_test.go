package dialog

import (
	"strings"
	"testing"
	"time"

	"github.com/abhisek/learnintake/internal/assessment"
)

func TestParticles(t *testing.T) {
	tests := []struct {
		word      string
		object    string
		direction string
	}{
		{"학습 주제", "를", "로"},
		{"학습 수준", "을", "으로"},
		{"파이썬 웹 개발", "을", "로"},
		{"주 10시간", "을", "으로"},
		{"Go", "을(를)", "(으)로"},
		{"", "를", "로"},
	}
	for _, tt := range tests {
		if got := objectParticle(tt.word); got != tt.object {
			t.Errorf("objectParticle(%q) = %q, want %q", tt.word, got, tt.object)
		}
		if got := directionParticle(tt.word); got != tt.direction {
			t.Errorf("directionParticle(%q) = %q, want %q", tt.word, got, tt.direction)
		}
	}
}

func TestConfirmationPrompt(t *testing.T) {
	got := confirmationPrompt(assessment.StageTopic, "파이썬 웹 개발", false)
	want := "학습 주제를 '파이썬 웹 개발'로 확정하고 다음 단계(학습 목적)로 넘어가시겠습니까? " +
		"맞으면 '네' 또는 '확정', 수정하시려면 추가 설명해 주세요."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	last := confirmationPrompt(assessment.StageLevel, "초급", true)
	if !strings.HasPrefix(last, forcedPrefix) {
		t.Errorf("forced prompt lacks prefix: %q", last)
	}
	if !strings.Contains(last, "학습 수준을 '초급'으로 확정하고 평가를 완료하겠습니다.") {
		t.Errorf("last stage prompt = %q", last)
	}
}

func TestOpeningPromptMentionsTopicAtLevel(t *testing.T) {
	s := assessment.NewSession("s", time.Now())
	s.Cursor = assessment.StageLevel
	rec := s.Record(assessment.StageTopic)
	rec.Value = "러스트"
	s.SetRecord(rec)
	if got := openingPrompt(s); !strings.Contains(got, "'러스트' 분야") {
		t.Errorf("level prompt = %q", got)
	}
	for _, st := range assessment.Stages() {
		if openingPrompts[st] == "" {
			t.Errorf("no opening prompt for %s", st)
		}
	}
}
