package gate

import (
	"testing"

	"github.com/abhisek/learnintake/internal/assessment"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Intent
	}{
		{"네", IntentAffirm},
		{"네!", IntentAffirm},
		{"네네", IntentAffirm},
		{"넵", IntentAffirm},
		{"확정", IntentAffirm},
		{"확정해주세요", IntentAffirm},
		{"네 맞아요", IntentAffirm},
		{"좋아요 다음 단계로 가요", IntentAffirm},
		{"OK", IntentAffirm},
		{"yes", IntentAffirm},
		{"ㅇㅇ", IntentAffirm},
		{"아니요", IntentReject},
		{"아니요, 파이썬 데이터 분석이요", IntentReject},
		{"다시 할게요", IntentReject},
		{"No", IntentReject},
		{"네 아니 잠깐만요", IntentReject},
		{"종료", IntentExit},
		{"exit", IntentExit},
		{"종료 조건을 배우고 싶어요", IntentDetail},
		{"파이썬 좋아해요", IntentDetail},
		{"네트워크 보안", IntentDetail},
		{"다음주부터 시작하려고요", IntentDetail},
		{"네 저는 하루에 두 시간 정도 공부할 수 있어요", IntentDetail},
		{"", IntentUnrelated},
		{"?!", IntentUnrelated},
		{"ㅋㅋ", IntentUnrelated},
		{"ㅠㅠ", IntentUnrelated},
		{"음", IntentUnrelated},
		{"장고", IntentDetail},
		{"장고로 백엔드 쪽을 더 구체적으로 하고 싶어요", IntentDetail},
	}
	for _, tt := range tests {
		if got := Classify(tt.in); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDefaultQuestionPerStage(t *testing.T) {
	for _, st := range assessment.Stages() {
		if DefaultQuestion(st) == "" {
			t.Errorf("no default question for %s", st)
		}
	}
	if DefaultQuestion(assessment.StageDone) != "" {
		t.Error("done stage should have no question")
	}
}
