package dialog

import (
	"fmt"
	"strings"

	"github.com/abhisek/learnintake/internal/assessment"
)

const (
	greeting = "안녕하세요! 🎯 맞춤형 학습 추천을 위해 간단한 평가를 진행하겠습니다. " +
		"주제, 목적, 시간, 예산, 수준의 5단계로 진행되며 각 단계마다 답변을 확인한 뒤 넘어갑니다."
	welcomeBack = "다시 오신 것을 환영합니다! 이어서 진행할게요."

	apologyReply     = "죄송합니다. 지금 답변을 처리하는 중에 문제가 발생했어요. 잠시 후 같은 내용을 다시 말씀해 주세요."
	completedReply   = "평가가 이미 완료되었습니다. 수집된 정보로 맞춤형 학습 추천을 준비하고 있어요."
	terminatedReply  = "평가 세션이 종료되었습니다. 새로운 평가를 원하시면 새 세션을 시작해 주세요."
	exitReply        = "평가를 종료합니다. 이용해 주셔서 감사합니다!"
	busyReply        = "같은 세션에서 다른 답변이 처리되고 있어요. 잠시 후 다시 말씀해 주세요."
	nothingToConfirm = "아직 확정할 답변이 없어요."
	forcedPrefix     = "여러 번 여쭤봤지만 정확히 파악하기 어려워 가장 가까운 답으로 정리했어요. "
	reaskPrefix      = "확인이 필요해요. "
)

// openingPrompts open each stage.
var openingPrompts = map[assessment.Stage]string{
	assessment.StageTopic:  "어떤 주제를 공부하고 싶으신가요?",
	assessment.StageGoal:   "이 주제를 공부하려는 목적은 무엇인가요? 예를 들어 취업, 이직, 업무 활용, 취미, 자격증 등이 있습니다.",
	assessment.StageTime:   "일주일에 학습에 투자할 수 있는 시간은 어느 정도인가요?",
	assessment.StageBudget: "학습 비용으로 한 달에 어느 정도까지 생각하고 계신가요? 무료 자료만 원하셔도 괜찮아요.",
	assessment.StageLevel:  "해당 분야에 대해 지금 어느 정도 알고 계신가요? 경험해 보신 내용을 편하게 말씀해 주세요.",
}

func openingPrompt(s *assessment.Session) string {
	if s.Cursor == assessment.StageLevel {
		if topic := s.Record(assessment.StageTopic).Value; topic != "" {
			return fmt.Sprintf("'%s' 분야에 대해 지금 어느 정도 알고 계신가요? 경험해 보신 내용을 편하게 말씀해 주세요.", topic)
		}
	}
	return openingPrompts[s.Cursor]
}

// confirmationPrompt asks the learner to confirm the candidate of stage.
func confirmationPrompt(stage assessment.Stage, value string, lowConfidence bool) string {
	var b strings.Builder
	if lowConfidence {
		b.WriteString(forcedPrefix)
	}
	subject := stage.Subject()
	fmt.Fprintf(&b, "%s%s '%s'%s 확정하고 ", subject, objectParticle(subject), value, directionParticle(value))
	if next := stage.Next(); next.IsTerminal() {
		b.WriteString("평가를 완료하겠습니다.")
	} else {
		fmt.Fprintf(&b, "다음 단계(%s)로 넘어가시겠습니까?", next.Subject())
	}
	b.WriteString(" 맞으면 '네' 또는 '확정', 수정하시려면 추가 설명해 주세요.")
	return b.String()
}

func acknowledgment(rec assessment.StageRecord) string {
	return fmt.Sprintf("✅ %s: '%s' 확정되었습니다.", rec.Stage.Subject(), rec.Value)
}

func completionMessage(s *assessment.Session) string {
	var b strings.Builder
	b.WriteString("🎉 평가가 모두 완료되었습니다!\n")
	for _, r := range s.Records {
		fmt.Fprintf(&b, "\n- %s: %s", r.Stage.Subject(), r.Value)
		if r.LowConfidence {
			b.WriteString(" (추가 확인 필요)")
		}
	}
	b.WriteString("\n\n수집된 정보를 바탕으로 맞춤형 학습 계획을 준비하겠습니다.")
	return b.String()
}

// alreadyConfirmed answers a stray "yes" while the cursor stage is pending.
func alreadyConfirmed(s *assessment.Session) string {
	confirmed := s.ConfirmedStages()
	lead := nothingToConfirm
	if len(confirmed) > 0 {
		last := s.Record(confirmed[len(confirmed)-1])
		subject := last.Stage.Subject()
		lead = fmt.Sprintf("%s%s 이미 '%s'%s 확정되었습니다.", subject, topicParticle(subject), last.Value, directionParticle(last.Value))
	}
	return lead + " " + openingPrompt(s)
}

func abandonReply(stage assessment.Stage) string {
	subject := stage.Subject()
	return fmt.Sprintf("여러 번 확인했지만 %s%s 파악하지 못했어요. 평가를 종료합니다. 새 세션에서 다시 시도해 주세요.",
		subject, objectParticle(subject))
}

// Korean particles depend on whether the final syllable has a coda.

func objectParticle(word string) string { return pick(word, "을", "를", false) }

func topicParticle(word string) string { return pick(word, "은", "는", false) }

func directionParticle(word string) string { return pick(word, "으로", "로", true) }

// pick chooses withCoda or withoutCoda by the last Hangul syllable of word.
// With rieulAsVowel a final ㄹ takes the no-coda form, as in "개발로".
// Non-Hangul endings get the bracketed form, e.g. "을(를)".
func pick(word, withCoda, withoutCoda string, rieulAsVowel bool) string {
	runes := []rune(strings.TrimSpace(word))
	if len(runes) == 0 {
		return withoutCoda
	}
	last := runes[len(runes)-1]
	if last < 0xAC00 || last > 0xD7A3 {
		if strings.HasSuffix(withCoda, withoutCoda) {
			return "(" + strings.TrimSuffix(withCoda, withoutCoda) + ")" + withoutCoda
		}
		return withCoda + "(" + withoutCoda + ")"
	}
	coda := (last - 0xAC00) % 28
	switch {
	case coda == 0:
		return withoutCoda
	case coda == 8 && rieulAsVowel:
		return withoutCoda
	}
	return withCoda
}
