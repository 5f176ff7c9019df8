package gate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abhisek/learnintake/internal/assessment"
)

// Intent is the deterministic reading of a reply.
type Intent int

const (
	// IntentUnrelated is empty or throwaway input such as "ㅋㅋ".
	IntentUnrelated Intent = iota
	IntentAffirm
	IntentReject
	IntentExit
	// IntentDetail is a substantive reply with no reply word: an answer,
	// or an explanation of one.
	IntentDetail
)

func (i Intent) String() string {
	switch i {
	case IntentAffirm:
		return "affirm"
	case IntentReject:
		return "reject"
	case IntentExit:
		return "exit"
	case IntentDetail:
		return "detail"
	}
	return "unrelated"
}

// maxAffirmTokens keeps an actual answer that happens to contain "다음" or
// "좋아" from being read as a yes.
const maxAffirmTokens = 4

var (
	affirmExact = set("네", "넵", "예", "응", "ㅇㅇ", "ㅇㅋ", "다음", "맞아요", "맞습니다", "맞네요",
		"좋아요", "좋습니다", "그래요", "yes", "y", "yep", "ok", "okay", "sure")
	// Stems match as prefixes, so "확정해주세요" and "넘어가요" count.
	affirmStems = []string{"확정", "맞아", "좋아", "넘어가"}

	rejectExact = set("no", "nope")
	rejectStems = []string{"아니", "아뇨", "틀렸", "다시", "수정", "바꿔"}

	exitWords = set("종료", "나가기", "quit", "exit")
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Classify reads utterance as an affirmation, rejection, exit request or
// substantive detail. Rejection wins over affirmation.
func Classify(utterance string) Intent {
	tokens := tokenize(utterance)
	if len(tokens) == 0 {
		return IntentUnrelated
	}
	if len(tokens) == 1 && exitWords[tokens[0]] {
		return IntentExit
	}
	for _, tok := range tokens {
		if rejectExact[tok] || hasStem(tok, rejectStems) {
			return IntentReject
		}
	}
	// An affirmation leads the reply: "네 맞아요" is a yes, "파이썬 좋아해요" is not.
	first := tokens[0]
	if len(tokens) <= maxAffirmTokens && (affirmExact[first] || hasStem(first, affirmStems) || repeated(first)) {
		return IntentAffirm
	}
	if substantive(tokens) {
		return IntentDetail
	}
	return IntentUnrelated
}

// minDetailRunes is how many letters outside bare jamo make a reply count
// as content.
const minDetailRunes = 2

func substantive(tokens []string) bool {
	n := 0
	for _, tok := range tokens {
		for _, r := range tok {
			if !isJamo(r) {
				n++
			}
		}
	}
	return n >= minDetailRunes
}

// isJamo matches Hangul compatibility jamo, as in "ㅋㅋ" or "ㅠㅠ".
func isJamo(r rune) bool { return r >= 0x3131 && r <= 0x318E }

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

func hasStem(tok string, stems []string) bool {
	for _, s := range stems {
		if strings.HasPrefix(tok, s) {
			return true
		}
	}
	return false
}

// repeated accepts "네네", "넵넵" and "응응".
func repeated(tok string) bool {
	r, size := utf8.DecodeRuneInString(tok)
	if size == 0 || size == len(tok) {
		return false
	}
	if !affirmExact[string(r)] {
		return false
	}
	return strings.Trim(tok, string(r)) == ""
}

// defaultQuestions are asked when the gateway supplies no question.
var defaultQuestions = map[assessment.Stage]string{
	assessment.StageTopic:  "좀 더 구체적으로 어떤 분야를 학습하고 싶으신가요? 예를 들어, 프로그래밍이라면 파이썬, 자바, 웹개발 등이 있습니다.",
	assessment.StageGoal:   "학습을 통해 이루고 싶은 목표를 조금 더 자세히 알려주시겠어요? 예를 들어 취업, 업무 활용, 취미, 자격증 등이 있습니다.",
	assessment.StageTime:   "일주일에 학습에 투자할 수 있는 시간이 어느 정도인가요? 예를 들어 '평일 하루 1시간', '주말 4시간'처럼 말씀해 주세요.",
	assessment.StageBudget: "한 달에 학습 비용으로 어느 정도까지 생각하고 계신가요? 무료 자료만 원하시는지, 유료 강의도 괜찮으신지 알려주세요.",
	assessment.StageLevel:  "해당 분야를 얼마나 경험해 보셨나요? 처음 시작하시는지, 간단한 실습이나 프로젝트 경험이 있으신지 알려주세요.",
}

// DefaultQuestion returns the fallback clarifying question for stage.
func DefaultQuestion(stage assessment.Stage) string {
	return defaultQuestions[stage]
}
