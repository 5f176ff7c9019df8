package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/llm"
)

// extractionSchema is the structured output every stage prompt asks for.
var extractionSchema = &llm.Schema{
	Name:        "stage-extraction",
	Description: "Candidate value for one assessment stage",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        "string",
				"description": "추출한 값. 파악하지 못했으면 빈 문자열",
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0.0,
				"maximum": 1.0,
			},
			"is_clear": map[string]any{
				"type": "boolean",
			},
			"clarification_question": map[string]any{
				"type":        "string",
				"description": "is_clear가 false일 때 사용자에게 물어볼 질문",
			},
			"reasoning": map[string]any{
				"type": "string",
			},
		},
		"required":             []any{"value", "confidence", "is_clear", "clarification_question", "reasoning"},
		"additionalProperties": false,
	},
}

type extractionOutput struct {
	Value                 string   `json:"value"`
	Confidence            *float64 `json:"confidence"`
	IsClear               bool     `json:"is_clear"`
	ClarificationQuestion string   `json:"clarification_question"`
	Reasoning             string   `json:"reasoning"`
}

var stagePrompts = map[assessment.Stage]string{
	assessment.StageTopic: `당신은 학습 상담 전문가입니다. 사용자가 학습하고 싶어하는 주제를 정확히 파악해주세요.

## 판단 기준:
- **구체성**: "프로그래밍"보다는 "파이썬 프로그래밍"처럼 구체적인 주제인지
- **명확성**: 무엇을 배우고 싶은지 분명한지
- **학습 가능성**: 실제로 학습 과정을 설계할 수 있는 주제인지

주제가 너무 일반적이거나 확신도가 0.6 미만이면 is_clear를 false로 하고
어떤 분야인지 구체적으로 묻는 clarification_question을 작성하세요.`,

	assessment.StageGoal: `당신은 학습 목표 파악 전문가입니다.
사용자의 학습 동기와 목표를 정확히 파악하여 맞춤형 학습 경로를 제안하는 것이 목표입니다.

## 주요 목표 카테고리:
- **HOBBY**: 취미, 지식 확장, 개인적 성장, 호기심 충족
- **CAREER_CHANGE**: 이직, 전직, 새로운 분야 진입, 커리어 전환
- **SKILL_UPGRADE**: 현재 업무 스킬 향상, 승진 준비, 업무 효율성 증대
- **CERTIFICATION**: 자격증, 시험 준비, 학위 취득
- **PROJECT**: 특정 프로젝트, 창업 준비, 사이드 프로젝트

value에는 "백엔드 개발자로 이직"처럼 구체적인 목표를 짧게 적으세요.`,

	assessment.StageTime: `당신은 학습 시간 가용성 파악 전문가입니다.

## 분석해야 할 영역:
1. **주간 가능 시간**: 일주일에 몇 시간 학습할 수 있는지
2. **시간대 선호**: 평일/주말, 아침/저녁 등
3. **학습 기간**: 목표 달성까지 얼마나 걸려도 되는지
4. **일정 유연성**: 일정이 얼마나 규칙적인지

## 시간 카테고리:
- **INTENSIVE**: 주 20시간 이상
- **REGULAR**: 주 10-20시간
- **MODERATE**: 주 5-10시간
- **MINIMAL**: 주 5시간 미만

value에는 "주 10시간, 주말 위주"처럼 파악한 가용 시간을 적으세요.`,

	assessment.StageBudget: `당신은 학습 예산 범위 파악 전문가입니다.

## 분석해야 할 영역:
1. **월 예산 범위**: 한 달에 얼마나 학습비용을 쓸 수 있는지
2. **우선순위**: 무료 vs 유료, 품질 vs 비용 중요도
3. **예산 유연성**: 예산이 얼마나 조정 가능한지

## 예산 카테고리:
- **FREE_ONLY**: 무료만 가능
- **BUDGET**: 월 1-3만원
- **STANDARD**: 월 3-10만원
- **PREMIUM**: 월 10만원 이상

직접적인 금액 언급이 없으면 맥락으로 추정하되 확신도를 낮추세요.`,

	assessment.StageLevel: `당신은 학습 수준 측정 전문가입니다.
사용자의 답변을 종합적으로 분석하여 해당 주제에 대한 현재 학습 수준을 정확히 파악해주세요.

## 수준 카테고리:
- **BEGINNER**: 기본 개념을 모르거나 경험이 전혀 없음
- **INTERMEDIATE**: 기본 개념 이해, 간단한 실습/프로젝트 경험
- **ADVANCED**: 심화 개념 이해, 복잡한 프로젝트나 실무 경험

## 평가 원칙:
- 사용자가 명시적으로 "모른다"고 하면 BEGINNER
- 애매할 때는 보수적으로 한 단계 낮게 평가`,
}

const outputRules = `

## 응답 규칙:
- confidence는 0.0~1.0 사이의 확신도입니다.
- 값을 파악하지 못했으면 value를 빈 문자열로, is_clear를 false로 하세요.
- 반드시 지정된 JSON 형식으로만 응답하세요.`

// LLMGateway is the Gateway backed by a language model.
type LLMGateway struct {
	provider llm.Provider
	maxTok   int
	temp     float64
}

// NewLLMGateway builds a gateway. A maxTokens of zero uses the
// provider default configured in llm.DefaultConfig.
func NewLLMGateway(p llm.Provider, maxTokens int, temperature float64) *LLMGateway {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultConfig().MaxTokens
	}
	return &LLMGateway{provider: p, maxTok: maxTokens, temp: temperature}
}

func (g *LLMGateway) Extract(ctx context.Context, req Request) (*RawExtraction, error) {
	ctx = llm.WithPurpose(ctx, "extract:"+req.Stage.String())
	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      systemPrompt(req),
		Messages:    transcript(req),
		Schema:      extractionSchema,
		MaxTokens:   g.maxTok,
		Temperature: g.temp,
	})
	if err != nil {
		return nil, err
	}

	var out extractionOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return nil, &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return &RawExtraction{
		Value:                 out.Value,
		Confidence:            out.Confidence,
		IsClear:               out.IsClear,
		ClarificationQuestion: out.ClarificationQuestion,
	}, nil
}

func systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(stagePrompts[req.Stage])
	b.WriteString(outputRules)

	var known []string
	for _, st := range assessment.Stages() {
		if v, ok := req.Known[st]; ok && st != req.Stage {
			known = append(known, fmt.Sprintf("- %s: %s", st.Subject(), v))
		}
	}
	if len(known) > 0 {
		b.WriteString("\n\n## 이미 확인된 정보:\n")
		b.WriteString(strings.Join(known, "\n"))
	}
	if req.Rejected != "" {
		fmt.Fprintf(&b, "\n\n사용자가 방금 '%s'(은)는 맞지 않다고 했습니다. 같은 값을 다시 제안하지 마세요.", req.Rejected)
	}
	return b.String()
}

func transcript(req Request) []llm.Message {
	msgs := make([]llm.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		role := llm.RoleUser
		if m.Role == assessment.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	// Providers expect the transcript to open with a user turn.
	for len(msgs) > 0 && msgs[0].Role != llm.RoleUser {
		msgs = msgs[1:]
	}
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("사용자 답변: %q", req.Utterance),
	})
	return msgs
}
