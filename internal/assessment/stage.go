package assessment

import "fmt"

// Stage is one step of the intake assessment. Stages are totally ordered and
// the zero value is the first stage.
type Stage int

const (
	StageTopic Stage = iota
	StageGoal
	StageTime
	StageBudget
	StageLevel
	StageDone
)

// StageCount is the number of non-terminal stages.
const StageCount = int(StageDone)

var stageNames = [...]string{"topic", "goal", "time", "budget", "level", "done"}

// Display names shown to learners.
var stageDisplayNames = [...]string{"주제 파악", "목표 설정", "시간 계획", "예산 설정", "수준 측정", "평가 완료"}

// Subject nouns used when composing prompts, e.g. "학습 주제를 ...".
var stageSubjects = [...]string{"학습 주제", "학습 목적", "학습 시간", "학습 예산", "학습 수준", ""}

// Stages returns the non-terminal stages in order.
func Stages() []Stage {
	return []Stage{StageTopic, StageGoal, StageTime, StageBudget, StageLevel}
}

func (s Stage) valid() bool { return s >= StageTopic && s <= StageDone }

func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// DisplayName returns the learner-facing name of the stage.
func (s Stage) DisplayName() string {
	if !s.valid() {
		return s.String()
	}
	return stageDisplayNames[s]
}

// Subject returns the noun phrase naming what the stage pins down.
func (s Stage) Subject() string {
	if !s.valid() {
		return ""
	}
	return stageSubjects[s]
}

// Index returns the 1-based position of the stage. StageDone reports
// StageCount+1.
func (s Stage) Index() int { return int(s) + 1 }

// Next returns the stage that follows s. StageDone is its own successor.
func (s Stage) Next() Stage {
	if s >= StageDone {
		return StageDone
	}
	return s + 1
}

// IsTerminal reports whether s is StageDone.
func (s Stage) IsTerminal() bool { return s == StageDone }

// ParseStage converts a stage name back to a Stage.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	parsed, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Status is the confirmation status of a stage record.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
)
