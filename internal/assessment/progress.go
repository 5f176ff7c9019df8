package assessment

import "errors"

// StageProgress is the per-stage entry of a progress snapshot.
type StageProgress struct {
	Stage       Stage  `json:"stage"`
	DisplayName string `json:"display_name"`
	Status      Status `json:"status"`
	Value       string `json:"value,omitempty"`
	Current     bool   `json:"current"`
}

// Progress is a read-only snapshot of how far a session has come.
type Progress struct {
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`

	// StageIndex is 1..StageCount; a completed session reports StageCount.
	StageIndex      int             `json:"stage_index"`
	ConfirmedStages []Stage         `json:"confirmed_stages"`
	Stages          []StageProgress `json:"stages"`
	Percentage      int             `json:"percentage"`
	Complete        bool            `json:"complete"`
	Terminated      bool            `json:"terminated"`
}

// ProgressOf builds the progress snapshot of s.
func ProgressOf(s *Session) Progress {
	p := Progress{
		SessionID:       s.ID,
		Stage:           s.Cursor,
		StageIndex:      min(s.Cursor.Index(), StageCount),
		ConfirmedStages: s.ConfirmedStages(),
		Complete:        s.Completed,
		Terminated:      s.Terminated,
	}
	if p.ConfirmedStages == nil {
		p.ConfirmedStages = []Stage{}
	}
	for _, r := range s.Records {
		p.Stages = append(p.Stages, StageProgress{
			Stage:       r.Stage,
			DisplayName: r.Stage.DisplayName(),
			Status:      r.Status,
			Value:       r.Value,
			Current:     r.Stage == s.Cursor,
		})
	}
	p.Percentage = len(p.ConfirmedStages) * 100 / StageCount
	return p
}

// ErrNotComplete is returned when a profile is requested before every stage
// has been confirmed.
var ErrNotComplete = errors.New("assessment not complete")

// Profile is the finished learner profile handed to the curriculum generator.
type Profile struct {
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
	Goal      string `json:"goal"`
	Time      string `json:"time"`
	Budget    string `json:"budget"`
	Level     string `json:"level"`

	// LowConfidence lists stages confirmed after the clarification cap forced
	// a proposal.
	LowConfidence []Stage `json:"low_confidence"`
}

// ProfileOf returns the profile of a completed session.
func ProfileOf(s *Session) (*Profile, error) {
	if !s.Completed {
		return nil, ErrNotComplete
	}
	p := &Profile{
		SessionID:     s.ID,
		Topic:         s.Record(StageTopic).Value,
		Goal:          s.Record(StageGoal).Value,
		Time:          s.Record(StageTime).Value,
		Budget:        s.Record(StageBudget).Value,
		Level:         s.Record(StageLevel).Value,
		LowConfidence: []Stage{},
	}
	for _, r := range s.Records {
		if r.LowConfidence {
			p.LowConfidence = append(p.LowConfidence, r.Stage)
		}
	}
	return p, nil
}

// Known returns the confirmed values so far keyed by stage, for prompting.
func Known(s *Session) map[Stage]string {
	out := make(map[Stage]string)
	for _, r := range s.Records {
		if r.Status == StatusConfirmed {
			out[r.Stage] = r.Value
		}
	}
	return out
}
