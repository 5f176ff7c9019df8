package server

import (
	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/dialog"
)

type CreateSessionRequest struct {
	// SessionID resumes or pins an id; a new one is generated when empty.
	SessionID string `json:"session_id,omitempty" maxLength:"128" pattern:"^[A-Za-z0-9_-]*$" doc:"Optional session id"`
}

type MessageRequest struct {
	Text string `json:"text" minLength:"1" maxLength:"4000" doc:"Learner utterance" example:"파이썬 웹 개발을 배우고 싶어요"`
}

type TerminateRequest struct {
	Reason string `json:"reason,omitempty" maxLength:"64" doc:"Why the session is closed"`
}

type StageStatus struct {
	Stage       string `json:"stage" example:"topic"`
	DisplayName string `json:"display_name" example:"주제 파악"`
	Status      string `json:"status" enum:"pending,awaiting_confirmation,confirmed"`
	Value       string `json:"value,omitempty"`
	Current     bool   `json:"current"`
}

type ProgressResponse struct {
	SessionID       string        `json:"session_id"`
	Stage           string        `json:"stage" enum:"topic,goal,time,budget,level,done"`
	StageIndex      int           `json:"stage_index" minimum:"1" maximum:"5"`
	ConfirmedStages []string      `json:"confirmed_stages"`
	Stages          []StageStatus `json:"stages"`
	Percentage      int           `json:"percentage"`
	Complete        bool          `json:"complete"`
	Terminated      bool          `json:"terminated"`
}

type TurnResponse struct {
	SessionID       string           `json:"session_id"`
	Reply           string           `json:"reply"`
	Stage           string           `json:"stage"`
	StageIndex      int              `json:"stage_index"`
	ConfirmedStages []string         `json:"confirmed_stages"`
	Complete        bool             `json:"complete"`
	Terminated      bool             `json:"terminated"`
	Progress        ProgressResponse `json:"progress"`
}

type ProfileResponse struct {
	SessionID     string   `json:"session_id"`
	Topic         string   `json:"topic"`
	Goal          string   `json:"goal"`
	Time          string   `json:"time"`
	Budget        string   `json:"budget"`
	Level         string   `json:"level"`
	LowConfidence []string `json:"low_confidence"`
}

func stageNames(stages []assessment.Stage) []string {
	out := make([]string, 0, len(stages))
	for _, st := range stages {
		out = append(out, st.String())
	}
	return out
}

func toProgress(p assessment.Progress) ProgressResponse {
	out := ProgressResponse{
		SessionID:       p.SessionID,
		Stage:           p.Stage.String(),
		StageIndex:      p.StageIndex,
		ConfirmedStages: stageNames(p.ConfirmedStages),
		Stages:          make([]StageStatus, 0, len(p.Stages)),
		Percentage:      p.Percentage,
		Complete:        p.Complete,
		Terminated:      p.Terminated,
	}
	for _, s := range p.Stages {
		out.Stages = append(out.Stages, StageStatus{
			Stage:       s.Stage.String(),
			DisplayName: s.DisplayName,
			Status:      string(s.Status),
			Value:       s.Value,
			Current:     s.Current,
		})
	}
	return out
}

func toTurn(r *dialog.Response) TurnResponse {
	return TurnResponse{
		SessionID:       r.Progress.SessionID,
		Reply:           r.Reply,
		Stage:           r.Stage.String(),
		StageIndex:      r.StageIndex,
		ConfirmedStages: stageNames(r.ConfirmedStages),
		Complete:        r.Complete,
		Terminated:      r.Terminated,
		Progress:        toProgress(r.Progress),
	}
}

func toProfile(p *assessment.Profile) ProfileResponse {
	return ProfileResponse{
		SessionID:     p.SessionID,
		Topic:         p.Topic,
		Goal:          p.Goal,
		Time:          p.Time,
		Budget:        p.Budget,
		Level:         p.Level,
		LowConfidence: stageNames(p.LowConfidence),
	}
}
