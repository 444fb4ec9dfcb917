package server

import (
	"contentline/internal/domain"
	"contentline/internal/workflow"
)

// Request payloads

type CreateProjectRequest struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title"`
	Channel  string         `json:"channel" enum:"LINKEDIN,YOUTUBE,INSTAGRAM"`
	DueDate  string         `json:"due_date,omitempty" format:"date"`
	Priority *int           `json:"priority,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

type ApproveRequest struct {
	Comment string `json:"comment,omitempty"`
}

type RejectRequest struct {
	TargetStage string `json:"target_stage"`
	Comment     string `json:"comment,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Channel      string         `json:"channel" enum:"LINKEDIN,YOUTUBE,INSTAGRAM"`
	ContentType  string         `json:"content_type" enum:"video,creative"`
	CurrentStage string         `json:"current_stage"`
	AssignedRole string         `json:"assigned_to_role"`
	Status       string         `json:"status" enum:"TODO,IN_PROGRESS,WAITING_APPROVAL,REJECTED,DONE"`
	Priority     *int           `json:"priority,omitempty"`
	DueDate      string         `json:"due_date,omitempty" format:"date"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
}

type ProjectListResponse struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type HistoryEventResponse struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	Stage     string `json:"stage"`
	Action    string `json:"action" enum:"CREATED,SUBMITTED,APPROVED,REJECTED,PUBLISHED"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Comment   string `json:"comment,omitempty"`
	TS        string `json:"ts" format:"date-time"`
}

type LogEntryResponse struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Action    string `json:"action"`
	ProjectID string `json:"project_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Details   string `json:"details_json,omitempty"`
}

type LogListResponse struct {
	Items      []LogEntryResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type WorkflowStepResponse struct {
	Stage string `json:"stage"`
	Role  string `json:"role"`
}

type ChannelResponse struct {
	Channel     string                 `json:"channel"`
	ContentType string                 `json:"content_type" enum:"video,creative"`
	Sequence    []WorkflowStepResponse `json:"sequence"`
}

type ReworkOptionsResponse struct {
	ProjectID    string   `json:"project_id"`
	CurrentStage string   `json:"current_stage"`
	Targets      []string `json:"targets"`
}

type DashboardResponse struct {
	Channel      string         `json:"channel,omitempty"`
	StatusCounts map[string]int `json:"status_counts"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role"`
	Source  string `json:"source,omitempty"`
}

type ActorResponse struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:           p.ID,
		Title:        p.Title,
		Channel:      string(p.Channel),
		ContentType:  string(p.ContentType),
		CurrentStage: string(p.CurrentStage),
		AssignedRole: string(p.AssignedRole),
		Status:       string(p.Status),
		Priority:     p.Priority,
		DueDate:      p.DueDate,
		Data:         p.Data,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func historyResponse(h domain.HistoryEvent) HistoryEventResponse {
	return HistoryEventResponse{
		ID:        h.ID,
		ProjectID: h.ProjectID,
		Stage:     string(h.Stage),
		Action:    string(h.Action),
		ActorID:   h.ActorID,
		ActorName: h.ActorName,
		Comment:   h.Comment,
		TS:        h.TS,
	}
}

func mapHistory(items []domain.HistoryEvent) []HistoryEventResponse {
	res := make([]HistoryEventResponse, 0, len(items))
	for _, h := range items {
		res = append(res, historyResponse(h))
	}
	return res
}

func logResponse(e domain.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:        e.ID,
		TS:        e.TS,
		Action:    e.Action,
		ProjectID: e.ProjectID,
		ActorID:   e.ActorID,
		Details:   e.Details,
	}
}

func mapLog(items []domain.LogEntry) []LogEntryResponse {
	res := make([]LogEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, logResponse(e))
	}
	return res
}

func mapSteps(steps []workflow.Step) []WorkflowStepResponse {
	res := make([]WorkflowStepResponse, 0, len(steps))
	for _, s := range steps {
		res = append(res, WorkflowStepResponse{Stage: string(s.Stage), Role: string(s.Role)})
	}
	return res
}

func mapStages(stages []domain.Stage) []string {
	res := make([]string, 0, len(stages))
	for _, s := range stages {
		res = append(res, string(s))
	}
	return res
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{ID: a.ID, Name: a.Name, Role: string(a.Role)}
}
