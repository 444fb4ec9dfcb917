package domain

// Channel is the publishing destination. It fixes which workflow sequence a
// project moves through and never changes after creation.
type Channel string

const (
	ChannelLinkedIn  Channel = "LINKEDIN"
	ChannelYouTube   Channel = "YOUTUBE"
	ChannelInstagram Channel = "INSTAGRAM"
)

// Stage is one step of a channel's production pipeline.
type Stage string

const (
	StageScript         Stage = "SCRIPT"
	StageScriptReviewL1 Stage = "SCRIPT_REVIEW_L1"
	StageScriptReviewL2 Stage = "SCRIPT_REVIEW_L2"
	StageShoot          Stage = "SHOOT"
	StageEdit           Stage = "EDIT"
	StageDesign         Stage = "DESIGN"
	StageMetadata       Stage = "METADATA"
	StageFinalReviewL1  Stage = "FINAL_REVIEW_L1"
	StageFinalReviewL2  Stage = "FINAL_REVIEW_L2"
	StagePublish        Stage = "PUBLISH"
	StageCompleted      Stage = "COMPLETED"
)

// Role identifies the party responsible for a stage.
type Role string

const (
	RoleWriter   Role = "WRITER"
	RoleCine     Role = "CINE"
	RoleEditor   Role = "EDITOR"
	RoleDesigner Role = "DESIGNER"
	RoleCMO      Role = "CMO"
	RoleCEO      Role = "CEO"
	RoleOps      Role = "OPS"
	RoleAdmin    Role = "ADMIN"
	RoleObserver Role = "OBSERVER"
)

// Status describes where a project sits relative to its assignee's action.
type Status string

const (
	StatusTodo            Status = "TODO"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusWaitingApproval Status = "WAITING_APPROVAL"
	StatusRejected        Status = "REJECTED"
	StatusDone            Status = "DONE"
)

// Action is the kind of a history entry.
type Action string

const (
	ActionCreated   Action = "CREATED"
	ActionSubmitted Action = "SUBMITTED"
	ActionApproved  Action = "APPROVED"
	ActionRejected  Action = "REJECTED"
	ActionPublished Action = "PUBLISHED"
)

// ContentType distinguishes video production from creative-only pieces; it
// decides which rework targets a final-review rejection may use.
type ContentType string

const (
	ContentVideo    ContentType = "video"
	ContentCreative ContentType = "creative"
)

type Project struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Channel      Channel        `json:"channel" enum:"LINKEDIN,YOUTUBE,INSTAGRAM"`
	ContentType  ContentType    `json:"content_type" enum:"video,creative"`
	CurrentStage Stage          `json:"current_stage"`
	AssignedRole Role           `json:"assigned_to_role"`
	Status       Status         `json:"status" enum:"TODO,IN_PROGRESS,WAITING_APPROVAL,REJECTED,DONE"`
	Priority     *int           `json:"priority,omitempty"`
	DueDate      string         `json:"due_date,omitempty" format:"date"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
}

// HistoryEvent is one immutable entry in a project's audit trail. Entries
// are appended by the engine and never edited or removed.
type HistoryEvent struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	Stage     Stage  `json:"stage"`
	Action    Action `json:"action" enum:"CREATED,SUBMITTED,APPROVED,REJECTED,PUBLISHED"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Comment   string `json:"comment,omitempty"`
	TS        string `json:"ts" format:"date-time"`
}

// LogEntry is one row of the global system log.
type LogEntry struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Action    string `json:"action"`
	ProjectID string `json:"project_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Details   string `json:"details_json"`
}

// Actor is a resolved acting identity as the engine sees it.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
