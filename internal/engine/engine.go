// Package engine is the workflow state machine. Every mutating operation is
// a read-modify-write transaction under a per-project lock; project stage,
// assignment, status, history and the system log are written nowhere else.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contentline/internal/config"
	"contentline/internal/domain"
	"contentline/internal/events"
	"contentline/internal/policy"
	"contentline/internal/repo"
	"contentline/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *projectLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newProjectLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) lock(projectID string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.acquire(projectID)
}

func (e Engine) rejectCommentRequired() bool {
	if e.Config == nil {
		return true
	}
	return e.Config.Workflow.RequireRejectComment
}

// ProjectCreateOptions are parameters for opening a project.
type ProjectCreateOptions struct {
	ID       string
	Title    string
	Channel  domain.Channel
	DueDate  string
	Priority *int
	Data     map[string]any
	Actor    domain.Actor
}

// CreateProject opens a project at the first stage of its channel's
// sequence with a single CREATED history entry.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if err := policy.CanCreate(opts.Actor.Role); err != nil {
		return domain.Project{}, err
	}
	first, err := workflow.First(opts.Channel)
	if err != nil {
		return domain.Project{}, err
	}
	contentType, err := workflow.ContentTypeFor(opts.Channel)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(opts.Channel)+"|"+opts.Title+"|"+now)).String()
	}
	p := domain.Project{
		ID:           id,
		Title:        opts.Title,
		Channel:      opts.Channel,
		ContentType:  contentType,
		CurrentStage: first.Stage,
		AssignedRole: first.Role,
		Status:       domain.StatusTodo,
		Priority:     opts.Priority,
		DueDate:      opts.DueDate,
		Data:         opts.Data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEvent{
		ProjectID: p.ID,
		Stage:     p.CurrentStage,
		Action:    domain.ActionCreated,
		ActorID:   opts.Actor.ID,
		ActorName: opts.Actor.Name,
		TS:        now,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, opts.Actor.ID, events.Details{
		"title":   p.Title,
		"channel": string(p.Channel),
		"stage":   string(p.CurrentStage),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// UpdateData merges a partial payload into the project's data bag. Data
// edits are not audited per project; only the system log records them. A
// writer touching a fresh TODO project flips it to IN_PROGRESS.
func (e Engine) UpdateData(ctx context.Context, projectID string, patch map[string]any, actor domain.Actor) (domain.Project, error) {
	unlock := e.lock(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.CanEdit(p, actor.Role); err != nil {
		return domain.Project{}, err
	}
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	var keys []string
	for k, v := range patch {
		p.Data[k] = v
		keys = append(keys, k)
	}
	if actor.Role == domain.RoleWriter && p.Status == domain.StatusTodo {
		p.Status = domain.StatusInProgress
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.data.updated", p.ID, actor.ID, events.Details{
		"keys":  keys,
		"stage": string(p.CurrentStage),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// Submit hands the project from its current assignee to the next stage in
// the channel's sequence.
func (e Engine) Submit(ctx context.Context, projectID string, actor domain.Actor) (domain.Project, error) {
	unlock := e.lock(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	terminal, err := workflow.IsTerminal(p.Channel, p.CurrentStage)
	if err != nil {
		return domain.Project{}, err
	}
	if terminal {
		return domain.Project{}, ErrAlreadyTerminal
	}
	if err := policy.CanSubmit(p, actor.Role); err != nil {
		return domain.Project{}, err
	}
	next, ok, err := workflow.Next(p.Channel, p.CurrentStage)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, ErrAlreadyTerminal
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEvent{
		ProjectID: p.ID,
		Stage:     p.CurrentStage,
		Action:    domain.ActionSubmitted,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		TS:        now,
	}); err != nil {
		return domain.Project{}, err
	}
	from := p.CurrentStage
	p.CurrentStage = next.Stage
	p.AssignedRole = next.Role
	switch {
	case e.isTerminalStage(p.Channel, next.Stage):
		p.Status = domain.StatusDone
	case workflow.IsReviewStage(next.Stage):
		p.Status = domain.StatusWaitingApproval
	default:
		p.Status = domain.StatusTodo
	}
	p.UpdatedAt = now
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.submitted", p.ID, actor.ID, events.Details{
		"from": string(from),
		"to":   string(p.CurrentStage),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// Approve advances the project past a review gate. Approving the last
// review of the sequence completes the project: status DONE and a PUBLISHED
// history entry instead of APPROVED.
func (e Engine) Approve(ctx context.Context, projectID string, actor domain.Actor, comment string) (domain.Project, error) {
	unlock := e.lock(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	terminal, err := workflow.IsTerminal(p.Channel, p.CurrentStage)
	if err != nil {
		return domain.Project{}, err
	}
	if terminal {
		return domain.Project{}, ErrAlreadyTerminal
	}
	if !workflow.IsReviewStage(p.CurrentStage) {
		return domain.Project{}, NotAReviewStageError{Stage: p.CurrentStage}
	}
	if err := policy.CanApprove(p, actor.Role); err != nil {
		return domain.Project{}, err
	}
	next, ok, err := workflow.Next(p.Channel, p.CurrentStage)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	from := p.CurrentStage
	completes := !ok || e.isTerminalStage(p.Channel, next.Stage)
	action := domain.ActionApproved
	if completes {
		action = domain.ActionPublished
	}
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEvent{
		ProjectID: p.ID,
		Stage:     from,
		Action:    action,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Comment:   comment,
		TS:        now,
	}); err != nil {
		return domain.Project{}, err
	}
	if ok {
		p.CurrentStage = next.Stage
		p.AssignedRole = next.Role
	}
	switch {
	case completes:
		p.Status = domain.StatusDone
	case workflow.IsReviewStage(p.CurrentStage):
		p.Status = domain.StatusWaitingApproval
	default:
		p.Status = domain.StatusTodo
	}
	p.UpdatedAt = now
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	logAction := "project.approved"
	if completes {
		logAction = "project.published"
	}
	if err := e.Events.Append(ctx, tx, logAction, p.ID, actor.ID, events.Details{
		"from": string(from),
		"to":   string(p.CurrentStage),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// Reject sends the project backward to an explicit rework target allowed by
// the routing table, with a mandatory comment unless configured otherwise.
func (e Engine) Reject(ctx context.Context, projectID string, actor domain.Actor, target domain.Stage, comment string) (domain.Project, error) {
	unlock := e.lock(projectID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	terminal, err := workflow.IsTerminal(p.Channel, p.CurrentStage)
	if err != nil {
		return domain.Project{}, err
	}
	if terminal {
		return domain.Project{}, ErrAlreadyTerminal
	}
	if !workflow.IsReviewStage(p.CurrentStage) {
		return domain.Project{}, NotAReviewStageError{Stage: p.CurrentStage}
	}
	if err := policy.CanReject(p, actor.Role); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(comment) == "" && e.rejectCommentRequired() {
		return domain.Project{}, ErrCommentRequired
	}
	// A target outside the channel's sequence and a target the routing
	// table disallows both surface as an invalid target.
	if err := workflow.ValidateReworkTarget(p.Channel, p.CurrentStage, target); err != nil {
		return domain.Project{}, err
	}
	targetRole, err := workflow.RoleFor(p.Channel, target)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	from := p.CurrentStage
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEvent{
		ProjectID: p.ID,
		Stage:     from,
		Action:    domain.ActionRejected,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Comment:   comment,
		TS:        now,
	}); err != nil {
		return domain.Project{}, err
	}
	p.CurrentStage = target
	p.AssignedRole = targetRole
	p.Status = domain.StatusRejected
	p.UpdatedAt = now
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.rejected", p.ID, actor.ID, events.Details{
		"from":    string(from),
		"to":      string(target),
		"comment": comment,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ReworkOptions lists the targets a rejection at the project's current
// stage may route to.
func (e Engine) ReworkOptions(ctx context.Context, projectID string) ([]domain.Stage, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return workflow.ReworkTargets(p.Channel, p.CurrentStage)
}

func (e Engine) isTerminalStage(ch domain.Channel, stage domain.Stage) bool {
	terminal, err := workflow.IsTerminal(ch, stage)
	return err == nil && terminal
}
