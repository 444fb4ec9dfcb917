package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"contentline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectColumns = `id,title,channel,content_type,current_stage,assigned_to_role,status,priority,due_date,data_json,created_at,updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var channel, contentType, stage, role, status string
	var dueDate, dataJSON sql.NullString
	var priority sql.NullInt64
	err := scan(&p.ID, &p.Title, &channel, &contentType, &stage, &role, &status, &priority, &dueDate, &dataJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Channel = domain.Channel(channel)
	p.ContentType = domain.ContentType(contentType)
	p.CurrentStage = domain.Stage(stage)
	p.AssignedRole = domain.Role(role)
	p.Status = domain.Status(status)
	if priority.Valid {
		v := int(priority.Int64)
		p.Priority = &v
	}
	if dueDate.Valid {
		p.DueDate = dueDate.String
	}
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &p.Data); err != nil {
			return p, fmt.Errorf("decode data for project %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func encodeData(data map[string]any) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	dataJSON, err := encodeData(p.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, string(p.Channel), string(p.ContentType), string(p.CurrentStage), string(p.AssignedRole), string(p.Status),
		nullableIntPtr(p.Priority), nullable(p.DueDate), dataJSON, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

// UpdateProjectTx rewrites the engine-owned fields plus the data bag. The
// caller holds the project lock, so a full-row update is safe.
func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	dataJSON, err := encodeData(p.Data)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE projects SET title=?, current_stage=?, assigned_to_role=?, status=?, priority=?, due_date=?, data_json=?, updated_at=? WHERE id=?`,
		p.Title, string(p.CurrentStage), string(p.AssignedRole), string(p.Status),
		nullableIntPtr(p.Priority), nullable(p.DueDate), dataJSON, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ProjectFilters struct {
	Channel         string
	Stage           string
	Status          string
	AssignedRole    string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Channel != "" {
		clauses = append(clauses, "channel=?")
		args = append(args, f.Channel)
	}
	if f.Stage != "" {
		clauses = append(clauses, "current_stage=?")
		args = append(args, f.Stage)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedRole != "" {
		clauses = append(clauses, "assigned_to_role=?")
		args = append(args, f.AssignedRole)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_history(project_id,stage,action,actor_id,actor_name,comment,ts) VALUES (?,?,?,?,?,?,?)`,
		h.ProjectID, string(h.Stage), string(h.Action), h.ActorID, nullable(h.ActorName), nullable(h.Comment), h.TS)
	return err
}

// ListHistory returns a project's audit trail in append order.
func (r Repo) ListHistory(ctx context.Context, projectID string) ([]domain.HistoryEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,stage,action,actor_id,actor_name,comment,ts FROM project_history WHERE project_id=? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEvent
	for rows.Next() {
		var h domain.HistoryEvent
		var stage, action string
		var actorName, comment sql.NullString
		if err := rows.Scan(&h.ID, &h.ProjectID, &stage, &action, &h.ActorID, &actorName, &comment, &h.TS); err != nil {
			return nil, err
		}
		h.Stage = domain.Stage(stage)
		h.Action = domain.Action(action)
		if actorName.Valid {
			h.ActorName = actorName.String
		}
		if comment.Valid {
			h.Comment = comment.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// CountHistory is a cheap length check used by idempotence tests and the
// dashboard.
func (r Repo) CountHistory(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM project_history WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

// LatestLog returns system log rows newest first, optionally filtered.
func (r Repo) LatestLog(ctx context.Context, limit int, cursor int64, projectID, action string) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, action)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,action,project_id,actor_id,details_json FROM system_log %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryLog(ctx, query, args...)
}

// LogAfter returns system log rows with IDs greater than the cursor in
// ascending order; the webhook dispatcher tails the log with it.
func (r Repo) LogAfter(ctx context.Context, limit int, cursor int64) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryLog(ctx, `SELECT id,ts,action,project_id,actor_id,details_json FROM system_log WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestLogID returns the id of the newest system log row, or zero when the
// log is empty.
func (r Repo) LatestLogID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT coalesce(max(id),0) FROM system_log`).Scan(&id)
	return id, err
}

func (r Repo) queryLog(ctx context.Context, query string, args ...any) ([]domain.LogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var projectID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &projectID, &e.ActorID, &details); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if details.Valid {
			e.Details = details.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountProjectsByStatus feeds the dashboard aggregate.
func (r Repo) CountProjectsByStatus(ctx context.Context, channel string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM projects GROUP BY status`
	var args []any
	if channel != "" {
		query = `SELECT status, count(*) FROM projects WHERE channel=? GROUP BY status`
		args = append(args, channel)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
