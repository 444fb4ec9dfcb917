// Package events appends to the global system log. Only the engine holds a
// Writer; nothing else writes log rows.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Details map[string]any

// Append records one system log row inside the caller's transaction so the
// log entry commits or rolls back with the state change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, action, projectID, actorID string, details Details) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if details == nil {
		details = Details{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal log details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO system_log(ts,action,project_id,actor_id,details_json) VALUES (?,?,?,?,?)`,
		ts, action, nullable(projectID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
