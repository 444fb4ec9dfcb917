package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"contentline/internal/domain"
)

// UpsertActor seeds or updates a roster entry. Config-declared actors are
// pushed through here at startup so API keys and the log can reference them.
func (r Repo) UpsertActor(ctx context.Context, a domain.Actor) error {
	if a.ID == "" {
		return errors.New("actor id required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actors(id, name, role, created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role`,
		a.ID, nullable(a.Name), string(a.Role), now)
	return err
}

// GetActor returns a roster entry by ID.
func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), role FROM actors WHERE id=?`, id)
	var a domain.Actor
	var role string
	err := row.Scan(&a.ID, &a.Name, &role)
	if err == sql.ErrNoRows {
		return domain.Actor{}, ErrNotFound
	}
	if err != nil {
		return domain.Actor{}, err
	}
	a.Role = domain.Role(role)
	return a, nil
}

// ListActors returns the whole roster.
func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, COALESCE(name,''), role FROM actors ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var role string
		if err := rows.Scan(&a.ID, &a.Name, &role); err != nil {
			return nil, err
		}
		a.Role = domain.Role(role)
		res = append(res, a)
	}
	return res, rows.Err()
}
