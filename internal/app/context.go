// Package app wires config, store and roster into the acting identity the
// engine consumes.
package app

import (
	"context"
	"errors"
	"fmt"

	"contentline/internal/config"
	"contentline/internal/domain"
	"contentline/internal/repo"
)

// SeedRoster pushes config-declared actors into the actors table so API
// keys, history and the log can reference them. Idempotent.
func SeedRoster(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	for _, entry := range cfg.Roster {
		a := domain.Actor{ID: entry.ID, Name: entry.Name, Role: domain.Role(entry.Role)}
		if err := r.UpsertActor(ctx, a); err != nil {
			return fmt.Errorf("seed actor %s: %w", entry.ID, err)
		}
	}
	return nil
}

// ResolveActor turns an actor id into a full acting identity. The config
// roster wins over the actors table; unknown ids fall back to the read-only
// observer role rather than failing, so reads never need provisioning.
func ResolveActor(ctx context.Context, r repo.Repo, cfg *config.Config, actorID string) (domain.Actor, error) {
	if actorID == "" {
		return domain.Actor{}, errors.New("actor id required")
	}
	if cfg != nil {
		for _, entry := range cfg.Roster {
			if entry.ID == actorID {
				return domain.Actor{ID: entry.ID, Name: entry.Name, Role: domain.Role(entry.Role)}, nil
			}
		}
	}
	a, err := r.GetActor(ctx, actorID)
	if err == nil {
		return a, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{ID: actorID, Role: domain.RoleObserver}, nil
	}
	return domain.Actor{}, err
}
