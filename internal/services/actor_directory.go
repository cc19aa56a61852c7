package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prestadia/backend/internal/models"
)

// ActorDirectory resolves an actor to its role and hierarchical parent. The
// transfer coordinator consults it before touching any balance.
type ActorDirectory interface {
	ResolveRole(ctx context.Context, actorID string) (*models.Actor, error)
}

// DBActorDirectory is the Postgres-backed directory.
type DBActorDirectory struct {
	db *sql.DB
}

func NewDBActorDirectory(db *sql.DB) *DBActorDirectory {
	return &DBActorDirectory{db: db}
}

func (d *DBActorDirectory) ResolveRole(ctx context.Context, actorID string) (*models.Actor, error) {
	var (
		actor    models.Actor
		parentID sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, role, parent_id, commission_rate, created_at
		FROM actors
		WHERE id = $1`, actorID).
		Scan(&actor.ID, &actor.Name, &actor.Role, &parentID, &actor.CommissionRate, &actor.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: actor %s", models.ErrNotFound, actorID)
	}
	if err != nil {
		return nil, fmt.Errorf("select actor: %w", err)
	}
	if parentID.Valid {
		actor.ParentID = &parentID.String
	}
	return &actor, nil
}
