package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/pkg/errors"
)

// TargetRepository reads shareable resources and their memberships. The
// resources themselves are administered elsewhere.
type TargetRepository interface {
	GetTarget(ctx context.Context, kind models.TargetKind, id string) (models.Target, error)
	GetCollaborator(ctx context.Context, kind models.TargetKind, targetID, userID string) (models.Collaborator, error)
	ListCollaborators(ctx context.Context, kind models.TargetKind, targetID string) ([]models.Collaborator, error)
}

type targetRepository struct {
	db *sql.DB
}

func NewTargetRepository(db *sql.DB) TargetRepository {
	return &targetRepository{db: db}
}

var targetQueries = map[models.TargetKind]string{
	models.TargetCredential:   `SELECT id, name, owner_id, privacy_level = 'PUBLIC' FROM tracker.credentials WHERE id = $1`,
	models.TargetProject:      `SELECT id, name, owner_id, status <> 'ARCHIVED' FROM tracker.projects WHERE id = $1`,
	models.TargetSubscription: `SELECT id, name, owner_id, TRUE FROM tracker.subscriptions WHERE id = $1`,
}

func (r *targetRepository) GetTarget(ctx context.Context, kind models.TargetKind, id string) (models.Target, error) {
	query, ok := targetQueries[kind]
	if !ok {
		return models.Target{}, errors.Errorf("unknown target kind %q", kind)
	}

	target := models.Target{Kind: kind}
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(id)).Scan(
		&target.ID,
		&target.Name,
		&target.OwnerID,
		&target.Shareable,
	)
	if err != nil {
		return models.Target{}, notFoundOr(err, "load target")
	}
	return target, nil
}

func (r *targetRepository) GetCollaborator(ctx context.Context, kind models.TargetKind, targetID, userID string) (models.Collaborator, error) {
	const query = `
		SELECT target_kind, target_id, user_id, role, granted_at
		FROM tracker.collaborators
		WHERE target_kind = $1 AND target_id = $2 AND user_id = $3`

	var c models.Collaborator
	err := r.db.QueryRowContext(ctx, query, kind, targetID, userID).Scan(
		&c.TargetKind,
		&c.TargetID,
		&c.UserID,
		&c.Role,
		&c.GrantedAt,
	)
	if err != nil {
		return models.Collaborator{}, notFoundOr(err, "load collaborator")
	}
	return c, nil
}

func (r *targetRepository) ListCollaborators(ctx context.Context, kind models.TargetKind, targetID string) ([]models.Collaborator, error) {
	const query = `
		SELECT target_kind, target_id, user_id, role, granted_at
		FROM tracker.collaborators
		WHERE target_kind = $1 AND target_id = $2
		ORDER BY granted_at`

	rows, err := r.db.QueryContext(ctx, query, kind, targetID)
	if err != nil {
		return nil, errors.Wrap(err, "list collaborators")
	}
	defer rows.Close()

	var collaborators []models.Collaborator
	for rows.Next() {
		var c models.Collaborator
		if err := rows.Scan(&c.TargetKind, &c.TargetID, &c.UserID, &c.Role, &c.GrantedAt); err != nil {
			return nil, errors.Wrap(err, "scan collaborator")
		}
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate collaborators")
	}
	return collaborators, nil
}
