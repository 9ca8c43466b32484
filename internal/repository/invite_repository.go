package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/pkg/errors"
)

type InviteRepository interface {
	// UpsertPending inserts a PENDING invite, or refreshes the existing PENDING
	// invite for the same target and invitee.
	UpsertPending(ctx context.Context, invite models.CollaborationInvite) (models.CollaborationInvite, error)
	GetByID(ctx context.Context, id string) (models.CollaborationInvite, error)
	List(ctx context.Context, filter InviteFilter) ([]models.CollaborationInvite, error)
	// Resolve moves a PENDING invite to status and, when grant is non-nil,
	// upserts the membership in the same transaction. ErrStale when the invite
	// is no longer PENDING.
	Resolve(ctx context.Context, id string, status models.InviteStatus, at time.Time, grant *models.Collaborator) (models.CollaborationInvite, error)
}

// InviteFilter selects invites of one kind. Sent matches InviterID;
// received matches InviteeUserID or InviteeEmail.
type InviteFilter struct {
	Kind          models.TargetKind
	Direction     models.RequestDirection
	InviterID     string
	InviteeUserID string
	InviteeEmail  string
}

type inviteRepository struct {
	db *sql.DB
}

func NewInviteRepository(db *sql.DB) InviteRepository {
	return &inviteRepository{db: db}
}

const inviteColumns = `id, target_kind, target_id, inviter_id, invitee_user_id, invitee_email, role, status,
	created_at, updated_at, responded_at`

func (r *inviteRepository) UpsertPending(ctx context.Context, invite models.CollaborationInvite) (models.CollaborationInvite, error) {
	query := `
		INSERT INTO tracker.collab_invites (id, target_kind, target_id, inviter_id, invitee_user_id, invitee_email, invitee_key, role, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING')
		ON CONFLICT (target_kind, target_id, invitee_key) WHERE status = 'PENDING'
		DO UPDATE SET role = EXCLUDED.role, inviter_id = EXCLUDED.inviter_id,
			invitee_user_id = COALESCE(EXCLUDED.invitee_user_id, collab_invites.invitee_user_id), updated_at = NOW()
		RETURNING ` + inviteColumns

	saved, err := scanInvite(r.db.QueryRowContext(ctx, query,
		invite.ID,
		invite.TargetKind,
		invite.TargetID,
		invite.InviterID,
		nullString(invite.InviteeUserID),
		strings.ToLower(strings.TrimSpace(invite.InviteeEmail)),
		invite.InviteeKey(),
		invite.Role,
	))
	if err != nil {
		return models.CollaborationInvite{}, errors.Wrap(err, "upsert invite")
	}
	return saved, nil
}

func (r *inviteRepository) GetByID(ctx context.Context, id string) (models.CollaborationInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM tracker.collab_invites WHERE id = $1`
	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, strings.TrimSpace(id)))
	if err != nil {
		return models.CollaborationInvite{}, notFoundOr(err, "load invite")
	}
	return invite, nil
}

func (r *inviteRepository) List(ctx context.Context, filter InviteFilter) ([]models.CollaborationInvite, error) {
	var (
		query = `SELECT ` + inviteColumns + ` FROM tracker.collab_invites WHERE target_kind = $1 AND `
		args  = []interface{}{filter.Kind}
	)
	switch filter.Direction {
	case models.DirectionSent:
		query += `inviter_id = $2`
		args = append(args, filter.InviterID)
	case models.DirectionReceived:
		query += `(invitee_user_id = $2 OR invitee_email = LOWER($3))`
		args = append(args, filter.InviteeUserID, strings.TrimSpace(filter.InviteeEmail))
	default:
		return nil, errors.Errorf("unknown direction %q", filter.Direction)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list invites")
	}
	defer rows.Close()

	var invites []models.CollaborationInvite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan invite")
		}
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate invites")
	}
	return invites, nil
}

func (r *inviteRepository) Resolve(ctx context.Context, id string, status models.InviteStatus, at time.Time, grant *models.Collaborator) (models.CollaborationInvite, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.CollaborationInvite{}, errors.Wrap(err, "begin resolve transaction")
	}
	defer tx.Rollback()

	query := `
		UPDATE tracker.collab_invites
		SET status = $2, responded_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + inviteColumns

	resolved, err := scanInvite(tx.QueryRowContext(ctx, query, strings.TrimSpace(id), status, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CollaborationInvite{}, ErrStale
		}
		return models.CollaborationInvite{}, errors.Wrap(err, "resolve invite")
	}

	if grant != nil {
		const grantQuery = `
			INSERT INTO tracker.collaborators (target_kind, target_id, user_id, role, granted_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (target_kind, target_id, user_id) DO UPDATE SET role = EXCLUDED.role`
		if _, err := tx.ExecContext(ctx, grantQuery, grant.TargetKind, grant.TargetID, grant.UserID, grant.Role, grant.GrantedAt); err != nil {
			return models.CollaborationInvite{}, errors.Wrap(err, "grant membership")
		}
	}

	if err := tx.Commit(); err != nil {
		return models.CollaborationInvite{}, errors.Wrap(err, "commit resolve")
	}
	return resolved, nil
}

func scanInvite(scanner rowScanner) (models.CollaborationInvite, error) {
	var (
		invite      models.CollaborationInvite
		inviteeID   sql.NullString
		respondedAt sql.NullTime
	)
	if err := scanner.Scan(
		&invite.ID,
		&invite.TargetKind,
		&invite.TargetID,
		&invite.InviterID,
		&inviteeID,
		&invite.InviteeEmail,
		&invite.Role,
		&invite.Status,
		&invite.CreatedAt,
		&invite.UpdatedAt,
		&respondedAt,
	); err != nil {
		return models.CollaborationInvite{}, err
	}
	invite.InviteeUserID = stringPtr(inviteeID)
	if respondedAt.Valid {
		t := respondedAt.Time
		invite.RespondedAt = &t
	}
	return invite, nil
}
