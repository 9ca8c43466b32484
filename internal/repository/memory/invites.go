package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
)

type InviteRepository struct {
	mu      sync.Mutex
	byID    map[string]models.CollaborationInvite
	order   []string
	pending map[string]string
	targets *TargetRepository
}

func (r *InviteRepository) UpsertPending(_ context.Context, invite models.CollaborationInvite) (models.CollaborationInvite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite.InviteeEmail = strings.ToLower(strings.TrimSpace(invite.InviteeEmail))
	k := pendingKey(invite.TargetKind, invite.TargetID, invite.InviteeKey())
	ts := now()
	if id, ok := r.pending[k]; ok {
		existing := r.byID[id]
		existing.Role = invite.Role
		existing.InviterID = invite.InviterID
		if invite.InviteeUserID != nil {
			inviteeID := *invite.InviteeUserID
			existing.InviteeUserID = &inviteeID
		}
		existing.UpdatedAt = ts
		r.byID[id] = existing
		return existing, nil
	}
	if _, ok := r.byID[invite.ID]; ok {
		return models.CollaborationInvite{}, errors.Errorf("invite %s already exists", invite.ID)
	}

	invite.Status = models.InvitePending
	invite.CreatedAt = ts
	invite.UpdatedAt = ts
	invite.RespondedAt = nil
	r.byID[invite.ID] = invite
	r.order = append(r.order, invite.ID)
	r.pending[k] = invite.ID
	return invite, nil
}

func (r *InviteRepository) GetByID(_ context.Context, id string) (models.CollaborationInvite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invite, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return models.CollaborationInvite{}, repository.ErrNotFound
	}
	return invite, nil
}

func (r *InviteRepository) List(_ context.Context, filter repository.InviteFilter) ([]models.CollaborationInvite, error) {
	if filter.Direction != models.DirectionSent && filter.Direction != models.DirectionReceived {
		return nil, errors.Errorf("unknown direction %q", filter.Direction)
	}
	invitee := models.User{ID: filter.InviteeUserID, Email: filter.InviteeEmail}

	r.mu.Lock()
	defer r.mu.Unlock()
	return reversed(r.order, r.byID, func(invite models.CollaborationInvite) bool {
		if invite.TargetKind != filter.Kind {
			return false
		}
		if filter.Direction == models.DirectionSent {
			return invite.InviterID == filter.InviterID
		}
		return invite.IsInvitee(invitee)
	}), nil
}

func (r *InviteRepository) Resolve(_ context.Context, id string, status models.InviteStatus, at time.Time, grant *models.Collaborator) (models.CollaborationInvite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite, ok := r.byID[strings.TrimSpace(id)]
	if !ok || invite.Status != models.InvitePending {
		return models.CollaborationInvite{}, repository.ErrStale
	}
	if grant != nil {
		r.targets.grant(*grant)
	}

	delete(r.pending, pendingKey(invite.TargetKind, invite.TargetID, invite.InviteeKey()))
	respondedAt := at.UTC()
	invite.Status = status
	invite.RespondedAt = &respondedAt
	invite.UpdatedAt = now()
	r.byID[invite.ID] = invite
	return invite, nil
}
