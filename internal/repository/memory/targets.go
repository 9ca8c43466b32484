package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
)

type TargetRepository struct {
	mu            sync.Mutex
	targets       map[string]models.Target
	collaborators map[string]models.Collaborator
}

// PutCredential registers a credential; only PUBLIC credentials are shareable.
func (r *TargetRepository) PutCredential(id, name, ownerID string, privacy models.PrivacyLevel) {
	r.put(models.Target{Kind: models.TargetCredential, ID: id, Name: name, OwnerID: ownerID, Shareable: privacy == models.PrivacyPublic})
}

// PutProject registers a project; archived projects are not shareable.
func (r *TargetRepository) PutProject(id, name, ownerID string, archived bool) {
	r.put(models.Target{Kind: models.TargetProject, ID: id, Name: name, OwnerID: ownerID, Shareable: !archived})
}

func (r *TargetRepository) PutSubscription(id, name, ownerID string) {
	r.put(models.Target{Kind: models.TargetSubscription, ID: id, Name: name, OwnerID: ownerID, Shareable: true})
}

func (r *TargetRepository) put(target models.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[targetKey(target.Kind, target.ID)] = target
}

func (r *TargetRepository) grant(c models.Collaborator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memberKey(c.TargetKind, c.TargetID, c.UserID)
	if existing, ok := r.collaborators[k]; ok {
		c.GrantedAt = existing.GrantedAt
	}
	r.collaborators[k] = c
}

func (r *TargetRepository) GetTarget(_ context.Context, kind models.TargetKind, id string) (models.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.targets[targetKey(kind, id)]
	if !ok {
		return models.Target{}, repository.ErrNotFound
	}
	return target, nil
}

func (r *TargetRepository) GetCollaborator(_ context.Context, kind models.TargetKind, targetID, userID string) (models.Collaborator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collaborators[memberKey(kind, targetID, userID)]
	if !ok {
		return models.Collaborator{}, repository.ErrNotFound
	}
	return c, nil
}

func (r *TargetRepository) ListCollaborators(_ context.Context, kind models.TargetKind, targetID string) ([]models.Collaborator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Collaborator, 0)
	for _, c := range r.collaborators {
		if c.TargetKind == kind && c.TargetID == targetID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})
	return out, nil
}
