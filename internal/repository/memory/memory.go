// Package memory holds mutex-guarded implementations of the repository
// interfaces. They back the "memory" storage driver and the service tests.
package memory

import (
	"strings"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
)

var (
	_ repository.RequestRepository      = (*RequestRepository)(nil)
	_ repository.TaskRepository         = (*TaskRepository)(nil)
	_ repository.InviteRepository       = (*InviteRepository)(nil)
	_ repository.TargetRepository       = (*TargetRepository)(nil)
	_ repository.UserRepository         = (*UserRepository)(nil)
	_ repository.NotificationRepository = (*NotificationRepository)(nil)
)

type Repositories struct {
	Requests      *RequestRepository
	Tasks         *TaskRepository
	Invites       *InviteRepository
	Targets       *TargetRepository
	Users         *UserRepository
	Notifications *NotificationRepository
}

func NewRepositories() *Repositories {
	tasks := &TaskRepository{byID: map[string]models.Task{}}
	targets := &TargetRepository{
		targets:       map[string]models.Target{},
		collaborators: map[string]models.Collaborator{},
	}
	return &Repositories{
		Requests:      &RequestRepository{byID: map[string]models.Request{}, tasks: tasks},
		Tasks:         tasks,
		Invites:       &InviteRepository{byID: map[string]models.CollaborationInvite{}, pending: map[string]string{}, targets: targets},
		Targets:       targets,
		Users:         &UserRepository{byID: map[string]models.User{}},
		Notifications: &NotificationRepository{byID: map[string]models.Notification{}},
	}
}

// now is replaced in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }

func targetKey(kind models.TargetKind, targetID string) string {
	return string(kind) + ":" + strings.TrimSpace(targetID)
}

func memberKey(kind models.TargetKind, targetID, userID string) string {
	return targetKey(kind, targetID) + ":" + strings.TrimSpace(userID)
}

func pendingKey(kind models.TargetKind, targetID, inviteeKey string) string {
	return targetKey(kind, targetID) + ":" + inviteeKey
}

func reversed[T any](order []string, byID map[string]T, keep func(T) bool) []T {
	out := make([]T, 0)
	for i := len(order) - 1; i >= 0; i-- {
		row, ok := byID[order[i]]
		if !ok || !keep(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}
