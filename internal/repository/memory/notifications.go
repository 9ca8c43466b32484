package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
)

type NotificationRepository struct {
	mu    sync.Mutex
	byID  map[string]models.Notification
	order []string
	// FailCreate makes Create fail, for exercising best-effort delivery.
	FailCreate bool
}

func (r *NotificationRepository) Create(_ context.Context, notif models.Notification) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate {
		return models.Notification{}, errors.New("notification store unavailable")
	}
	if _, ok := r.byID[notif.ID]; ok {
		return models.Notification{}, errors.Errorf("notification %s already exists", notif.ID)
	}
	notif.Read = false
	notif.ReadAt = nil
	notif.CreatedAt = now()
	r.byID[notif.ID] = notif
	r.order = append(r.order, notif.ID)
	return notif, nil
}

func (r *NotificationRepository) ListRecent(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := reversed(r.order, r.byID, func(n models.Notification) bool { return n.UserID == userID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.byID {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, userID, notificationID string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[strings.TrimSpace(notificationID)]
	if !ok || n.UserID != userID {
		return models.Notification{}, repository.ErrNotFound
	}
	n.MarkRead(now())
	r.byID[n.ID] = n
	return n, nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := now()
	updated := 0
	for id, n := range r.byID {
		if n.UserID == userID && !n.Read {
			n.MarkRead(ts)
			r.byID[id] = n
			updated++
		}
	}
	return updated, nil
}
