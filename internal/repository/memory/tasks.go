package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
)

type TaskRepository struct {
	mu    sync.Mutex
	byID  map[string]models.Task
	order []string
}

func (r *TaskRepository) insert(task models.Task) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[task.ID]; ok {
		return models.Task{}, errors.Errorf("task %s already exists", task.ID)
	}
	ts := now()
	task.Version = 1
	task.CreatedAt = ts
	task.UpdatedAt = ts
	if task.StatusChangedAt.IsZero() {
		task.StatusChangedAt = ts
	}
	r.byID[task.ID] = task
	r.order = append(r.order, task.ID)
	return task, nil
}

func (r *TaskRepository) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// detach clears the request link on every task spawned by requestID.
func (r *TaskRepository) detach(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, task := range r.byID {
		if task.OriginatingRequestID != nil && *task.OriginatingRequestID == requestID {
			task.OriginatingRequestID = nil
			r.byID[id] = task
		}
	}
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return models.Task{}, repository.ErrNotFound
	}
	return task, nil
}

func (r *TaskRepository) ListByRequest(_ context.Context, requestID string) ([]models.Task, error) {
	requestID = strings.TrimSpace(requestID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return reversed(r.order, r.byID, func(task models.Task) bool {
		return task.OriginatingRequestID != nil && *task.OriginatingRequestID == requestID
	}), nil
}

func (r *TaskRepository) Update(_ context.Context, task models.Task) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[task.ID]
	if !ok || current.Version != task.Version {
		return models.Task{}, repository.ErrStale
	}
	task.CreatedBy = current.CreatedBy
	task.OriginatingRequestID = current.OriginatingRequestID
	task.CreatedAt = current.CreatedAt
	task.Version = current.Version + 1
	task.UpdatedAt = now()
	r.byID[task.ID] = task
	return task, nil
}
