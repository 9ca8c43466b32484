package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
)

type RequestRepository struct {
	mu    sync.Mutex
	byID  map[string]models.Request
	order []string
	tasks *TaskRepository
}

func (r *RequestRepository) Create(_ context.Context, req models.Request) (models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[req.ID]; ok {
		return models.Request{}, errors.Errorf("request %s already exists", req.ID)
	}
	ts := now()
	req.Version = 1
	req.CreatedAt = ts
	req.UpdatedAt = ts
	if req.StatusChangedAt.IsZero() {
		req.StatusChangedAt = ts
	}
	r.byID[req.ID] = req
	r.order = append(r.order, req.ID)
	return req, nil
}

func (r *RequestRepository) GetByID(_ context.Context, id string) (models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return models.Request{}, repository.ErrNotFound
	}
	return req, nil
}

func (r *RequestRepository) List(_ context.Context, filter repository.RequestFilter) ([]models.Request, error) {
	statuses := map[models.RequestStatus]bool{}
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return reversed(r.order, r.byID, func(req models.Request) bool {
		if len(statuses) > 0 && !statuses[req.Status] {
			return false
		}
		switch filter.Direction {
		case models.DirectionSent:
			return req.CreatedBy == filter.UserID
		case models.DirectionReceived:
			if filter.All {
				return true
			}
			if req.IsAssignee(filter.UserID) {
				return true
			}
			return filter.DepartmentID != "" && req.ToDepartment != nil && *req.ToDepartment == filter.DepartmentID
		default:
			return false
		}
	}), nil
}

func (r *RequestRepository) Update(_ context.Context, req models.Request) (models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swap(req)
}

func (r *RequestRepository) swap(req models.Request) (models.Request, error) {
	current, ok := r.byID[req.ID]
	if !ok || current.Version != req.Version {
		return models.Request{}, repository.ErrStale
	}
	req.FromDepartment = current.FromDepartment
	req.CreatedBy = current.CreatedBy
	req.CreatedAt = current.CreatedAt
	req.Version = current.Version + 1
	req.UpdatedAt = now()
	r.byID[req.ID] = req
	return req, nil
}

func (r *RequestRepository) AssignWithTask(_ context.Context, req models.Request, task models.Task) (models.Request, models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.byID[req.ID]; !ok || current.Version != req.Version {
		return models.Request{}, models.Task{}, repository.ErrStale
	}
	created, err := r.tasks.insert(task)
	if err != nil {
		return models.Request{}, models.Task{}, err
	}
	updated, err := r.swap(req)
	if err != nil {
		r.tasks.remove(created.ID)
		return models.Request{}, models.Task{}, err
	}
	return updated, created, nil
}

func (r *RequestRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	r.tasks.detach(id)
	return nil
}
