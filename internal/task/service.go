// Package task owns the task status write path. A committed transition on a
// task spawned by a request is handed to a Reflector, which carries it over to
// the originating request.
package task

import (
	"context"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/metrics"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const maxWriteAttempts = 5

type Service interface {
	Get(ctx context.Context, caller models.User, id string) (models.Task, error)
	UpdateStatus(ctx context.Context, caller models.User, id string, status models.TaskStatus) (models.Task, error)
}

type service struct {
	tasks     repository.TaskRepository
	reflector Reflector
	bus       eventbus.Bus
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(tasks repository.TaskRepository, reflector Reflector, bus eventbus.Bus, logger zerolog.Logger) Service {
	return &service{
		tasks:     tasks,
		reflector: reflector,
		bus:       bus,
		logger:    logger.With().Str("component", "task_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func canUpdate(caller models.User, task models.Task) bool {
	if caller.IsSuperAdmin() || task.CreatedBy == caller.ID {
		return true
	}
	return task.AssigneeID != nil && *task.AssigneeID == caller.ID
}

func (s *service) Get(ctx context.Context, caller models.User, id string) (models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if !canUpdate(caller, task) {
		return models.Task{}, apperr.Forbidden("you cannot view this task")
	}
	return task, nil
}

func (s *service) UpdateStatus(ctx context.Context, caller models.User, id string, status models.TaskStatus) (models.Task, error) {
	if !status.IsValid() {
		return models.Task{}, apperr.Validation("unknown task status %q", status)
	}

	var (
		updated models.Task
		from    models.TaskStatus
	)
	for attempt := 1; ; attempt++ {
		task, err := s.load(ctx, id)
		if err != nil {
			return models.Task{}, err
		}
		if !canUpdate(caller, task) {
			return models.Task{}, apperr.Forbidden("only the assignee or the creator can change the task status")
		}
		if task.Status == status {
			return task, nil
		}

		from = task.Status
		task.Status = status
		task.StatusChangedAt = s.now()
		updated, err = s.tasks.Update(ctx, task)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrStale) {
			return models.Task{}, err
		}
		metrics.RecordWriteConflict("task")
		if attempt == maxWriteAttempts {
			return models.Task{}, apperr.Conflict("task %s is being modified concurrently, try again", id)
		}
	}

	s.logger.Info().
		Str("task_id", updated.ID).
		Str("from", string(from)).
		Str("to", string(status)).
		Str("by", caller.ID).
		Msg("task status changed")
	audience := []string{updated.CreatedBy}
	if updated.AssigneeID != nil && *updated.AssigneeID != updated.CreatedBy {
		audience = append(audience, *updated.AssigneeID)
	}
	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicTasksUpdated, EntityID: updated.ID, Audience: audience})

	if updated.OriginatingRequestID != nil {
		change := models.TaskStatusChange{
			TaskID:    updated.ID,
			RequestID: *updated.OriginatingRequestID,
			Status:    updated.Status,
			ChangedAt: updated.StatusChangedAt,
			ChangedBy: caller.ID,
		}
		if err := s.reflector.Reflect(ctx, change); err != nil {
			// the task write is committed; the request catches up on the next transition
			s.logger.Error().Err(err).
				Str("task_id", updated.ID).
				Str("request_id", change.RequestID).
				Msg("failed to reflect task status onto request")
		}
	}
	return updated, nil
}

func (s *service) load(ctx context.Context, id string) (models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Task{}, apperr.NotFound("task %s not found", id)
	}
	return task, err
}
