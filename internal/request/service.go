package request

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/department"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/metrics"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/govindrajpootecosoul/project-tracker/internal/statusmap"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// maxWriteAttempts bounds the read-validate-swap loop under contention.
const maxWriteAttempts = 5

type Service interface {
	Create(ctx context.Context, caller models.User, in CreateInput) (models.Request, error)
	Get(ctx context.Context, caller models.User, id string) (models.Request, error)
	// List returns the caller's sent or received requests, optionally narrowed
	// to the given statuses.
	List(ctx context.Context, caller models.User, direction models.RequestDirection, statuses ...models.RequestStatus) ([]models.Request, error)
	// Transitions reports the statuses the caller may move a request to.
	Transitions(ctx context.Context, caller models.User, id string) (Transitions, error)
	Tasks(ctx context.Context, caller models.User, id string) ([]models.Task, error)
	UpdateStatus(ctx context.Context, caller models.User, id string, status models.RequestStatus) (models.Request, error)
	UpdateAssignment(ctx context.Context, caller models.User, id string, assigneeID *string) (Assignment, error)
	UpdateDeadline(ctx context.Context, caller models.User, id string, deadline *time.Time) (models.Request, error)
	Delete(ctx context.Context, caller models.User, id string) error
	// ApplyTaskStatus reflects a task transition onto the originating request.
	// applied is false when the write was skipped: terminal request, stale
	// timestamp, or no change.
	ApplyTaskStatus(ctx context.Context, change models.TaskStatusChange) (req models.Request, applied bool, err error)
}

// Assignment is the result of UpdateAssignment. Task is set when the
// assignment spawned one.
type Assignment struct {
	Request models.Request `json:"request"`
	Task    *models.Task   `json:"task,omitempty"`
}

// Transitions is the result of Transitions. Allowed is empty when the caller
// can view the request but not change its status.
type Transitions struct {
	Status  models.RequestStatus   `json:"status"`
	Allowed []models.RequestStatus `json:"allowed"`
}

type service struct {
	requests      repository.RequestRepository
	tasks         repository.TaskRepository
	users         repository.UserRepository
	roster        department.Roster
	notifications notification.Service
	bus           eventbus.Bus
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	requests repository.RequestRepository,
	tasks repository.TaskRepository,
	users repository.UserRepository,
	roster department.Roster,
	notifications notification.Service,
	bus eventbus.Bus,
	logger zerolog.Logger,
) Service {
	return &service{
		requests:      requests,
		tasks:         tasks,
		users:         users,
		roster:        roster,
		notifications: notifications,
		bus:           bus,
		logger:        logger.With().Str("component", "request_service").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Create(ctx context.Context, caller models.User, in CreateInput) (models.Request, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return models.Request{}, err
	}

	now := s.now()
	req, err := s.requests.Create(ctx, models.Request{
		ID:                uuid.NewString(),
		Title:             in.Title,
		Description:       in.Description,
		Type:              in.RequestType,
		Priority:          in.Priority,
		Status:            models.RequestSubmitted,
		FromDepartment:    caller.DepartmentID,
		ToDepartment:      in.ToDepartment,
		CreatedBy:         caller.ID,
		TentativeDeadline: in.TentativeDeadline,
		StatusChangedAt:   now,
	})
	if err != nil {
		return models.Request{}, err
	}

	s.logger.Info().Str("request_id", req.ID).Str("created_by", caller.ID).Msg("request created")
	s.publish(ctx, eventbus.TopicRequestsUpdated, req.ID, req)
	return req, nil
}

func (s *service) Get(ctx context.Context, caller models.User, id string) (models.Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return models.Request{}, err
	}
	if !canView(caller, req) {
		return models.Request{}, apperr.Forbidden("you cannot view this request")
	}
	return req, nil
}

func (s *service) List(ctx context.Context, caller models.User, direction models.RequestDirection, statuses ...models.RequestStatus) ([]models.Request, error) {
	if !direction.IsValid() {
		return nil, apperr.Validation("direction must be sent or received")
	}
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, apperr.Validation("unknown status %q", status)
		}
	}
	filter := repository.RequestFilter{Direction: direction, UserID: caller.ID, Statuses: statuses}
	if direction == models.DirectionReceived {
		filter.DepartmentID = caller.DepartmentID
		filter.All = caller.IsSuperAdmin()
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []models.Request{}
	}
	return requests, nil
}

func (s *service) Transitions(ctx context.Context, caller models.User, id string) (Transitions, error) {
	req, err := s.Get(ctx, caller, id)
	if err != nil {
		return Transitions{}, err
	}
	out := Transitions{Status: req.Status, Allowed: []models.RequestStatus{}}
	if canManage(caller, req) {
		out.Allowed = statusmap.AllowedTransitions(req.Status)
	}
	return out, nil
}

func (s *service) Tasks(ctx context.Context, caller models.User, id string) ([]models.Task, error) {
	req, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *service) UpdateStatus(ctx context.Context, caller models.User, id string, status models.RequestStatus) (models.Request, error) {
	if !status.IsValid() {
		return models.Request{}, apperr.Validation("unknown status %q", status)
	}

	var from models.RequestStatus
	updated, err := s.mutate(ctx, id, func(req *models.Request) error {
		if !canManage(caller, *req) {
			return apperr.Forbidden("only the assignee or an admin of the target department can change the status")
		}
		if !statusmap.CanTransition(req.Status, status) {
			return apperr.Conflict("cannot move request from %s to %s", req.Status, status)
		}
		from = req.Status
		req.Status = status
		req.StatusChangedAt = s.now()
		return nil
	})
	if err != nil {
		return models.Request{}, err
	}

	metrics.RecordTransition("direct", string(from), string(status))
	s.logger.Info().
		Str("request_id", updated.ID).
		Str("from", string(from)).
		Str("to", string(status)).
		Str("by", caller.ID).
		Msg("request status changed")

	s.notifyCounterparts(ctx, caller, updated, notification.Message{
		Type:    models.NotificationRequest,
		Title:   "Request status updated",
		Message: requestMessage(updated, "moved to "+string(status)),
	})
	s.publish(ctx, eventbus.TopicRequestsUpdated, updated.ID, updated)
	return updated, nil
}

func (s *service) UpdateAssignment(ctx context.Context, caller models.User, id string, assigneeID *string) (Assignment, error) {
	if assigneeID != nil {
		trimmed := strings.TrimSpace(*assigneeID)
		if trimmed == "" {
			assigneeID = nil
		} else {
			assigneeID = &trimmed
		}
	}
	if assigneeID != nil {
		assignee, err := s.users.GetUserByID(ctx, *assigneeID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !assignee.IsActive) {
			return Assignment{}, apperr.Validation("assignee %s does not exist", *assigneeID)
		}
		if err != nil {
			return Assignment{}, err
		}
	}

	var (
		result   Assignment
		previous *string
		err      error
	)
	for attempt := 1; ; attempt++ {
		result, previous, err = s.assignOnce(ctx, caller, id, assigneeID)
		if !errors.Is(err, repository.ErrStale) {
			break
		}
		metrics.RecordWriteConflict("request")
		if attempt == maxWriteAttempts {
			return Assignment{}, apperr.Conflict("request %s is being modified concurrently, try again", id)
		}
	}
	if err != nil {
		return Assignment{}, err
	}

	log := s.logger.Info().Str("request_id", result.Request.ID).Str("by", caller.ID)
	if result.Task != nil {
		log.Str("assignee", *assigneeID).Str("task_id", result.Task.ID).Msg("request assigned")
		recipient := *assigneeID
		if recipient == caller.ID {
			recipient = result.Request.CreatedBy
		}
		s.notifyUser(ctx, caller, recipient, notification.Message{
			Type:    models.NotificationTaskAssigned,
			Title:   "Request assigned",
			Message: requestMessage(result.Request, "has been assigned"),
			Link:    notification.RequestLink(result.Request.ID),
		})
		s.publish(ctx, eventbus.TopicTasksUpdated, result.Task.ID, result.Request, stringValue(previous))
	} else {
		log.Msg("request unassigned")
		s.notifyUser(ctx, caller, result.Request.CreatedBy, notification.Message{
			Type:    models.NotificationRequest,
			Title:   "Request unassigned",
			Message: requestMessage(result.Request, "no longer has an assignee"),
			Link:    notification.RequestLink(result.Request.ID),
		})
	}
	s.publish(ctx, eventbus.TopicRequestsUpdated, result.Request.ID, result.Request, stringValue(previous))
	return result, nil
}

func (s *service) assignOnce(ctx context.Context, caller models.User, id string, assigneeID *string) (Assignment, *string, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return Assignment{}, nil, err
	}
	if !canManage(caller, req) {
		return Assignment{}, nil, apperr.Forbidden("only an admin of the target department or the current assignee can reassign")
	}
	if req.Status.IsTerminal() {
		return Assignment{}, nil, apperr.Conflict("request is %s and can no longer be reassigned", req.Status)
	}

	previous := req.AssignedTo
	req.AssignedTo = assigneeID
	if assigneeID == nil {
		updated, err := s.requests.Update(ctx, req)
		if err != nil {
			return Assignment{}, nil, err
		}
		return Assignment{Request: updated}, previous, nil
	}

	requestID := req.ID
	task := models.Task{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          req.Description,
		Status:               statusmap.SeedTaskStatus(req.Status),
		AssigneeID:           assigneeID,
		CreatedBy:            caller.ID,
		OriginatingRequestID: &requestID,
		StatusChangedAt:      s.now(),
	}
	updated, created, err := s.requests.AssignWithTask(ctx, req, task)
	if err != nil {
		return Assignment{}, nil, err
	}
	return Assignment{Request: updated, Task: &created}, previous, nil
}

func (s *service) UpdateDeadline(ctx context.Context, caller models.User, id string, deadline *time.Time) (models.Request, error) {
	updated, err := s.mutate(ctx, id, func(req *models.Request) error {
		if !canManage(caller, *req) {
			return apperr.Forbidden("only the assignee or an admin of the target department can change the deadline")
		}
		if req.Status.IsTerminal() {
			return apperr.Conflict("request is %s and can no longer be changed", req.Status)
		}
		req.TentativeDeadline = deadline
		return nil
	})
	if err != nil {
		return models.Request{}, err
	}

	what := "deadline cleared"
	if deadline != nil {
		what = "deadline set to " + deadline.Format("2006-01-02")
	}
	s.notifyCounterparts(ctx, caller, updated, notification.Message{
		Type:    models.NotificationRequest,
		Title:   "Request deadline updated",
		Message: requestMessage(updated, what),
	})
	s.publish(ctx, eventbus.TopicRequestsUpdated, updated.ID, updated)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, caller models.User, id string) error {
	req, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if req.CreatedBy != caller.ID {
		return apperr.Forbidden("only the creator can delete a request")
	}
	if err := s.requests.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("request %s not found", id)
		}
		return err
	}

	s.logger.Info().Str("request_id", req.ID).Str("by", caller.ID).Msg("request deleted")
	s.publish(ctx, eventbus.TopicRequestsUpdated, req.ID, req)
	s.publish(ctx, eventbus.TopicTasksUpdated, "", req)
	return nil
}

func (s *service) ApplyTaskStatus(ctx context.Context, change models.TaskStatusChange) (models.Request, bool, error) {
	mapped, ok := statusmap.TaskStatusToRequestStatus(change.Status)
	if !ok {
		return models.Request{}, false, apperr.Validation("unknown task status %q", change.Status)
	}
	if strings.TrimSpace(change.RequestID) == "" {
		return models.Request{}, false, nil
	}

	var (
		from    models.RequestStatus
		applied bool
	)
	updated, err := s.mutate(ctx, change.RequestID, func(req *models.Request) error {
		applied = false
		if !statusmap.AcceptsDerivedStatus(req.Status) {
			return nil
		}
		if !change.ChangedAt.After(req.StatusChangedAt) || req.Status == mapped {
			return nil
		}
		from = req.Status
		req.Status = mapped
		req.StatusChangedAt = change.ChangedAt.UTC()
		applied = true
		return nil
	}, skipUnchanged(&applied))
	if apperr.Is(err, apperr.KindNotFound) {
		// the request was deleted after the task was spawned
		return models.Request{}, false, nil
	}
	if err != nil {
		return models.Request{}, false, err
	}
	if !applied {
		return updated, false, nil
	}

	metrics.RecordTransition("task", string(from), string(mapped))
	s.logger.Info().
		Str("request_id", updated.ID).
		Str("task_id", change.TaskID).
		Str("from", string(from)).
		Str("to", string(mapped)).
		Msg("request status reflected from task")

	if updated.CreatedBy != change.ChangedBy {
		s.notifications.Notify(ctx, notification.Message{
			UserID:  updated.CreatedBy,
			Type:    models.NotificationRequest,
			Title:   "Request status updated",
			Message: requestMessage(updated, "moved to "+string(mapped)),
			Link:    notification.RequestLink(updated.ID),
		})
	}
	s.publish(ctx, eventbus.TopicRequestsUpdated, updated.ID, updated)
	return updated, true, nil
}

type mutateOption func(*mutateConfig)

type mutateConfig struct {
	skip *bool
}

// skipUnchanged makes mutate return the loaded request without writing when
// *applied is false after the mutation ran.
func skipUnchanged(applied *bool) mutateOption {
	return func(c *mutateConfig) { c.skip = applied }
}

// mutate runs the read-validate-swap loop. fn sees the current row and may
// reject it; a lost swap re-reads and re-validates.
func (s *service) mutate(ctx context.Context, id string, fn func(*models.Request) error, opts ...mutateOption) (models.Request, error) {
	var cfg mutateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	for attempt := 1; ; attempt++ {
		req, err := s.load(ctx, id)
		if err != nil {
			return models.Request{}, err
		}
		if err := fn(&req); err != nil {
			return models.Request{}, err
		}
		if cfg.skip != nil && !*cfg.skip {
			return req, nil
		}

		updated, err := s.requests.Update(ctx, req)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, repository.ErrStale) {
			return models.Request{}, err
		}
		metrics.RecordWriteConflict("request")
		if attempt == maxWriteAttempts {
			return models.Request{}, apperr.Conflict("request %s is being modified concurrently, try again", id)
		}
	}
}

func (s *service) load(ctx context.Context, id string) (models.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Request{}, apperr.NotFound("request %s not found", id)
	}
	return req, err
}

// publish addresses the event to the people who work the request: its
// creator, its assignee, the target department's admins and any extra ids.
func (s *service) publish(ctx context.Context, topic eventbus.Topic, entityID string, req models.Request, extra ...string) {
	s.bus.Publish(eventbus.Event{Topic: topic, EntityID: entityID, Audience: s.audience(ctx, req, extra...)})
}

func (s *service) audience(ctx context.Context, req models.Request, extra ...string) []string {
	ids := append([]string{req.CreatedBy}, extra...)
	if req.AssignedTo != nil {
		ids = append(ids, *req.AssignedTo)
	}
	if req.ToDepartment != nil {
		admins, err := s.roster.Admins(ctx, *req.ToDepartment)
		if err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.ID).Msg("could not resolve department admins for event audience")
		}
		for _, admin := range admins {
			ids = append(ids, admin.ID)
		}
	}

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func stringValue(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}
