package request

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/cache"
	"github.com/govindrajpootecosoul/project-tracker/internal/department"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository/memory"
	"github.com/govindrajpootecosoul/project-tracker/internal/statusmap"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	creator  = models.User{ID: "u-creator", Email: "creator@x", Role: models.RoleUser, DepartmentID: "sales", IsActive: true}
	itAdmin  = models.User{ID: "u-it-admin", Email: "it-admin@x", Role: models.RoleAdmin, DepartmentID: "it", IsActive: true}
	itAdmin2 = models.User{ID: "u-it-admin2", Email: "it-admin2@x", Role: models.RoleAdmin, DepartmentID: "it", IsActive: true}
	worker   = models.User{ID: "u-worker", Email: "worker@x", Role: models.RoleUser, DepartmentID: "it", IsActive: true}
	outsider = models.User{ID: "u-outsider", Email: "outsider@x", Role: models.RoleUser, DepartmentID: "hr", IsActive: true}
	hrAdmin  = models.User{ID: "u-hr-admin", Email: "hr-admin@x", Role: models.RoleAdmin, DepartmentID: "hr", IsActive: true}
	super    = models.User{ID: "u-super", Email: "super@x", Role: models.RoleSuperAdmin, IsActive: true}
)

type fixture struct {
	repos         *memory.Repositories
	notifications notification.Service
	bus           eventbus.Bus
	svc           Service

	mu     sync.Mutex
	events []eventbus.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	for _, u := range []models.User{creator, itAdmin, itAdmin2, worker, outsider, hrAdmin, super} {
		repos.Users.Put(u)
	}
	f := &fixture{repos: repos, bus: eventbus.New(zerolog.Nop())}
	f.bus.SubscribeAll(func(e eventbus.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})
	f.notifications = notification.NewService(repos.Notifications, zerolog.Nop())
	roster := department.NewRoster(repos.Users, cache.New[[]models.User]("departments", cache.NewMemoryStore(), time.Minute, zerolog.Nop()), 0)
	f.svc = NewService(repos.Requests, repos.Tasks, repos.Users, roster, f.notifications, f.bus, zerolog.Nop())
	return f
}

func (f *fixture) create(t *testing.T) models.Request {
	t.Helper()
	it := "it"
	req, err := f.svc.Create(context.Background(), creator, CreateInput{
		Title:        "VPN access",
		Description:  "Need VPN for the new laptop",
		RequestType:  models.RequestTypeAccess,
		ToDepartment: &it,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) seed(t *testing.T, status models.RequestStatus) models.Request {
	t.Helper()
	it := "it"
	req, err := f.repos.Requests.Create(context.Background(), models.Request{
		ID:             "r-" + string(status),
		Title:          "Seeded",
		Description:    "seeded",
		Type:           models.RequestTypeOther,
		Priority:       models.PriorityMedium,
		Status:         status,
		FromDepartment: "sales",
		ToDepartment:   &it,
		CreatedBy:      creator.ID,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) feed(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := f.notifications.List(context.Background(), userID, 100)
	require.NoError(t, err)
	return list
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, creator, CreateInput{Title: "  Laptop  ", Description: "New laptop"})
	require.NoError(t, err)
	require.Equal(t, "Laptop", req.Title)
	require.Equal(t, models.RequestSubmitted, req.Status)
	require.Equal(t, models.RequestTypeOther, req.Type)
	require.Equal(t, models.PriorityMedium, req.Priority)
	require.Equal(t, "sales", req.FromDepartment)
	require.Equal(t, creator.ID, req.CreatedBy)
	require.Nil(t, req.AssignedTo)

	_, err = f.svc.Create(ctx, creator, CreateInput{Title: "   ", Description: "x"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	require.ErrorContains(t, err, "title is required")

	_, err = f.svc.Create(ctx, creator, CreateInput{Title: "x"})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Create(ctx, creator, CreateInput{Title: "x", Description: "y", Priority: "URGENT"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	require.ErrorContains(t, err, "priority must be one of")
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	for _, from := range models.RequestStatuses {
		for _, to := range models.RequestStatuses {
			f := newFixture(t)
			req := f.seed(t, from)

			updated, err := f.svc.UpdateStatus(context.Background(), super, req.ID, to)
			if statusmap.CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, updated.Status)
				require.EqualValues(t, req.Version+1, updated.Version)
			} else {
				require.True(t, apperr.Is(err, apperr.KindConflict), "%s -> %s: %v", from, to, err)
			}
		}
	}
}

func TestUpdateStatusRequiresManager(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)
	ctx := context.Background()

	for _, caller := range []models.User{outsider, creator, worker, hrAdmin} {
		_, err := f.svc.UpdateStatus(ctx, caller, req.ID, models.RequestApproved)
		require.True(t, apperr.Is(err, apperr.KindForbidden), "caller %s", caller.ID)
	}

	stored, err := f.repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestSubmitted, stored.Status)

	_, err = f.svc.UpdateStatus(ctx, itAdmin, req.ID, models.RequestApproved)
	require.NoError(t, err)
}

func TestUpdateStatusValidatesInput(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	_, err := f.svc.UpdateStatus(context.Background(), itAdmin, req.ID, "DONE")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpdateStatus(context.Background(), itAdmin, "missing", models.RequestApproved)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestApproveAssignCompleteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)

	approved, err := f.svc.UpdateStatus(ctx, itAdmin, req.ID, models.RequestApproved)
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, approved.Status)

	workerID := worker.ID
	assignment, err := f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &workerID)
	require.NoError(t, err)
	require.NotNil(t, assignment.Task)
	require.Equal(t, models.TaskYetToStart, assignment.Task.Status)
	require.Equal(t, req.ID, *assignment.Task.OriginatingRequestID)
	require.Equal(t, worker.ID, *assignment.Request.AssignedTo)

	_, applied, err := f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{
		TaskID:    assignment.Task.ID,
		RequestID: req.ID,
		Status:    models.TaskCompleted,
		ChangedAt: time.Now().Add(time.Second),
		ChangedBy: worker.ID,
	})
	require.NoError(t, err)
	require.True(t, applied)

	final, err := f.svc.Get(ctx, creator, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestCompleted, final.Status)

	tasks, err := f.svc.Tasks(ctx, creator, req.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	creatorFeed := f.feed(t, creator.ID)
	require.Len(t, creatorFeed, 2, "approval and completion")
	workerFeed := f.feed(t, worker.ID)
	require.Len(t, workerFeed, 1)
	require.Equal(t, models.NotificationTaskAssigned, workerFeed[0].Type)
}

func TestEveryAssignmentCreatesTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)

	workerID := worker.ID
	adminID := itAdmin2.ID
	_, err := f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &workerID)
	require.NoError(t, err)
	_, err = f.svc.UpdateAssignment(ctx, worker, req.ID, &adminID)
	require.NoError(t, err, "current assignee may hand over")

	tasks, err := f.svc.Tasks(ctx, creator, req.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	unassigned, err := f.svc.UpdateAssignment(ctx, itAdmin2, req.ID, nil)
	require.NoError(t, err)
	require.Nil(t, unassigned.Task)
	require.Nil(t, unassigned.Request.AssignedTo)

	tasks, err = f.svc.Tasks(ctx, creator, req.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestAssignmentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)
	workerID := worker.ID

	_, err := f.svc.UpdateAssignment(ctx, creator, req.ID, &workerID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	ghost := "u-ghost"
	_, err = f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &ghost)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	rejected := f.seed(t, models.RequestRejected)
	_, err = f.svc.UpdateAssignment(ctx, itAdmin, rejected.ID, &workerID)
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestSelfAssignmentNotifiesCreator(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)
	selfID := itAdmin.ID

	_, err := f.svc.UpdateAssignment(context.Background(), itAdmin, req.ID, &selfID)
	require.NoError(t, err)

	require.Empty(t, f.feed(t, itAdmin.ID))
	feed := f.feed(t, creator.ID)
	require.Len(t, feed, 1)
	require.Equal(t, models.NotificationTaskAssigned, feed[0].Type)
}

func TestCreatorChangeNotifiesDepartmentAdminsWhenUnassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := "it"
	req, err := f.svc.Create(ctx, itAdmin, CreateInput{Title: "Rotate keys", Description: "quarterly", ToDepartment: &it})
	require.NoError(t, err)

	deadline := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	updated, err := f.svc.UpdateDeadline(ctx, itAdmin, req.ID, &deadline)
	require.NoError(t, err)
	require.Equal(t, deadline, *updated.TentativeDeadline)

	require.Empty(t, f.feed(t, itAdmin.ID), "the actor is never notified")
	feed := f.feed(t, itAdmin2.ID)
	require.Len(t, feed, 1)
	require.Contains(t, feed[0].Message, "deadline set to 2026-12-01")
	require.Empty(t, f.feed(t, worker.ID))
}

func TestDeadlineRequiresManager(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)
	deadline := time.Now()

	_, err := f.svc.UpdateDeadline(context.Background(), outsider, req.ID, &deadline)
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	cleared, err := f.svc.UpdateDeadline(context.Background(), itAdmin, req.ID, nil)
	require.NoError(t, err)
	require.Nil(t, cleared.TentativeDeadline)
}

func TestTaskDerivedWritesAreLastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)
	_, err := f.svc.UpdateStatus(ctx, itAdmin, req.ID, models.RequestApproved)
	require.NoError(t, err)
	current, err := f.repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)

	_, applied, err := f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{
		RequestID: req.ID,
		Status:    models.TaskInProgress,
		ChangedAt: current.StatusChangedAt.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.False(t, applied, "older than the direct write")

	_, applied, err = f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{
		RequestID: req.ID,
		Status:    models.TaskYetToStart,
		ChangedAt: current.StatusChangedAt.Add(time.Minute),
	})
	require.NoError(t, err)
	require.False(t, applied, "YTS maps to APPROVED, nothing to do")

	_, applied, err = f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{
		RequestID: req.ID,
		Status:    models.TaskRecurring,
		ChangedAt: current.StatusChangedAt.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, applied)
	stored, err := f.repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestInProgress, stored.Status)
}

func TestTaskDerivedWritesNeverTouchTerminalRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, status := range []models.RequestStatus{models.RequestRejected, models.RequestClosed} {
		req := f.seed(t, status)
		_, applied, err := f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{
			RequestID: req.ID,
			Status:    models.TaskInProgress,
			ChangedAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		require.False(t, applied)
		stored, err := f.repos.Requests.GetByID(ctx, req.ID)
		require.NoError(t, err)
		require.Equal(t, status, stored.Status)
	}

	_, applied, err := f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{RequestID: "gone", Status: models.TaskCompleted, ChangedAt: time.Now()})
	require.NoError(t, err)
	require.False(t, applied)

	_, _, err = f.svc.ApplyTaskStatus(ctx, models.TaskStatusChange{RequestID: "gone", Status: "ARCHIVED"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestTaskCannotCompleteUndecidedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)
	workerID := worker.ID
	assignment, err := f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &workerID)
	require.NoError(t, err)
	require.Equal(t, models.RequestSubmitted, assignment.Request.Status)

	change := models.TaskStatusChange{
		TaskID:    assignment.Task.ID,
		RequestID: req.ID,
		Status:    models.TaskCompleted,
		ChangedAt: time.Now().Add(time.Minute),
		ChangedBy: worker.ID,
	}
	stored, applied, err := f.svc.ApplyTaskStatus(ctx, change)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, models.RequestSubmitted, stored.Status)

	_, err = f.svc.UpdateStatus(ctx, itAdmin, req.ID, models.RequestApproved)
	require.NoError(t, err)
	change.ChangedAt = time.Now().Add(time.Hour)
	stored, applied, err = f.svc.ApplyTaskStatus(ctx, change)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.RequestCompleted, stored.Status)
}

func TestDeleteKeepsTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)
	workerID := worker.ID
	assignment, err := f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &workerID)
	require.NoError(t, err)

	require.True(t, apperr.Is(f.svc.Delete(ctx, itAdmin, req.ID), apperr.KindForbidden))
	require.NoError(t, f.svc.Delete(ctx, creator, req.ID))

	_, err = f.svc.Get(ctx, creator, req.ID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	task, err := f.repos.Tasks.GetByID(ctx, assignment.Task.ID)
	require.NoError(t, err)
	require.Nil(t, task.OriginatingRequestID)
}

func TestListDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)
	hr := "hr"
	hrReq, err := f.svc.Create(ctx, creator, CreateInput{Title: "Payslip", Description: "copy", ToDepartment: &hr})
	require.NoError(t, err)

	sent, err := f.svc.List(ctx, creator, models.DirectionSent)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	require.Equal(t, hrReq.ID, sent[0].ID, "newest first")

	received, err := f.svc.List(ctx, worker, models.DirectionReceived)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, req.ID, received[0].ID)

	outsiderID := outsider.ID
	_, err = f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &outsiderID)
	require.NoError(t, err)
	received, err = f.svc.List(ctx, outsider, models.DirectionReceived)
	require.NoError(t, err)
	require.Len(t, received, 2, "hr department request plus the assigned one")

	all, err := f.svc.List(ctx, super, models.DirectionReceived)
	require.NoError(t, err)
	require.Len(t, all, 2)

	empty, err := f.svc.List(ctx, itAdmin, models.DirectionSent)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	_, err = f.svc.List(ctx, creator, "both")
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.create(t)
	approved := f.create(t)
	_, err := f.svc.UpdateStatus(ctx, itAdmin, approved.ID, models.RequestApproved)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, creator, models.DirectionSent, models.RequestApproved)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, approved.ID, list[0].ID)

	list, err = f.svc.List(ctx, worker, models.DirectionReceived, models.RequestSubmitted, models.RequestApproved)
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = f.svc.List(ctx, worker, models.DirectionReceived, models.RequestSubmitted)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, submitted.ID, list[0].ID)

	_, err = f.svc.List(ctx, creator, models.DirectionSent, "DONE")
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestTransitionsDependOnCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)

	out, err := f.svc.Transitions(ctx, itAdmin, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestSubmitted, out.Status)
	require.Equal(t, []models.RequestStatus{models.RequestApproved, models.RequestRejected}, out.Allowed)

	out, err = f.svc.Transitions(ctx, worker, req.ID)
	require.NoError(t, err)
	require.NotNil(t, out.Allowed)
	require.Empty(t, out.Allowed, "members can view but not move the request")

	_, err = f.svc.Transitions(ctx, outsider, req.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.UpdateStatus(ctx, itAdmin, req.ID, models.RequestRejected)
	require.NoError(t, err)
	out, err = f.svc.Transitions(ctx, itAdmin, req.ID)
	require.NoError(t, err)
	require.Empty(t, out.Allowed)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	for _, caller := range []models.User{creator, worker, itAdmin, super} {
		_, err := f.svc.Get(context.Background(), caller, req.ID)
		require.NoError(t, err, "caller %s", caller.ID)
	}
	_, err := f.svc.Get(context.Background(), outsider, req.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestConcurrentStatusChangesHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[models.RequestStatus]error{}
	)
	for _, status := range []models.RequestStatus{models.RequestApproved, models.RequestRejected} {
		wg.Add(1)
		go func(status models.RequestStatus) {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(context.Background(), itAdmin, req.ID, status)
			mu.Lock()
			results[status] = err
			mu.Unlock()
		}(status)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			require.True(t, apperr.Is(err, apperr.KindConflict))
		}
	}
	require.Equal(t, 1, winners)
}

func TestMutationsPublishTopics(t *testing.T) {
	f := newFixture(t)
	req := f.create(t)
	workerID := worker.ID
	_, err := f.svc.UpdateAssignment(context.Background(), itAdmin, req.ID, &workerID)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []eventbus.Topic
	for _, e := range f.events {
		topics = append(topics, e.Topic)
	}
	require.Equal(t, []eventbus.Topic{
		eventbus.TopicRequestsUpdated,
		eventbus.TopicTasksUpdated,
		eventbus.TopicRequestsUpdated,
	}, topics)
}

func TestEventsAreAddressedToRequestParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t)
	workerID := worker.ID
	_, err := f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &workerID)
	require.NoError(t, err)
	adminID := itAdmin2.ID
	_, err = f.svc.UpdateAssignment(ctx, itAdmin, req.ID, &adminID)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.events, 5)

	created := f.events[0]
	require.ElementsMatch(t, []string{creator.ID, itAdmin.ID, itAdmin2.ID}, created.Audience)

	for _, e := range f.events {
		require.NotEmpty(t, e.Audience)
		require.False(t, e.Addressed(outsider.ID), "%s reached an unrelated user", e.Topic)
		require.False(t, e.Addressed(hrAdmin.ID), "%s reached another department's admin", e.Topic)
		require.True(t, e.Addressed(creator.ID))
	}

	reassigned := f.events[4]
	require.Equal(t, eventbus.TopicRequestsUpdated, reassigned.Topic)
	require.True(t, reassigned.Addressed(worker.ID), "the previous assignee hears about the reassignment")
	require.True(t, reassigned.Addressed(itAdmin2.ID))
}
