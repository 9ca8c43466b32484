package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/cache"
	"github.com/govindrajpootecosoul/project-tracker/internal/collab"
	"github.com/govindrajpootecosoul/project-tracker/internal/department"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/handlers"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository/memory"
	"github.com/govindrajpootecosoul/project-tracker/internal/request"
	"github.com/govindrajpootecosoul/project-tracker/internal/task"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var (
	creator = models.User{ID: "creator", Email: "creator@x", Role: models.RoleUser, DepartmentID: "sales", IsActive: true}
	admin   = models.User{ID: "admin", Email: "admin@x", Role: models.RoleAdmin, DepartmentID: "it", IsActive: true}
	worker  = models.User{ID: "worker", Email: "worker@x", Role: models.RoleUser, DepartmentID: "it", IsActive: true}
	retired = models.User{ID: "retired", Email: "retired@x", Role: models.RoleAdmin, DepartmentID: "it", IsActive: false}
)

type api struct {
	t      *testing.T
	router http.Handler
	repos  *memory.Repositories
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zerolog.Nop()
	repos := memory.NewRepositories()
	for _, u := range []models.User{creator, admin, worker, retired} {
		repos.Users.Put(u)
	}
	repos.Targets.PutCredential("cred-public", "Staging DB", creator.ID, models.PrivacyPublic)
	repos.Targets.PutCredential("cred-private", "Root key", creator.ID, models.PrivacyPrivate)

	bus := eventbus.New(logger)
	notifications := notification.NewService(repos.Notifications, logger, notification.NewBusNotifier(bus))
	roster := department.NewRoster(repos.Users, cache.New[[]models.User]("departments", cache.NewMemoryStore(), time.Minute, logger), 0)
	requests := request.NewService(repos.Requests, repos.Tasks, repos.Users, roster, notifications, bus, logger)
	tasks := task.NewService(repos.Tasks, task.NewDirectReflector(requests), bus, logger)
	invites := collab.NewService(repos.Invites, repos.Targets, repos.Users, notifications, notification.NewLogInviteMailer(logger), bus,
		collab.Options{InviteURLTemplate: "http://localhost:3000/collab-invites/%s?targetKind=%s"}, logger)

	router := NewRouter(Handlers{
		Auth:          handlers.NewAuthHandler(repos.Users, secret, logger),
		Requests:      handlers.NewRequestHandler(requests, logger),
		Tasks:         handlers.NewTaskHandler(tasks, logger),
		Invites:       handlers.NewInviteHandler(invites, logger),
		Notifications: handlers.NewNotificationHandler(notifications, logger),
		Departments:   handlers.NewDepartmentHandler(roster, logger),
		Ready:         handlers.ReadinessCheck(nil),
	})
	return &api{t: t, router: router, repos: repos}
}

func (a *api) do(user *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := handlers.IssueToken(secret, user.ID, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t)

	require.Equal(t, http.StatusUnauthorized, a.do(nil, http.MethodGet, "/api/requests", nil).Code)
	require.Equal(t, http.StatusUnauthorized, a.do(&retired, http.MethodGet, "/api/requests", nil).Code)

	ghost := models.User{ID: "ghost"}
	require.Equal(t, http.StatusUnauthorized, a.do(&ghost, http.MethodGet, "/api/requests", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := handlers.IssueToken(secret, creator.ID, -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/requests?access_token="+expired, nil)
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Equal(t, http.StatusOK, a.do(nil, http.MethodGet, "/health", nil).Code)
	require.Equal(t, http.StatusOK, a.do(nil, http.MethodGet, "/ready", nil).Code)
	require.Equal(t, http.StatusOK, a.do(nil, http.MethodGet, "/api/metrics", nil).Code)
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)

	rec := a.do(&creator, http.MethodPost, "/api/requests", map[string]interface{}{"title": "", "description": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "title is required")

	rec = a.do(&creator, http.MethodPost, "/api/requests", map[string]interface{}{
		"title":        "VPN access",
		"description":  "New laptop",
		"requestType":  "ACCESS",
		"toDepartment": "it",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Request](t, rec)
	require.Equal(t, models.RequestSubmitted, created.Status)
	require.Equal(t, models.PriorityMedium, created.Priority)

	path := "/api/requests/" + created.ID
	require.Equal(t, http.StatusForbidden, a.do(&worker, http.MethodPatch, path+"/status", map[string]string{"status": "APPROVED"}).Code)
	require.Equal(t, http.StatusConflict, a.do(&admin, http.MethodPatch, path+"/status", map[string]string{"status": "CLOSED"}).Code)
	rec = a.do(&admin, http.MethodGet, path+"/transitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []models.RequestStatus{models.RequestApproved, models.RequestRejected}, decode[request.Transitions](t, rec).Allowed)
	require.Equal(t, http.StatusOK, a.do(&admin, http.MethodPatch, path+"/status", map[string]string{"status": "APPROVED"}).Code)

	rec = a.do(&admin, http.MethodPatch, path+"/assignment", map[string]string{"assignedTo": worker.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assignment := decode[request.Assignment](t, rec)
	require.NotNil(t, assignment.Task)
	require.Equal(t, created.ID, *assignment.Task.OriginatingRequestID)

	rec = a.do(&worker, http.MethodPatch, "/api/tasks/"+assignment.Task.ID+"/status", map[string]string{"status": "COMPLETED"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(&creator, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.RequestCompleted, decode[models.Request](t, rec).Status)

	rec = a.do(&creator, http.MethodGet, path+"/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]models.Task](t, rec)["tasks"], 1)

	rec = a.do(&worker, http.MethodGet, "/api/requests?direction=received", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]models.Request](t, rec)["requests"], 1)
	require.Equal(t, http.StatusBadRequest, a.do(&worker, http.MethodGet, "/api/requests?direction=everything", nil).Code)
	rec = a.do(&creator, http.MethodGet, "/api/requests?direction=sent&status=approved,in_progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[map[string][]models.Request](t, rec)["requests"])
	rec = a.do(&creator, http.MethodGet, "/api/requests?direction=sent&status=SUBMITTED&status=COMPLETED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]models.Request](t, rec)["requests"], 1)
	require.Equal(t, http.StatusBadRequest, a.do(&creator, http.MethodGet, "/api/requests?status=DONE", nil).Code)

	require.Equal(t, http.StatusForbidden, a.do(&admin, http.MethodDelete, path, nil).Code)
	require.Equal(t, http.StatusNoContent, a.do(&creator, http.MethodDelete, path, nil).Code)
	require.Equal(t, http.StatusNotFound, a.do(&creator, http.MethodGet, path, nil).Code)
}

func TestNotificationsOverHTTP(t *testing.T) {
	a := newAPI(t)
	rec := a.do(&creator, http.MethodPost, "/api/requests", map[string]interface{}{"title": "Laptop", "description": "x", "toDepartment": "it"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Request](t, rec)
	require.Equal(t, http.StatusOK, a.do(&admin, http.MethodPatch, "/api/requests/"+created.ID+"/status", map[string]string{"status": "REJECTED"}).Code)

	rec = a.do(&creator, http.MethodGet, "/api/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[map[string]int](t, rec)["count"])

	rec = a.do(&creator, http.MethodGet, "/api/notifications?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[map[string][]models.Notification](t, rec)["notifications"]
	require.Len(t, feed, 1)
	require.Equal(t, "/requests/"+created.ID, feed[0].Link)

	require.Equal(t, http.StatusNotFound, a.do(&admin, http.MethodPost, "/api/notifications/"+feed[0].ID+"/read", nil).Code)
	rec = a.do(&creator, http.MethodPost, "/api/notifications/"+feed[0].ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[models.Notification](t, rec).Read)

	rec = a.do(&creator, http.MethodPost, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, decode[map[string]int](t, rec)["updated"])
}

func TestCollaborationInvitesOverHTTP(t *testing.T) {
	a := newAPI(t)

	rec := a.do(&creator, http.MethodPost, "/api/collab-invites/credential", map[string]string{"targetId": "cred-private", "inviteeUserId": worker.ID})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = a.do(&creator, http.MethodPost, "/api/collab-invites/credential", map[string]string{"targetId": "cred-public", "inviteeUserId": worker.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	invite := decode[models.CollaborationInvite](t, rec)

	rec = a.do(&worker, http.MethodGet, "/api/collab-invites/credential?direction=received", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]models.CollaborationInvite](t, rec)["invites"], 1)

	require.Equal(t, http.StatusBadRequest, a.do(&worker, http.MethodPost, "/api/collab-invites/"+invite.ID+"/respond", map[string]string{}).Code)
	require.Equal(t, http.StatusForbidden, a.do(&admin, http.MethodPost, "/api/collab-invites/"+invite.ID+"/respond", map[string]bool{"accept": true}).Code)
	require.Equal(t, http.StatusOK, a.do(&creator, http.MethodPost, "/api/collab-invites/"+invite.ID+"/cancel", nil).Code)
	require.Equal(t, http.StatusConflict, a.do(&worker, http.MethodPost, "/api/collab-invites/"+invite.ID+"/respond", map[string]bool{"accept": true}).Code)
}

func TestDepartmentMembersRequiresDepartmentAdmin(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusForbidden, a.do(&worker, http.MethodGet, "/api/departments/it/members", nil).Code)

	rec := a.do(&admin, http.MethodGet, "/api/departments/it/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]models.User](t, rec)["members"], 3)

	require.Equal(t, http.StatusForbidden, a.do(&admin, http.MethodGet, "/api/departments/sales/members", nil).Code)
}
