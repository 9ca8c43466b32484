package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/handlers"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Requests      *handlers.RequestHandler
	Tasks         *handlers.TaskHandler
	Invites       *handlers.InviteHandler
	Notifications *handlers.NotificationHandler
	Departments   *handlers.DepartmentHandler
	Events        http.Handler
	Ready         http.HandlerFunc
}

// NewRouter sets up the API routes
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	// Health check routes
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	if h.Ready != nil {
		router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(h.Auth.JWTMiddleware)
	protected.Use(authz.RequireRole(models.RoleUser))

	protected.HandleFunc("/requests", h.Requests.Create).Methods(http.MethodPost)
	protected.HandleFunc("/requests", h.Requests.List).Methods(http.MethodGet)
	protected.HandleFunc("/requests/{id}", h.Requests.Get).Methods(http.MethodGet)
	protected.HandleFunc("/requests/{id}", h.Requests.Delete).Methods(http.MethodDelete)
	protected.HandleFunc("/requests/{id}/tasks", h.Requests.Tasks).Methods(http.MethodGet)
	protected.HandleFunc("/requests/{id}/transitions", h.Requests.Transitions).Methods(http.MethodGet)
	protected.HandleFunc("/requests/{id}/status", h.Requests.UpdateStatus).Methods(http.MethodPatch)
	protected.HandleFunc("/requests/{id}/assignment", h.Requests.UpdateAssignment).Methods(http.MethodPatch)
	protected.HandleFunc("/requests/{id}/deadline", h.Requests.UpdateDeadline).Methods(http.MethodPatch)

	protected.HandleFunc("/tasks/{id}", h.Tasks.Get).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/{id}/status", h.Tasks.UpdateStatus).Methods(http.MethodPatch)

	protected.HandleFunc("/collab-invites/{targetKind}", h.Invites.CreateInvite).Methods(http.MethodPost)
	protected.HandleFunc("/collab-invites/{targetKind}", h.Invites.ListInvites).Methods(http.MethodGet)
	protected.HandleFunc("/collab-invites/{id}/respond", h.Invites.Respond).Methods(http.MethodPost)
	protected.HandleFunc("/collab-invites/{id}/cancel", h.Invites.Cancel).Methods(http.MethodPost)

	protected.HandleFunc("/notifications", h.Notifications.List).Methods(http.MethodGet)
	protected.HandleFunc("/notifications/unread-count", h.Notifications.UnreadCount).Methods(http.MethodGet)
	protected.HandleFunc("/notifications/read-all", h.Notifications.MarkAllRead).Methods(http.MethodPost)
	protected.HandleFunc("/notifications/{notificationID}/read", h.Notifications.MarkRead).Methods(http.MethodPost)

	protected.Handle("/departments/{id}/members",
		authz.RequireDepartmentAdmin("id", http.HandlerFunc(h.Departments.Members))).Methods(http.MethodGet)

	if h.Events != nil {
		protected.Handle("/events", h.Events).Methods(http.MethodGet)
	}

	return router
}
