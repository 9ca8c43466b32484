package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
	"github.com/rs/zerolog"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}

	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.service.List(r.Context(), userID, limit)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}

	notifID := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if notifID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Notification ID is required"})
		return
	}

	notif, err := h.service.MarkRead(r.Context(), userID, notifID)
	if err != nil {
		writeError(w, h.logger.With().Str("notification_id", notifID).Logger(), err, "Failed to update notification")
		return
	}

	writeJSON(w, http.StatusOK, notif)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	updated, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
