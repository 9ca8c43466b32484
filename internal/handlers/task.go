package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/task"
	"github.com/rs/zerolog"
)

type TaskHandler struct {
	service task.Service
	logger  zerolog.Logger
}

func NewTaskHandler(service task.Service, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger.With().Str("handler", "task").Logger(),
	}
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	t, err := h.service.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var payload struct {
		Status models.TaskStatus `json:"status"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	updated, err := h.service.UpdateStatus(r.Context(), caller, mux.Vars(r)["id"], payload.Status)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update task status")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
