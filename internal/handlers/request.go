package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/request"
	"github.com/rs/zerolog"
)

type RequestHandler struct {
	service request.Service
	logger  zerolog.Logger
}

func NewRequestHandler(service request.Service, logger zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		service: service,
		logger:  logger.With().Str("handler", "request").Logger(),
	}
}

type statusPayload struct {
	Status models.RequestStatus `json:"status"`
}

type assignmentPayload struct {
	AssignedTo *string `json:"assignedTo"`
}

type deadlinePayload struct {
	TentativeDeadline *time.Time `json:"tentativeDeadline"`
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var in request.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	created, err := h.service.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, h.logger, err, "Failed to create request")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	direction := models.RequestDirection(strings.TrimSpace(r.URL.Query().Get("direction")))
	if direction == "" {
		direction = models.DirectionReceived
	}
	requests, err := h.service.List(r.Context(), caller, direction, statusParams(r)...)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	req, err := h.service.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to load request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	out, err := h.service.Transitions(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to load transitions")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// statusParams accepts both ?status=A&status=B and ?status=A,B.
func statusParams(r *http.Request) []models.RequestStatus {
	var out []models.RequestStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, models.RequestStatus(strings.ToUpper(part)))
			}
		}
	}
	return out
}

func (h *RequestHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	tasks, err := h.service.Tasks(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var payload statusPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	updated, err := h.service.UpdateStatus(r.Context(), caller, mux.Vars(r)["id"], payload.Status)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update request status")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RequestHandler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var payload assignmentPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	assignment, err := h.service.UpdateAssignment(r.Context(), caller, mux.Vars(r)["id"], payload.AssignedTo)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update assignment")
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (h *RequestHandler) UpdateDeadline(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var payload deadlinePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	updated, err := h.service.UpdateDeadline(r.Context(), caller, mux.Vars(r)["id"], payload.TentativeDeadline)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update deadline")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, h.logger, apperr.Validation("request id is required"), "")
		return
	}
	if err := h.service.Delete(r.Context(), caller, id); err != nil {
		writeError(w, h.logger, err, "Failed to delete request")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
