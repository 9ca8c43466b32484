package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/collab"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/rs/zerolog"
)

type InviteHandler struct {
	service collab.Service
	logger  zerolog.Logger
}

type respondPayload struct {
	Accept *bool `json:"accept"`
}

func NewInviteHandler(service collab.Service, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{
		service: service,
		logger:  logger.With().Str("handler", "collab_invite").Logger(),
	}
}

func (h *InviteHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var in collab.InviteInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	kind := models.TargetKind(strings.TrimSpace(mux.Vars(r)["targetKind"]))
	invite, err := h.service.Invite(r.Context(), caller, kind, in)
	if err != nil {
		writeError(w, h.logger, err, "Failed to create invite")
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

func (h *InviteHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	kind := models.TargetKind(strings.TrimSpace(mux.Vars(r)["targetKind"]))
	direction := models.RequestDirection(strings.TrimSpace(r.URL.Query().Get("direction")))
	if direction == "" {
		direction = models.DirectionReceived
	}
	invites, err := h.service.List(r.Context(), caller, kind, direction)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list invites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invites": invites})
}

func (h *InviteHandler) Respond(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	var payload respondPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	if payload.Accept == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "accept is required"})
		return
	}
	invite, err := h.service.Respond(r.Context(), caller, mux.Vars(r)["id"], *payload.Accept)
	if err != nil {
		writeError(w, h.logger, err, "Failed to respond to invite")
		return
	}
	writeJSON(w, http.StatusOK, invite)
}

func (h *InviteHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.UserFromRequest(r)
	if !ok {
		unauthorized(w, "Missing user context")
		return
	}
	invite, err := h.service.Cancel(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to cancel invite")
		return
	}
	writeJSON(w, http.StatusOK, invite)
}
