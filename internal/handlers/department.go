package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/govindrajpootecosoul/project-tracker/internal/department"
	"github.com/rs/zerolog"
)

type DepartmentHandler struct {
	roster department.Roster
	logger zerolog.Logger
}

func NewDepartmentHandler(roster department.Roster, logger zerolog.Logger) *DepartmentHandler {
	return &DepartmentHandler{
		roster: roster,
		logger: logger.With().Str("handler", "department").Logger(),
	}
}

func (h *DepartmentHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.roster.Members(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to list department members")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}
