package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	json.NewEncoder(w).Encode(payload)
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:   http.StatusBadRequest,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindPrecondition: http.StatusPreconditionFailed,
}

// writeError maps classified errors to their status with the user-facing
// message. Anything else is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	if status, ok := statusByKind[apperr.KindOf(err)]; ok {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	logger.Error().Err(err).Msg(msg)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request payload")
	}
	return nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
}
