package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/puck-central/internal/actuator"
	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/discovery"
	"github.com/nerrad567/puck-central/internal/pairing"
	"github.com/nerrad567/puck-central/internal/puck"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain error onto a response. Unknown errors are
// logged by the caller and reported as 500 with fallback as the message.
func writeDomainError(w http.ResponseWriter, err error, fallback string) bool {
	switch {
	case errors.Is(err, puck.ErrPuckNotFound),
		errors.Is(err, automation.ErrRuleNotFound),
		errors.Is(err, automation.ErrUnknownPuck),
		errors.Is(err, pairing.ErrCandidateNotFound):
		writeNotFound(w, err.Error())

	case errors.Is(err, puck.ErrPuckExists),
		errors.Is(err, pairing.ErrAlreadyPaired):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, puck.ErrInvalidAddress),
		errors.Is(err, puck.ErrInvalidName),
		errors.Is(err, puck.ErrInvalidBeacon),
		errors.Is(err, automation.ErrInvalidRule),
		errors.Is(err, automation.ErrUnknownTrigger),
		errors.Is(err, automation.ErrInvalidAction),
		errors.Is(err, automation.ErrUnknownActuator),
		errors.Is(err, automation.ErrConfigurationIncomplete),
		errors.Is(err, actuator.ErrMissingParam),
		errors.Is(err, actuator.ErrInvalidParam),
		errors.Is(err, pairing.ErrInvalidSighting):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())

	case errors.Is(err, discovery.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())

	default:
		writeInternalError(w, fallback)
		return false
	}
	return true
}
