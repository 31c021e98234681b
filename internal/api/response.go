package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/adminsuite/reminderd/internal/models"
)

// APIResponse is the standard response envelope: a status plus an optional
// message and result payload.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success builds an ok response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error builds an error response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}

// writeJSON serializes a response envelope with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("api: encode response failed", "error", err)
	}
}

// writeError maps engine errors onto HTTP statuses: misuse surfaces as
// 400/404/409, everything else as 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrPolicyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidStateTransition), errors.Is(err, models.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidKind),
		errors.Is(err, models.ErrInvalidChannel),
		errors.Is(err, models.ErrNegativeOffset),
		errors.Is(err, models.ErrAmbiguousOffset),
		errors.Is(err, models.ErrNegativeRetries),
		errors.Is(err, models.ErrMissingEntityID),
		errors.Is(err, models.ErrMissingTrigger),
		errors.Is(err, models.ErrEmptyRecipient):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, Error(err.Error()))
}
