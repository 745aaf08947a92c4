package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/analytiqhub/docrouter/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// RespondAppError maps an apperr.Error (or a generic error, treated as
// internal) to its taxonomy HTTP status and writes it as JSON.
func RespondAppError(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		RespondError(w, http.StatusInternalServerError, string(apperr.Internal), "internal error")
		return
	}
	RespondError(w, apperr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
}
