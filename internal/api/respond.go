package api

import (
	"encoding/json"
	"net/http"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/observability"
)

type errorBody struct {
	Error   errors.Code `json:"error"`
	Message string      `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeIntegrity, errors.ErrCodeInvalidConfig, errors.ErrCodeInvalidInput,
		errors.ErrCodeInvalidSelector, errors.ErrCodeInvalidFormat, errors.ErrCodeUnsupported:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConcurrentMutation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError renders err. Internal errors are logged and their details
// withheld from the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := errors.GetCode(err)
	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		code = errors.ErrCodeInternal
		msg = http.StatusText(status)
	}
	observability.HTTP().OnError(r.Context(), r.Method, routePattern(r), err)
	respondJSON(w, status, errorBody{Error: code, Message: msg})
}
