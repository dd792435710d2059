package web

// errors.go turns handler errors into JSON responses. The technical error
// is logged with the request id; the client gets the mapped user message.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/CatalogImport/internal/core"
	"github.com/JonMunkholm/CatalogImport/internal/logging"
	"github.com/JonMunkholm/CatalogImport/internal/service"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTooManyRuns):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message with status.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context()).Warn
	if !core.IsUserFacing(err) && status >= http.StatusInternalServerError {
		log = logging.FromContext(r.Context()).Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	// Server errors keep their technical detail in the log only.
	detail := core.FormatUserError(err)
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, status, ErrorResponse{
		Error:   detail,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
