package web

// errors.go turns service errors into JSON error responses.
//
// Every error is logged with its technical details and request id, then
// mapped through core.MapError so clients see the same message and code
// that a failed task records. The status code is chosen from the error's
// type by statusFor.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/tabledock/internal/core"
	"github.com/JonMunkholm/tabledock/internal/logging"
)

// ErrorResponse is the body of every API error.
// Code is machine-readable; Message, Detail and Action are for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Detail:  msg.Detail,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// badRequest reports a malformed request that never reached the service.
func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid request",
		Message: "The request could not be understood",
		Detail:  detail,
		Action:  "Check the request parameters and body",
		Code:    "REQ001",
	})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrDatasetLocked), errors.Is(err, core.ErrInvalidTaskTransition):
		return http.StatusConflict
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case core.IsNotSniffable(err), core.IsEncoding(err):
		return http.StatusUnprocessableEntity
	case core.IsDataImport(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyTasks):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
