package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindStoreUnavailable, errs.ErrKindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the error's kind and message. Errors without a
// kind are logged and reported as unknown, without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)

	msg := "internal error"
	var e *errs.Error
	if errors.As(err, &e) {
		msg = e.Message
	}

	log := logger.FromContext(r.Context())
	fields := map[string]interface{}{"kind": kind.String(), "status": status, "path": r.URL.Path}
	if status >= http.StatusInternalServerError {
		log.ErrorWith("request failed", err, fields)
	} else {
		log.InfoWith("request rejected: "+err.Error(), fields)
	}

	writeJSON(w, status, ErrorResponse{Error: kind.String(), Message: msg})
}
