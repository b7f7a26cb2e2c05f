package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/logger"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindValidation:
		return http.StatusUnprocessableEntity
	case errs.ErrKindInvalidInput, errs.ErrKindExecutionFailed:
		return http.StatusBadRequest
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindUpstream:
		return http.StatusBadGateway
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders a classified error. Causes are included only for
// execution failures, where the database message tells the caller what to
// fix.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := errs.KindOf(err)

	message := "internal error"
	extra := map[string]any{}
	var e *errs.Error
	if errors.As(err, &e) {
		message = e.Message
		if kind == errs.ErrKindExecutionFailed && e.Cause != nil {
			message += ": " + e.Cause.Error()
		}
		if e.Rule != errs.RuleNone {
			extra["rule"] = string(e.Rule)
		}
		if e.Pattern != "" {
			extra["pattern"] = e.Pattern
		}
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]interface{}{
			"status": status,
			"kind":   kind.String(),
		})
	}
	if len(extra) == 0 {
		extra = nil
	}
	writeError(w, r, status, kind.String(), message, extra)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, extra map[string]any) {
	body := map[string]any{
		"error_code": code,
		"message":    message,
		"request_id": middleware.GetReqID(r.Context()),
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
