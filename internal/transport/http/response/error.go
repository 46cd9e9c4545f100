package response

import (
	"errors"
	"net/http"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

var kindStatus = map[domain.ErrKind]int{
	domain.KindValidation:     http.StatusBadRequest,
	domain.KindAuth:           http.StatusUnauthorized,
	domain.KindForbidden:      http.StatusForbidden,
	domain.KindNotFound:       http.StatusNotFound,
	domain.KindConflict:       http.StatusConflict,
	domain.KindRateLimited:    http.StatusTooManyRequests,
	domain.KindInfrastructure: http.StatusServiceUnavailable,
	domain.KindInternal:       http.StatusInternalServerError,
}

func statusFromKind(kind domain.ErrKind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// StatusFor is the HTTP status WriteError would use for err.
func StatusFor(err error) int {
	var de *domain.Error
	if errors.As(err, &de) {
		return statusFromKind(de.Kind)
	}
	return http.StatusInternalServerError
}

// WriteError renders err as {"error": {...}}. Anything that is not a
// *domain.Error becomes a bare 500 so internals never reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	payload := ErrorPayload{
		Code:      "internal_error",
		Message:   "internal error",
		RequestID: RequestIDFromContext(r),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		payload.Code = de.Code
		payload.Message = de.Message
		payload.Meta = de.Meta
	}

	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithCtx(r.Context()).Error().Err(err).
			Str("code", payload.Code).
			Str("path", r.URL.Path).
			Msg("request_failed")
	}

	WriteJSON(w, status, ErrorBody{Error: payload})
}
