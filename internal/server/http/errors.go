package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/connectpro/internal/errs"
)

// Error kinds on the wire.
const (
	KindNotFound         = "not_found"
	KindForbidden        = "forbidden"
	KindValidation       = "validation_failed"
	KindInvalidArgument  = "invalid_argument"
	KindUnauthenticated  = "unauthenticated"
	KindRateLimited      = "rate_limited"
	KindConflict         = "conflict"
	KindUpstreamFailure  = "upstream_failure"
	KindInternal         = "internal"
	internalErrorMessage = "internal error"
)

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// classify maps an error to status and envelope. Internal causes never reach the client.
func classify(err error) (int, ErrorDetail) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ErrorDetail{Kind: KindValidation, Message: "validation failed", Fields: ve.Fields}
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity, ErrorDetail{Kind: KindValidation, Message: err.Error()}
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Kind: KindNotFound, Message: "not found"}
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, ErrorDetail{Kind: KindForbidden, Message: "forbidden"}
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorDetail{Kind: KindInvalidArgument, Message: err.Error()}
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorDetail{Kind: KindUnauthenticated, Message: "unauthenticated"}
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorDetail{Kind: KindRateLimited, Message: "too many requests, try again later"}
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, ErrorDetail{Kind: KindConflict, Message: "already exists"}
	case errors.Is(err, errs.ErrUpstream):
		return http.StatusBadGateway, ErrorDetail{Kind: KindUpstreamFailure, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorDetail{Kind: KindInternal, Message: internalErrorMessage}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, d := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorBody{Error: d})
}

func writeDetail(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: msg}})
}
