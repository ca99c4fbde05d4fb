package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/keys"
)

type errorResponse struct {
	Error string `json:"error"`
}

type danglingResponse struct {
	Error    string   `json:"error"`
	Dangling []string `json:"dangling"`
	Retry    string   `json:"retry"`
}

type partialFailureResponse struct {
	Error  string   `json:"error"`
	Op     string   `json:"op"`
	Failed []string `json:"failed"`
}

type restartResponse struct {
	Error   string `json:"error"`
	Restart bool   `json:"restart"`
}

type retryableResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a service error to a status code and body. Unknown errors
// are logged and reported as a generic 500. Object keys never reach the body;
// the full error text stays in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorToResponse(err, userIDFromContext(r.Context()))
	args := []any{"request_id", requestIDFromContext(r.Context()), "user", userIDFromContext(r.Context()), "error", err}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", args...)
	} else if !errors.Is(err, common.ErrForeignKey) {
		s.logger.Debug(r.Context(), "request rejected", args...)
	}
	writeJSON(w, status, body)
}

// publicMessage is err's text with the caller's keys shown as virtual paths,
// or fallback when the text cannot be made safe.
func publicMessage(err error, userID, fallback string) string {
	if msg, ok := keys.Redact(userID, err.Error()); ok {
		return msg
	}
	return fallback
}

func errorToResponse(err error, userID string) (int, any) {
	text := func(fallback string) string { return publicMessage(err, userID, fallback) }

	var (
		dangling *common.DanglingSourceError
		partial  *common.PartialFailureError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.Is(err, common.ErrForeignKey):
		return http.StatusForbidden, errorResponse{Error: "forbidden"}
	case errors.As(err, &dangling):
		return http.StatusConflict, danglingResponse{Error: text("copied but not removed"), Dangling: dangling.Sources, Retry: "delete"}
	case errors.As(err, &partial):
		return http.StatusInternalServerError, partialFailureResponse{Error: text(partial.Op + " incomplete"), Op: partial.Op, Failed: partial.Failed}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"}
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidPath):
		return http.StatusBadRequest, errorResponse{Error: text("invalid request")}
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, errorResponse{Error: "token expired"}
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrEmptyOrMissingFolder):
		return http.StatusNotFound, errorResponse{Error: text("not found")}
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{Error: text("already exists")}
	case errors.Is(err, common.ErrInvalidPartSet):
		return http.StatusUnprocessableEntity, restartResponse{Error: text("invalid part set"), Restart: true}
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, retryableResponse{Error: "object store unavailable", Retryable: true}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}
