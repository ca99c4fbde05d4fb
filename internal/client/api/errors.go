package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// ErrUnavailable reports that the server could not be reached at all.
var ErrUnavailable = errors.New("server unavailable")

// Error is a non-2xx response decoded from the server's error body.
type Error struct {
	Status    int      `json:"-"`
	Message   string   `json:"error"`
	Dangling  []string `json:"dangling,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Op        string   `json:"op,omitempty"`
	Restart   bool     `json:"restart,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Is lets callers match server errors against the shared sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case common.ErrValidation:
		return e.Status == http.StatusBadRequest
	case common.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case common.ErrForeignKey:
		return e.Status == http.StatusForbidden
	case common.ErrNotFound:
		return e.Status == http.StatusNotFound
	case common.ErrAlreadyExists:
		return e.Status == http.StatusConflict && len(e.Dangling) == 0
	case common.ErrDanglingSource:
		return e.Status == http.StatusConflict && len(e.Dangling) > 0
	case common.ErrInvalidPartSet:
		return e.Status == http.StatusUnprocessableEntity
	case common.ErrPartialFailure:
		return len(e.Failed) > 0
	case common.ErrStoreUnavailable:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}
