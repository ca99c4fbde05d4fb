package common

import (
	"fmt"
	"strings"
)

// PartialFailureError reports a bulk operation that completed for some but
// not all members. Failed holds virtual paths so that callers can retry just
// those.
type PartialFailureError struct {
	Op     string
	Failed []string
	Err    error
}

func (e *PartialFailureError) Error() string {
	msg := fmt.Sprintf("%s: %d item(s) failed: %s", e.Op, len(e.Failed), strings.Join(e.Failed, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

// DanglingSourceError is returned by move/rename when every copy succeeded
// but some originals could not be deleted. Sources exist at both locations;
// re-deleting them is safe.
type DanglingSourceError struct {
	Sources []string
	Err     error
}

func (e *DanglingSourceError) Error() string {
	msg := fmt.Sprintf("copied but not removed: %s", strings.Join(e.Sources, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DanglingSourceError) Unwrap() error { return e.Err }

func (e *DanglingSourceError) Is(target error) bool { return target == ErrDanglingSource }
