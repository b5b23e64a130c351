package apperr

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for the alert engine. Handlers map these onto HTTP
// status codes; services wrap them with context via fmt.Errorf("%w", ...).
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrRateLimitExceeded = errors.New("daily alert limit reached")
	ErrAlreadyResponded  = errors.New("alert already has a response")
	ErrNetwork           = errors.New("network unavailable")
	ErrPersistence       = errors.New("storage operation failed")
)

func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PartialFailure reports a fan-out insert that landed for some recipients
// and failed for others. Succeeded holds the IDs of the created alerts,
// Failed maps each receiver user ID to its insert error.
type PartialFailure struct {
	Succeeded []uint
	Failed    map[uint]error
}

func (e *PartialFailure) Error() string {
	receivers := make([]int, 0, len(e.Failed))
	for id := range e.Failed {
		receivers = append(receivers, int(id))
	}
	sort.Ints(receivers)
	return fmt.Sprintf("alert fan-out partially failed: %d created, %d failed (receivers %v)",
		len(e.Succeeded), len(e.Failed), receivers)
}

// Unwrap lets errors.Is(err, ErrPersistence) match a partial failure.
func (e *PartialFailure) Unwrap() error {
	return ErrPersistence
}
