package connectors

import (
	"errors"
	"fmt"
	"time"
)

// ErrExecutionFailed: avatar не смог принять вызов (не путать с success=false в ответе).
var ErrExecutionFailed = errors.New("avatar execution failed")

// ThrottleError: avatar просит повторить позже. ReliabilityWrapper ретраит только такие
// ошибки и ошибки транспорта.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
