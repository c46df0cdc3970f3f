package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Rejection sentinels for the pipeline stages. The HTTP layer classifies
// with errors.Is and never forwards wrapped detail to callers.
var (
	// ErrServiceDisabled reports the kill switch is off. Nothing is
	// retryable until an operator re-enables the service.
	ErrServiceDisabled = errors.New("service disabled")

	// ErrTooFast reports a request inside the caller's rate window.
	// Transient: the caller may retry after RetryAfter.
	ErrTooFast = errors.New("rate limit: too fast")

	// ErrRateLimitExceeded reports a caller suspended for exhausting its
	// error budget. Permanent until counters are reset externally.
	ErrRateLimitExceeded = errors.New("rate limit errors exceeded")

	// ErrVolumeCapExceeded reports a caller at its lifetime volume cap.
	// Permanent until an operator raises the cap.
	ErrVolumeCapExceeded = errors.New("volume cap exceeded")

	// ErrInternal reports a gateway-side failure (store unreachable,
	// conflict retries exhausted). Callers see a generic message; the
	// wrapped detail is logged.
	ErrInternal = errors.New("internal gateway error")
)

// TooFastError is the concrete ErrTooFast rejection, carrying how long the
// caller must wait before the rate check can pass.
type TooFastError struct {
	RetryAfter time.Duration
}

func (e *TooFastError) Error() string {
	return fmt.Sprintf("rate limit: too fast, retry after %s", e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrTooFast) hold.
func (e *TooFastError) Unwrap() error { return ErrTooFast }
