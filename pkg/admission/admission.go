// Package admission implements the per-caller admission decision: rate
// limiting, lifetime volume capping, and the error-budget suspension that
// escalates abusive bursts from temporary to permanent rejection.
//
// The decision procedure itself (Evaluate) is a pure function over one
// counter record; Gate executes it under the store's conditional-update
// primitive so concurrent requests from the same caller cannot double-spend
// quota.
package admission

import (
	"time"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission/store"
)

// Outcome classifies one admission decision.
type Outcome string

const (
	// OutcomeAdmitted allows the request to proceed upstream.
	OutcomeAdmitted Outcome = "admitted"

	// OutcomeTooFast rejects a request arriving before the rate window
	// elapsed. Transient: the caller may retry after waiting.
	OutcomeTooFast Outcome = "too_fast"

	// OutcomeRateLimitExceeded rejects a caller whose accumulated
	// too-fast rejections reached the error budget. Effectively
	// permanent until the counters are reset externally.
	OutcomeRateLimitExceeded Outcome = "rate_limit_exceeded"

	// OutcomeVolumeCapExceeded rejects a caller whose lifetime accepted
	// calls reached the volume cap. Permanent until the cap is raised.
	OutcomeVolumeCapExceeded Outcome = "volume_cap_exceeded"
)

// Limits carries the admission thresholds. For every field, zero or a
// negative value disables that check.
type Limits struct {
	// RateLimitSeconds is the minimum spacing between accepted calls.
	// Spacing exactly equal to the limit is accepted.
	RateLimitSeconds float64

	// MaxRateLimitErrors is the error budget before suspension.
	MaxRateLimitErrors int64

	// MaxCalls is the lifetime cap on accepted calls.
	MaxCalls int64
}

// Decision is the result of one admission evaluation.
type Decision struct {
	// Outcome classifies the decision.
	Outcome Outcome

	// Record is the counter state after the decision.
	Record store.CounterRecord

	// RetryAfter is how long a too-fast caller must wait before the
	// rate check can pass again. Zero for every other outcome.
	RetryAfter time.Duration

	// Mutated reports whether Record differs from the input and must be
	// persisted.
	Mutated bool
}

const dayFormat = "2006-01-02"

// Evaluate runs the decision procedure against one caller record at the
// given instant and returns the decision plus the record state to persist.
// It never modifies its input.
//
// The checks run in a fixed order: error-budget suspension, volume cap,
// rate spacing. Suspension and cap rejections leave the record untouched.
// A too-fast rejection increments RateLimitErrors only; LastCallAt keeps
// pointing at the previous accepted call, so hammering the endpoint never
// pushes the window forward.
func Evaluate(rec store.CounterRecord, now time.Time, limits Limits) Decision {
	if limits.MaxRateLimitErrors > 0 && rec.RateLimitErrors >= limits.MaxRateLimitErrors {
		return Decision{Outcome: OutcomeRateLimitExceeded, Record: rec}
	}

	if limits.MaxCalls > 0 && rec.TotalCalls >= limits.MaxCalls {
		return Decision{Outcome: OutcomeVolumeCapExceeded, Record: rec}
	}

	if wait := remainingWait(rec.LastCallAt, now, limits.RateLimitSeconds); wait > 0 {
		rec.RateLimitErrors++
		return Decision{Outcome: OutcomeTooFast, Record: rec, RetryAfter: wait, Mutated: true}
	}

	rec.LastCallAt = now
	rec.TotalCalls++
	rec.Days = append([]string(nil), rec.Days...)
	rec.MarkDay(now.UTC().Format(dayFormat))
	return Decision{Outcome: OutcomeAdmitted, Record: rec, Mutated: true}
}

// remainingWait returns how much of the rate window is left, or zero when
// the request may pass: the window is disabled, the caller was never
// admitted, or at least the full window elapsed (equality passes).
func remainingWait(lastCallAt, now time.Time, rateLimitSeconds float64) time.Duration {
	if rateLimitSeconds <= 0 || lastCallAt.IsZero() {
		return 0
	}

	window := time.Duration(rateLimitSeconds * float64(time.Second))
	elapsed := now.Sub(lastCallAt)
	if elapsed >= window {
		return 0
	}
	return window - elapsed
}
