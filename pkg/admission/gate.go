package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission/store"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/metrics"
)

// DefaultMaxAttempts bounds conflict retries per decision.
const DefaultMaxAttempts = 5

// Gate decides admission for callers against a shared counter store. Each
// decision is one conditional read-modify-write per caller: on a version
// conflict the gate re-reads and reapplies the procedure, so N simultaneous
// first requests from one caller admit exactly one.
type Gate struct {
	store       store.CounterStore
	limits      Limits
	maxAttempts int
	now         func() time.Time
}

// NewGate creates a gate over the given store and limits. maxAttempts <= 0
// selects DefaultMaxAttempts.
func NewGate(s store.CounterStore, limits Limits, maxAttempts int) *Gate {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Gate{
		store:       s,
		limits:      limits,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Limits returns the gate's configured limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

// Decide runs the admission procedure for one caller and persists the
// resulting counter state. Rejections that mutate nothing are decided
// without a write.
func (g *Gate) Decide(ctx context.Context, identity string) (Decision, error) {
	if identity == "" {
		return Decision{}, fmt.Errorf("%w: empty identity", store.ErrInvalidInput)
	}

	now := g.now()
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		rec, err := g.store.Get(ctx, identity)
		fresh := false
		switch {
		case errors.Is(err, store.ErrNotFound):
			rec = &store.CounterRecord{Identity: identity}
			fresh = true
		case err != nil:
			return Decision{}, fmt.Errorf("failed to read counter record: %w", err)
		}

		dec := Evaluate(*rec, now, g.limits)
		if !dec.Mutated {
			metrics.RecordAdmissionDecision(string(dec.Outcome))
			return dec, nil
		}

		if fresh {
			err = g.store.Create(ctx, &dec.Record)
		} else {
			err = g.store.Update(ctx, &dec.Record)
		}
		switch {
		case err == nil:
			metrics.RecordAdmissionDecision(string(dec.Outcome))
			return dec, nil
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrAlreadyExists):
			metrics.RecordStoreConflict()
			logging.Debugf("Counter record conflict for %s (attempt %d/%d), retrying",
				identity, attempt, g.maxAttempts)
		default:
			return Decision{}, fmt.Errorf("failed to persist counter record: %w", err)
		}
	}

	metrics.RecordStoreRetriesExhausted()
	return Decision{}, fmt.Errorf("%w: gave up on %s after %d attempts",
		store.ErrConflict, identity, g.maxAttempts)
}
