package admission

import (
	"testing"
	"time"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission/store"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func limits(rate float64, maxErrors, maxCalls int64) Limits {
	return Limits{
		RateLimitSeconds:   rate,
		MaxRateLimitErrors: maxErrors,
		MaxCalls:           maxCalls,
	}
}

// =============================================================================
// Rate spacing
// =============================================================================

func TestEvaluate_FirstCallAlwaysAccepted(t *testing.T) {
	dec := Evaluate(store.CounterRecord{Identity: "1.2.3.4"}, baseTime, limits(1, 50, 1000))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("expected admitted, got %s", dec.Outcome)
	}
	if !dec.Mutated {
		t.Error("acceptance must mark the record for persistence")
	}
	if !dec.Record.LastCallAt.Equal(baseTime) {
		t.Errorf("LastCallAt = %v, want %v", dec.Record.LastCallAt, baseTime)
	}
	if dec.Record.TotalCalls != 1 {
		t.Errorf("TotalCalls = %d, want 1", dec.Record.TotalCalls)
	}
	if dec.Record.RateLimitErrors != 0 {
		t.Errorf("RateLimitErrors = %d, want 0", dec.Record.RateLimitErrors)
	}
}

func TestEvaluate_TooFastRejectsAndCountsError(t *testing.T) {
	first := Evaluate(store.CounterRecord{Identity: "1.2.3.4"}, baseTime, limits(1, 50, 1000))
	if first.Outcome != OutcomeAdmitted {
		t.Fatalf("first call: expected admitted, got %s", first.Outcome)
	}

	second := Evaluate(first.Record, baseTime.Add(100*time.Millisecond), limits(1, 50, 1000))

	if second.Outcome != OutcomeTooFast {
		t.Fatalf("expected too_fast, got %s", second.Outcome)
	}
	if second.Record.RateLimitErrors != first.Record.RateLimitErrors+1 {
		t.Errorf("RateLimitErrors = %d, want exactly one increment", second.Record.RateLimitErrors)
	}
	if !second.Record.LastCallAt.Equal(first.Record.LastCallAt) {
		t.Error("rejection must not move LastCallAt")
	}
	if second.Record.TotalCalls != first.Record.TotalCalls {
		t.Error("rejection must not count as an accepted call")
	}
	if want := 900 * time.Millisecond; second.RetryAfter != want {
		t.Errorf("RetryAfter = %v, want %v", second.RetryAfter, want)
	}
}

func TestEvaluate_ExactBoundaryAccepts(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", LastCallAt: baseTime, TotalCalls: 1}

	dec := Evaluate(rec, baseTime.Add(time.Second), limits(1, 50, 1000))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("elapsed == window must accept, got %s", dec.Outcome)
	}
}

func TestEvaluate_ZeroRateLimitDisablesSpacingCheck(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4"}
	now := baseTime
	for i := 0; i < 10; i++ {
		dec := Evaluate(rec, now, limits(0, 50, 1000))
		if dec.Outcome != OutcomeAdmitted {
			t.Fatalf("call %d: expected admitted with disabled rate limit, got %s", i+1, dec.Outcome)
		}
		rec = dec.Record
	}
	if rec.TotalCalls != 10 {
		t.Errorf("TotalCalls = %d, want 10", rec.TotalCalls)
	}
}

func TestEvaluate_NegativeRateLimitDisablesSpacingCheck(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", LastCallAt: baseTime, TotalCalls: 1}

	dec := Evaluate(rec, baseTime, limits(-1, 50, 1000))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("negative rate limit must disable the check, got %s", dec.Outcome)
	}
}

// =============================================================================
// Error budget suspension
// =============================================================================

func TestEvaluate_ErrorBudgetEscalatesToPermanentRejection(t *testing.T) {
	lims := limits(1, 3, 1000)

	dec := Evaluate(store.CounterRecord{Identity: "1.2.3.4"}, baseTime, lims)
	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("seed call: expected admitted, got %s", dec.Outcome)
	}
	rec := dec.Record

	// Three too-fast attempts exhaust the budget.
	for i := 0; i < 3; i++ {
		dec = Evaluate(rec, baseTime.Add(10*time.Millisecond), lims)
		if dec.Outcome != OutcomeTooFast {
			t.Fatalf("burst attempt %d: expected too_fast, got %s", i+1, dec.Outcome)
		}
		rec = dec.Record
	}

	// The 4th attempt is suspended even after waiting out the interval.
	dec = Evaluate(rec, baseTime.Add(time.Hour), lims)
	if dec.Outcome != OutcomeRateLimitExceeded {
		t.Fatalf("expected rate_limit_exceeded after budget exhausted, got %s", dec.Outcome)
	}
	if dec.Mutated {
		t.Error("suspension must not modify the record")
	}
}

func TestEvaluate_SuspensionDoesNotTouchLastCallAt(t *testing.T) {
	rec := store.CounterRecord{
		Identity:        "1.2.3.4",
		LastCallAt:      baseTime,
		TotalCalls:      5,
		RateLimitErrors: 50,
	}

	dec := Evaluate(rec, baseTime.Add(time.Hour), limits(1, 50, 1000))

	if dec.Outcome != OutcomeRateLimitExceeded {
		t.Fatalf("expected rate_limit_exceeded, got %s", dec.Outcome)
	}
	if !dec.Record.LastCallAt.Equal(baseTime) {
		t.Error("suspension must not move LastCallAt")
	}
}

func TestEvaluate_ZeroErrorBudgetMeansUnlimited(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", RateLimitErrors: 1 << 20}

	dec := Evaluate(rec, baseTime, limits(1, 0, 1000))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("zero budget must disable suspension, got %s", dec.Outcome)
	}
}

func TestEvaluate_NegativeErrorBudgetMeansUnlimited(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", RateLimitErrors: 1 << 20}

	dec := Evaluate(rec, baseTime, limits(1, -1, 1000))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("negative budget must disable suspension, got %s", dec.Outcome)
	}
}

// =============================================================================
// Volume cap
// =============================================================================

func TestEvaluate_VolumeCapRejectsAfterLifetimeLimit(t *testing.T) {
	lims := limits(1, 50, 5)
	rec := store.CounterRecord{Identity: "1.2.3.4"}
	now := baseTime

	for i := 0; i < 5; i++ {
		dec := Evaluate(rec, now, lims)
		if dec.Outcome != OutcomeAdmitted {
			t.Fatalf("call %d: expected admitted, got %s", i+1, dec.Outcome)
		}
		rec = dec.Record
		now = now.Add(2 * time.Second)
	}

	// The 6th properly-spaced call hits the cap regardless of elapsed time.
	dec := Evaluate(rec, now.Add(24*time.Hour), lims)
	if dec.Outcome != OutcomeVolumeCapExceeded {
		t.Fatalf("expected volume_cap_exceeded, got %s", dec.Outcome)
	}
	if dec.Mutated {
		t.Error("volume-cap rejection must not modify the record")
	}
}

func TestEvaluate_ErrorBudgetCheckedBeforeVolumeCap(t *testing.T) {
	rec := store.CounterRecord{
		Identity:        "1.2.3.4",
		TotalCalls:      1000,
		RateLimitErrors: 50,
	}

	dec := Evaluate(rec, baseTime, limits(1, 50, 1000))

	if dec.Outcome != OutcomeRateLimitExceeded {
		t.Fatalf("suspension must win over the volume cap, got %s", dec.Outcome)
	}
}

func TestEvaluate_ZeroVolumeCapMeansUnlimited(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", TotalCalls: 1 << 30}

	dec := Evaluate(rec, baseTime, limits(0, 0, 0))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("zero cap must disable the volume check, got %s", dec.Outcome)
	}
}

// =============================================================================
// Invariants
// =============================================================================

func TestEvaluate_CountersNeverDecrease(t *testing.T) {
	lims := limits(1, 5, 8)
	rec := store.CounterRecord{Identity: "1.2.3.4"}
	now := baseTime

	// Alternate accepted and too-fast attempts; counters must be
	// non-decreasing across every decision.
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			now = now.Add(2 * time.Second)
		} else {
			now = now.Add(10 * time.Millisecond)
		}
		dec := Evaluate(rec, now, lims)
		if dec.Record.TotalCalls < rec.TotalCalls {
			t.Fatalf("step %d: TotalCalls decreased %d -> %d", i, rec.TotalCalls, dec.Record.TotalCalls)
		}
		if dec.Record.RateLimitErrors < rec.RateLimitErrors {
			t.Fatalf("step %d: RateLimitErrors decreased %d -> %d", i, rec.RateLimitErrors, dec.Record.RateLimitErrors)
		}
		if dec.Record.LastCallAt.Before(rec.LastCallAt) {
			t.Fatalf("step %d: LastCallAt moved backwards", i)
		}
		rec = dec.Record
	}
}

func TestEvaluate_RejectionPathsAreIdempotent(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", LastCallAt: baseTime, TotalCalls: 3}
	now := baseTime.Add(100 * time.Millisecond)
	lims := limits(1, 50, 1000)

	first := Evaluate(rec, now, lims)
	second := Evaluate(rec, now, lims)

	if first.Outcome != OutcomeTooFast || second.Outcome != OutcomeTooFast {
		t.Fatalf("outcomes = %s, %s; want too_fast twice", first.Outcome, second.Outcome)
	}
	if first.Record.RateLimitErrors != second.Record.RateLimitErrors {
		t.Error("replaying the same decision must produce the same record state")
	}
	if rec.RateLimitErrors != 0 {
		t.Error("Evaluate must not modify its input record")
	}
}

func TestEvaluate_DoesNotModifyInput(t *testing.T) {
	rec := store.CounterRecord{Identity: "1.2.3.4", Days: []string{"2025-05-31"}}

	dec := Evaluate(rec, baseTime, limits(1, 50, 1000))

	if dec.Outcome != OutcomeAdmitted {
		t.Fatalf("expected admitted, got %s", dec.Outcome)
	}
	if rec.TotalCalls != 0 || !rec.LastCallAt.IsZero() {
		t.Error("Evaluate must not mutate its input record")
	}
	if len(rec.Days) != 1 {
		t.Error("Evaluate must not mutate the input Days slice")
	}
	if len(dec.Record.Days) != 2 {
		t.Errorf("Days = %v, want the prior day plus today", dec.Record.Days)
	}
}

func TestEvaluate_AcceptanceMarksCurrentDayOnce(t *testing.T) {
	first := Evaluate(store.CounterRecord{Identity: "1.2.3.4"}, baseTime, limits(0, 0, 0))
	second := Evaluate(first.Record, baseTime.Add(time.Minute), limits(0, 0, 0))

	if len(second.Record.Days) != 1 {
		t.Fatalf("Days = %v, want a single entry for the day", second.Record.Days)
	}
	if second.Record.Days[0] != "2025-06-01" {
		t.Errorf("Days[0] = %q, want the UTC date of the call", second.Record.Days[0])
	}
}
