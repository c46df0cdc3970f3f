// Package audit records structured gateway events: request arrival,
// admission decisions, and upstream calls. It is observation only — a
// disabled auditor changes log volume and nothing else, so no functional
// path may ever depend on it.
package audit

import (
	"time"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission/store"
	"github.com/gsbdarc/survey-chat-gateway/pkg/config"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

// Payload summaries are truncated so a long prompt cannot flood the log.
const maxPayloadChars = 500

// Auditor emits decision events through the logging package. The zero
// value and a nil *Auditor are both valid and record nothing.
type Auditor struct {
	enabled     bool
	logPayloads bool
}

// New builds an auditor from the audit configuration.
func New(cfg config.AuditConfig) *Auditor {
	return &Auditor{
		enabled:     cfg.Enabled,
		logPayloads: cfg.Enabled && cfg.LogPayloads,
	}
}

// RequestReceived records an inbound request before any decision is made.
func (a *Auditor) RequestReceived(requestID, identity, origin string) {
	if a == nil || !a.enabled {
		return
	}
	logging.LogEvent("request_received", map[string]interface{}{
		"request_id": requestID,
		"identity":   identity,
		"origin":     origin,
	})
}

// RequestRejected records a rejection and its reason.
func (a *Auditor) RequestRejected(requestID, identity, reason string) {
	if a == nil || !a.enabled {
		return
	}
	logging.LogEvent("request_rejected", map[string]interface{}{
		"request_id": requestID,
		"identity":   identity,
		"reason":     reason,
	})
}

// RequestAdmitted records an admission together with the caller's counter
// state after the decision.
func (a *Auditor) RequestAdmitted(requestID, identity string, rec store.CounterRecord) {
	if a == nil || !a.enabled {
		return
	}
	logging.LogEvent("request_admitted", map[string]interface{}{
		"request_id":        requestID,
		"identity":          identity,
		"total_calls":       rec.TotalCalls,
		"rate_limit_errors": rec.RateLimitErrors,
	})
}

// UpstreamCall records the outcome of one upstream completion call.
func (a *Auditor) UpstreamCall(requestID, model string, latency time.Duration, err error) {
	if a == nil || !a.enabled {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = err.Error()
	}
	logging.LogEvent("upstream_call", map[string]interface{}{
		"request_id": requestID,
		"model":      model,
		"latency_ms": latency.Milliseconds(),
		"outcome":    outcome,
	})
}

// Payloads records prompt and response summaries. Gated separately from
// the decision events because payloads may contain user content.
func (a *Auditor) Payloads(requestID, prompt, response string) {
	if a == nil || !a.logPayloads {
		return
	}
	logging.LogEvent("request_payloads", map[string]interface{}{
		"request_id": requestID,
		"prompt":     truncate(prompt),
		"response":   truncate(response),
	})
}

func truncate(s string) string {
	if len(s) <= maxPayloadChars {
		return s
	}
	return s[:maxPayloadChars] + "..."
}
