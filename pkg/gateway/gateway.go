// Package gateway runs the per-request admission pipeline: kill switch,
// origin and secret validation, the admission gate, and finally the
// upstream forwarder. Every rejection is decided before the upstream call
// so upstream cost is never incurred for a request that will be refused,
// and the kill switch is checked before everything so disabling the
// service touches no persistent state at all.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission"
	"github.com/gsbdarc/survey-chat-gateway/pkg/audit"
	"github.com/gsbdarc/survey-chat-gateway/pkg/authz"
	"github.com/gsbdarc/survey-chat-gateway/pkg/upstream"
)

// Caller is the identity material extracted from one inbound request.
type Caller struct {
	// RequestID correlates log and audit lines for this request.
	RequestID string

	// Identity is the admission key resolved for the caller.
	Identity string

	// Authz carries the header material the validators inspect.
	Authz authz.Request
}

// Forwarder is the upstream dependency of the pipeline. Satisfied by
// *upstream.Forwarder; narrowed to an interface so tests can substitute a
// fake without a network listener.
type Forwarder interface {
	Complete(ctx context.Context, req upstream.CompletionRequest) (string, error)
}

// Admitter is the admission dependency of the pipeline, satisfied by
// *admission.Gate.
type Admitter interface {
	Decide(ctx context.Context, identity string) (admission.Decision, error)
}

// Pipeline wires the request stages together. All fields are read-only
// after construction, so one pipeline serves arbitrarily many concurrent
// requests.
type Pipeline struct {
	serviceEnabled bool
	validators     *authz.Chain
	gate           Admitter
	forwarder      Forwarder
	auditor        *audit.Auditor
}

// NewPipeline assembles the pipeline. A nil auditor disables auditing.
func NewPipeline(serviceEnabled bool, validators *authz.Chain, gate Admitter, forwarder Forwarder, auditor *audit.Auditor) *Pipeline {
	return &Pipeline{
		serviceEnabled: serviceEnabled,
		validators:     validators,
		gate:           gate,
		forwarder:      forwarder,
		auditor:        auditor,
	}
}

// Handle runs one request through the pipeline and returns the generated
// text. Every error return is classifiable with errors.Is against the
// package sentinels plus authz.ErrUnauthorized and upstream.ErrUpstream.
func (p *Pipeline) Handle(ctx context.Context, caller Caller, req upstream.CompletionRequest) (string, error) {
	p.auditor.RequestReceived(caller.RequestID, caller.Identity, caller.Authz.Origin)

	if !p.serviceEnabled {
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, "service_disabled")
		return "", ErrServiceDisabled
	}

	if err := p.validators.Validate(caller.Authz); err != nil {
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, "unauthorized")
		return "", err
	}

	dec, err := p.gate.Decide(ctx, caller.Identity)
	if err != nil {
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, "internal_error")
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	switch dec.Outcome {
	case admission.OutcomeAdmitted:
		p.auditor.RequestAdmitted(caller.RequestID, caller.Identity, dec.Record)
	case admission.OutcomeTooFast:
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, string(dec.Outcome))
		return "", &TooFastError{RetryAfter: dec.RetryAfter}
	case admission.OutcomeRateLimitExceeded:
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, string(dec.Outcome))
		return "", ErrRateLimitExceeded
	case admission.OutcomeVolumeCapExceeded:
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, string(dec.Outcome))
		return "", ErrVolumeCapExceeded
	default:
		p.auditor.RequestRejected(caller.RequestID, caller.Identity, "internal_error")
		return "", fmt.Errorf("%w: unexpected admission outcome %q", ErrInternal, dec.Outcome)
	}

	start := time.Now()
	text, err := p.forwarder.Complete(ctx, req)
	p.auditor.UpstreamCall(caller.RequestID, req.Model, time.Since(start), err)
	if err != nil {
		return "", err
	}

	p.auditor.Payloads(caller.RequestID, req.Prompt, text)
	return text, nil
}
