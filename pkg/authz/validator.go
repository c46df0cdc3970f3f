// Package authz validates that an incoming request is allowed to reach
// the upstream completion API at all, before any quota accounting runs.
//
// Two validators are provided:
//
//   - OriginAllowlist checks the browser-declared origin (Origin header,
//     falling back to Referer) against a configured allowlist.
//   - EndpointKey compares a shared secret carried in a request header
//     against the configured value in constant time.
//
// Validators are composed into a Chain. Every validator in the chain must
// accept the request; the first rejection wins and the request is refused.
//
// Adding a new validator:
//  1. Implement the Validator interface.
//  2. Append it to the chain constructed in cmd/main.go.
//  3. Gate it behind a config flag so deployments can opt out.
package authz

import (
	"errors"
	"fmt"

	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

// ErrUnauthorized is returned when a request fails validation. Callers
// should not expose the underlying reason to the client; the detail is
// logged server-side only.
var ErrUnauthorized = errors.New("unauthorized access")

// Request carries the identity material extracted from an HTTP request.
// It is deliberately decoupled from *http.Request so validators can be
// exercised in tests without building full requests.
type Request struct {
	// Origin is the raw Origin header value, possibly empty.
	Origin string
	// Referer is the raw Referer header value, used as a fallback when
	// the Origin header is absent.
	Referer string
	// SecretToken is the shared-secret header value, possibly empty.
	SecretToken string
}

// Validator checks one aspect of a request's right to proceed.
type Validator interface {
	// Name returns a short identifier used in logs.
	Name() string

	// Validate returns nil when the request passes this check and an
	// error wrapping ErrUnauthorized when it does not.
	Validate(req Request) error
}

// Chain runs a sequence of validators. All must pass.
type Chain struct {
	validators []Validator
}

// NewChain builds a chain from the given validators. Nil entries are
// skipped so callers can pass conditionally-constructed validators
// directly.
func NewChain(validators ...Validator) *Chain {
	c := &Chain{}
	for _, v := range validators {
		if v != nil {
			c.validators = append(c.validators, v)
		}
	}
	return c
}

// Validate runs every validator in order and returns the first failure.
// A nil chain or an empty chain accepts everything.
func (c *Chain) Validate(req Request) error {
	if c == nil {
		return nil
	}
	for _, v := range c.validators {
		if err := v.Validate(req); err != nil {
			logging.Infof("Request rejected by %s validator: %v", v.Name(), err)
			return err
		}
	}
	return nil
}

// ValidatorNames returns the names of the configured validators, for
// startup logging.
func (c *Chain) ValidatorNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.validators))
	for _, v := range c.validators {
		names = append(names, v.Name())
	}
	return names
}

// unauthorized wraps ErrUnauthorized with a server-side detail message.
func unauthorized(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
