package authz

import "crypto/subtle"

// EndpointKey validates the shared secret callers present in the
// X-Survey-Token header. The comparison is constant-time so response
// latency does not leak how much of a guessed key matched.
type EndpointKey struct {
	key []byte
}

// NewEndpointKey builds the validator for the configured secret.
func NewEndpointKey(key string) *EndpointKey {
	return &EndpointKey{key: []byte(key)}
}

// Name implements Validator.
func (v *EndpointKey) Name() string { return "endpoint-key" }

// Validate implements Validator.
func (v *EndpointKey) Validate(req Request) error {
	if req.SecretToken == "" {
		return unauthorized("request carries no endpoint key")
	}
	if subtle.ConstantTimeCompare([]byte(req.SecretToken), v.key) != 1 {
		return unauthorized("endpoint key mismatch")
	}
	return nil
}
