// Package identity derives the caller key that groups rate-limit and volume
// state. The key is an approximate correlation handle, not an authenticated
// principal: callers behind a shared NAT or proxy collapse onto one key,
// which is a documented limitation of address-based identity.
//
// The Resolver interface isolates the mapping so a deployment behind an
// authenticating proxy can swap in a header-based identity without touching
// admission logic.
package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/gsbdarc/survey-chat-gateway/pkg/headers"
)

// Unknown is returned when no identity can be derived from the request.
const Unknown = "unknown"

// Resolver maps an inbound request to the caller key used by the admission
// gate. Implementations must return a non-empty key for every request.
type Resolver interface {
	// Name returns a human-readable name for logging.
	Name() string

	// Resolve derives the caller key from the request.
	Resolve(r *http.Request) string
}

// AddressResolver derives the key from the caller's network address,
// preferring proxy-reported headers over the connection peer: the first
// X-Forwarded-For hop, then X-Real-Ip, then the remote address host.
type AddressResolver struct{}

// Name implements Resolver.
func (AddressResolver) Name() string { return "remote-address" }

// Resolve implements Resolver.
func (AddressResolver) Resolve(r *http.Request) string {
	if fwd := r.Header.Get(headers.ForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get(headers.RealIP)); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr had no port, use it as-is.
		host = r.RemoteAddr
	}
	if host = strings.TrimSpace(host); host != "" {
		return host
	}
	return Unknown
}

// HeaderResolver derives the key from a single trusted header, for
// deployments where an authenticating proxy asserts the caller identity.
type HeaderResolver struct {
	// Header is the name of the trusted identity header.
	Header string
}

// Name implements Resolver.
func (h HeaderResolver) Name() string { return "trusted-header" }

// Resolve implements Resolver.
func (h HeaderResolver) Resolve(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(h.Header)); id != "" {
		return id
	}
	return Unknown
}
