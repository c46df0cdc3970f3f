// Package headers centralizes the HTTP header names the gateway reads and
// writes, so handlers and validators never disagree on spelling.
package headers

const (
	// Origin is the browser-declared origin of a cross-site request.
	Origin = "Origin"

	// Referer is the browser-declared referring page, used as an origin
	// fallback when the Origin header is absent.
	Referer = "Referer"

	// SurveyToken carries the optional shared endpoint secret issued to
	// the embedding survey page.
	SurveyToken = "X-Survey-Token"

	// ForwardedFor carries the proxy-reported client address chain.
	ForwardedFor = "X-Forwarded-For"

	// RealIP carries the proxy-reported client address.
	RealIP = "X-Real-Ip"

	// RequestID echoes the per-request correlation ID to the caller.
	RequestID = "X-Request-Id"

	// RetryAfter tells a rate-limited caller how long to wait, in seconds.
	RetryAfter = "Retry-After"
)
