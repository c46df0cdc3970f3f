package authz

import (
	"net/url"
	"strings"
)

// OriginAllowlist validates the browser-declared origin of a request
// against a fixed scheme+host allowlist. Matching is case-sensitive and
// exact; entries and request values are compared after trimming whitespace
// and trailing slashes.
type OriginAllowlist struct {
	allowed map[string]struct{}
}

// NewOriginAllowlist builds the validator from the configured origins.
func NewOriginAllowlist(origins []string) *OriginAllowlist {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if n := canonicalOrigin(o); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &OriginAllowlist{allowed: allowed}
}

// Name implements Validator.
func (v *OriginAllowlist) Name() string { return "origin-allowlist" }

// Validate implements Validator. The Origin header is authoritative; when
// the browser omitted it (same-origin GET-initiated fetches, older
// browsers), the Referer's scheme+host stands in.
func (v *OriginAllowlist) Validate(req Request) error {
	origin := canonicalOrigin(req.Origin)
	if origin == "" {
		origin = refererOrigin(req.Referer)
	}
	if origin == "" {
		return unauthorized("request declares no origin")
	}
	if _, ok := v.allowed[origin]; !ok {
		return unauthorized("origin %q is not in the allowlist", origin)
	}
	return nil
}

// canonicalOrigin trims surrounding whitespace and trailing slashes so
// "https://a.example/" and "https://a.example" compare equal. Matching
// stays case-sensitive.
func canonicalOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

// refererOrigin reduces a Referer URL to its scheme+host origin, or ""
// when the value does not parse as an absolute URL.
func refererOrigin(referer string) string {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
