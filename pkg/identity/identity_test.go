package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gsbdarc/survey-chat-gateway/pkg/headers"
)

func TestAddressResolver_ForwardedForFirstHopWins(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set(headers.ForwardedFor, "203.0.113.7, 10.0.0.1, 10.0.0.2")
	r.Header.Set(headers.RealIP, "10.0.0.9")
	r.RemoteAddr = "10.0.0.1:54321"

	assert.Equal(t, "203.0.113.7", AddressResolver{}.Resolve(r))
}

func TestAddressResolver_ForwardedForWhitespaceTrimmed(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set(headers.ForwardedFor, "  203.0.113.7 , 10.0.0.1")

	assert.Equal(t, "203.0.113.7", AddressResolver{}.Resolve(r))
}

func TestAddressResolver_RealIPFallback(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set(headers.RealIP, "203.0.113.8")
	r.RemoteAddr = "10.0.0.1:54321"

	assert.Equal(t, "203.0.113.8", AddressResolver{}.Resolve(r))
}

func TestAddressResolver_RemoteAddrFallbackStripsPort(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.RemoteAddr = "203.0.113.9:54321"

	assert.Equal(t, "203.0.113.9", AddressResolver{}.Resolve(r))
}

func TestAddressResolver_RemoteAddrWithoutPort(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.RemoteAddr = "203.0.113.9"

	assert.Equal(t, "203.0.113.9", AddressResolver{}.Resolve(r))
}

func TestAddressResolver_NoAddressMaterial(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.RemoteAddr = ""

	assert.Equal(t, Unknown, AddressResolver{}.Resolve(r))
}

func TestHeaderResolver_TrustedHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)
	r.Header.Set("X-Caller-Id", "caller-42")

	resolver := HeaderResolver{Header: "X-Caller-Id"}
	assert.Equal(t, "caller-42", resolver.Resolve(r))
}

func TestHeaderResolver_MissingHeaderIsUnknown(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/chat", nil)

	resolver := HeaderResolver{Header: "X-Caller-Id"}
	assert.Equal(t, Unknown, resolver.Resolve(r))
}
