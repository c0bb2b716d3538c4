// Package origin enforces the trust boundary between channel endpoints.
//
// An origin is the scheme + host [+ port] identity a message sender declares.
// The hub dispatcher validates every inbound message against its expected
// origin before touching the backend; the client channel pins the origin it
// derives from the remote address at construction and ignores messages from
// anyone else.
package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// Wildcard accepts messages from any origin. Explicitly insecure: only use it
// when both endpoints are under the same operator's control.
const Wildcard = "*"

// Validate reports whether an incoming origin is acceptable for the expected
// one. A wildcard expected origin accepts anything; otherwise the comparison
// is strict string equality — no suffix matching, no scheme upgrades.
func Validate(incoming, expected string) bool {
	if expected == Wildcard {
		return true
	}
	return incoming == expected
}

// FromAddress derives the pinned origin from a transport remote address,
// e.g. "wss://hub.example:8443/channel" → "wss://hub.example:8443".
//
// Derived once at channel setup and immutable afterwards: every outbound
// message is addressed to it, every inbound message is filtered by it.
func FromAddress(remoteAddress string) (string, error) {
	u, err := url.Parse(remoteAddress)
	if err != nil {
		return "", fmt.Errorf("invalid remote address %q: %w", remoteAddress, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("remote address %q has no scheme or host", remoteAddress)
	}
	return u.Scheme + "://" + strings.ToLower(u.Host), nil
}
