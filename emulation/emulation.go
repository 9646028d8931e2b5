// Package emulation defines the Profile type: the immutable, clonable
// composite of TLS options, HTTP/2 fingerprint, and default headers that
// every request carries (spec.md §3, §4.4, §4.5). Concrete browser
// profiles live in the profiles subpackage.
package emulation

import (
	"github.com/lunarforge/chromenet/h2fingerprint"
	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/tlsconfig"
)

// Profile is a versioned browser emulation profile: the triple
// (TlsOptions, H2Options, Headers) spec.md §2 calls out as the emulation
// profile's output, here concretized for this implementation's TLS/H2
// libraries. Profiles are immutable after construction and cheap to pass
// by value (everything but the default-header builder is a small value or
// a shared slice).
type Profile struct {
	// Name identifies the profile, e.g. "chrome-120", used as part of the
	// pool's group key so distinct profiles to the same origin never
	// share a connection.
	Name string

	TLS  tlsconfig.Spec
	H2   h2fingerprint.Fingerprint

	// DefaultHeaders returns a fresh Header populated with this profile's
	// default request headers, in profile-declared order. It is a func,
	// not a value, so every request gets an independent Header it can
	// safely mutate (e.g. via MergeOverride) without affecting the
	// profile or other in-flight requests.
	DefaultHeaders func() *header.Header

	// UserAgent is the value this profile's DefaultHeaders sets for the
	// User-Agent header, exposed separately since some callers need it
	// outside of a header build (e.g. to seed WebSocket or CONNECT
	// requests that bypass the normal header pipeline).
	UserAgent string
}

// Clone returns a value copy of p. Profile's fields are either small
// values or references to shared, logically-immutable data (header
// builder funcs, ALPN slices), so Clone is a plain struct copy: cheap, as
// spec.md §3 requires ("emulation profiles are cheap to clone").
func (p Profile) Clone() Profile { return p }
