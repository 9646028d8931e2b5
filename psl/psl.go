// Package psl answers public-suffix questions for the cookie jar and TLS
// connect path: whether a domain is itself a public suffix, and what a
// host's registrable domain (eTLD+1) is.
//
// It is a thin wrapper over golang.org/x/net/publicsuffix, the same list
// Chromium and Firefox ship, so the supercookie protection this package
// backs matches real-browser behavior rather than an ad-hoc suffix check.
package psl

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// IsPublicSuffix reports whether domain (already lowercased, no leading
// dot) is itself a public suffix, such as "com" or "co.uk". A cookie's
// explicit Domain attribute must never be accepted when this is true.
func IsPublicSuffix(domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	if domain == "" {
		return true
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// EffectiveTLDPlusOne errors on a domain with no registrable +1
		// label above it — which is exactly the "com"/"co.uk" case this
		// function exists to catch. Fall through to a direct suffix-list
		// lookup instead of treating the error as "not a public suffix".
		suffix, _ := publicsuffix.PublicSuffix(domain)
		return suffix == domain
	}
	// domain has a registrable label, so it is the eTLD+1 itself or lies
	// below one: either way it is not a public suffix.
	return false
}

// RegistrableDomain returns the registrable domain (eTLD+1) for host, e.g.
// "mail.google.com" -> "google.com". If host is itself a public suffix or
// has no registrable label, RegistrableDomain returns host unchanged and
// ok is false.
func RegistrableDomain(host string) (domain string, ok bool) {
	host = strings.TrimPrefix(strings.ToLower(host), ".")
	eTLDPlus1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, false
	}
	return eTLDPlus1, true
}

// ParentLabels returns host and each of its parent domain labels down to
// and including its effective TLD+1, in order from most specific to
// least specific. For "a.b.example.com" it returns
// ["a.b.example.com", "b.example.com", "example.com"].
//
// Used by the cookie jar (spec §4.6 step 1) and the HSTS store (spec §3)
// to enumerate the candidate domain keys for a request host.
func ParentLabels(host string) []string {
	host = strings.TrimPrefix(strings.ToLower(host), ".")
	registrable, ok := RegistrableDomain(host)
	if !ok {
		return []string{host}
	}

	var labels []string
	cur := host
	for {
		labels = append(labels, cur)
		if cur == registrable {
			break
		}
		idx := strings.IndexByte(cur, '.')
		if idx < 0 {
			break
		}
		cur = cur[idx+1:]
	}
	return labels
}
