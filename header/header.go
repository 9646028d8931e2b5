// Package header provides an order- and case-preserving header container,
// the wire-level building block the request state machine (spec.md §4.7)
// uses to reproduce a browser's exact header sequence and casing.
package header

import (
	"net/http"
)

// entry stores a single header key/value pair with its original casing.
type entry struct {
	key   string
	value string
}

// Header is a drop-in companion to http.Header that preserves the exact
// capitalization and insertion order of HTTP headers.
//
// Unlike http.Header (a map[string][]string and therefore unordered),
// Header stores entries in a slice so iteration always returns them in
// insertion order. This matters for fingerprinting: servers profiling
// client behavior inspect both casing (e.g. "sec-ch-ua-platform" vs
// "Sec-Ch-Ua-Platform") and ordering of headers such as
// "accept-language", "sec-ch-ua-*", and "user-agent".
//
// Header is NOT safe for concurrent use without external synchronization.
// A request job builds its own Header before sending, then discards it, so
// no locking is required.
type Header struct {
	entries []entry
}

// New returns an empty Header.
func New() *Header { return &Header{} }

// Add appends key/value to the header list, preserving the exact casing of
// key. Multiple calls with the same key produce multiple entries
// (equivalent to http.Header.Add).
func (h *Header) Add(key, value string) {
	h.entries = append(h.entries, entry{key: key, value: value})
}

// Set replaces the first entry whose key matches key (case-insensitively)
// with the new value and removes any subsequent duplicates. If no entry
// with that key exists, Set behaves like Add.
//
// The canonical casing of the surviving entry is updated to key, so
// callers can use Set to change capitalization as well as value.
func (h *Header) Set(key, value string) {
	canonKey := http.CanonicalHeaderKey(key)
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canonKey {
			if !replaced {
				out = append(out, entry{key: key, value: value})
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry{key: key, value: value})
	}
	h.entries = out
}

// Del removes all entries whose key matches key (case-insensitively).
func (h *Header) Del(key string) {
	canonKey := http.CanonicalHeaderKey(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canonKey {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the value of the first entry whose key matches key
// (case-insensitively), or an empty string if no such entry exists.
func (h *Header) Get(key string) string {
	canonKey := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canonKey {
			return e.value
		}
	}
	return ""
}

// Has reports whether any entry matches key (case-insensitively).
func (h *Header) Has(key string) bool {
	canonKey := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canonKey {
			return true
		}
	}
	return false
}

// Len returns the number of header entries, including duplicates.
func (h *Header) Len() int { return len(h.entries) }

// Clone returns a deep copy of the receiver.
func (h *Header) Clone() *Header {
	c := &Header{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// Keys returns each distinct key in the order of its first occurrence,
// with its original casing.
func (h *Header) Keys() []string {
	seen := make(map[string]bool, len(h.entries))
	var out []string
	for _, e := range h.entries {
		canon := http.CanonicalHeaderKey(e.key)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, e.key)
	}
	return out
}

// MergeOverride merges other into h, implementing spec.md §4.7 step (c):
// "caller-supplied headers override same-name duplicates from (b)". A key
// already present in h takes other's value and other's key casing at the
// position of its first occurrence in h (later duplicates in h are
// dropped, as with Set); new keys from other are appended in other's
// order, after h's entries. A key that other carries more than once keeps
// only its last value.
func (h *Header) MergeOverride(other *Header) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		if h.Has(e.key) {
			h.Set(e.key, e.value)
			continue
		}
		h.Add(e.key, e.value)
	}
}

// ApplyToRequest writes every entry in h into req.Header, preserving exact
// key casing and insertion order by bypassing http.Header's canonical-key
// normalization and writing the raw key directly into the map. This works
// for both HTTP/1.1 (which writes headers as given) and the http2
// transport (which HPACK-encodes using the key string supplied).
//
// Any headers already present in req.Header are replaced, not merged.
func (h *Header) ApplyToRequest(req *http.Request) {
	req.Header = make(http.Header, len(h.entries))
	for _, e := range h.entries {
		req.Header[e.key] = append(req.Header[e.key], e.value)
	}
}

// ToHTTPHeader converts h to a standard http.Header map. Insertion order
// is not preserved (maps are unordered) but exact key casing is, since the
// raw key is used as the map key rather than its canonical form.
func (h *Header) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		out[e.key] = append(out[e.key], e.value)
	}
	return out
}
