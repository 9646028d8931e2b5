// Package security holds the HSTS and certificate-pin stores consulted
// during the connect job (spec.md §4.3 step 4, §3). Each store guards its
// whole map with one sync.RWMutex — writes are rare
// (learned from a response or configured once at startup), reads are on
// every connect, matching the teacher's own concurrency idiom of
// RWMutex-guarded maps (session/manager.go's SessionManager).
package security

import (
	"crypto/sha256"
	"crypto/x509"
	"strings"
	"sync"
	"time"

	"github.com/lunarforge/chromenet/neterror"
)

// HSTSEntry records one learned or preloaded Strict-Transport-Security
// policy.
type HSTSEntry struct {
	IncludeSubdomains bool
	Expires           time.Time // zero means preloaded / never expires
}

func (e HSTSEntry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && now.After(e.Expires)
}

// HSTSStore maps host -> HSTSEntry, consulted by looking up the exact
// host then progressively higher parent labels (spec.md §3).
type HSTSStore struct {
	mu      sync.RWMutex
	entries map[string]HSTSEntry
	now     func() time.Time
}

// NewHSTSStore creates an empty store.
func NewHSTSStore() *HSTSStore {
	return &HSTSStore{entries: make(map[string]HSTSEntry), now: time.Now}
}

// Set records (or overwrites) host's HSTS policy. maxAge <= 0 deletes the
// entry, mirroring "Strict-Transport-Security: max-age=0" semantics.
func (s *HSTSStore) Set(host string, includeSubdomains bool, maxAge time.Duration) {
	host = strings.ToLower(host)
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxAge <= 0 {
		delete(s.entries, host)
		return
	}
	s.entries[host] = HSTSEntry{IncludeSubdomains: includeSubdomains, Expires: s.now().Add(maxAge)}
}

// Preload installs host as a permanent (non-expiring) HSTS entry, for
// seeding a browser-style preload list.
func (s *HSTSStore) Preload(host string, includeSubdomains bool) {
	host = strings.ToLower(host)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[host] = HSTSEntry{IncludeSubdomains: includeSubdomains}
}

// ShouldUpgrade reports whether a plaintext request to host should be
// rewritten to https, per spec.md §4.3's HSTS rewrite rule: the host
// itself matches, or some parent label matches with IncludeSubdomains set.
func (s *HSTSStore) ShouldUpgrade(host string) bool {
	host = strings.ToLower(host)
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[host]; ok && !e.expired(now) {
		return true
	}
	for _, parent := range parentDomains(host) {
		if e, ok := s.entries[parent]; ok && !e.expired(now) && e.IncludeSubdomains {
			return true
		}
	}
	return false
}

func parentDomains(host string) []string {
	var out []string
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return out
		}
		host = host[idx+1:]
		out = append(out, host)
	}
}

// PinSet is a host's configured certificate pins: a set of SPKI SHA-256
// digests, an optional subdomain scope, and an expiry after which the
// pin set fails open (spec.md §3: "Expired pin sets fail open").
type PinSet struct {
	IncludeSubdomains bool
	Pins              map[[32]byte]bool
	Expires           time.Time
}

func (p PinSet) expired(now time.Time) bool {
	return !p.Expires.IsZero() && now.After(p.Expires)
}

// PinStore maps host -> PinSet.
type PinStore struct {
	mu      sync.RWMutex
	entries map[string]PinSet
	now     func() time.Time
}

// NewPinStore creates an empty store.
func NewPinStore() *PinStore {
	return &PinStore{entries: make(map[string]PinSet), now: time.Now}
}

// Set installs host's pin set, replacing any prior entry.
func (s *PinStore) Set(host string, includeSubdomains bool, pins [][32]byte, expires time.Time) {
	host = strings.ToLower(host)
	set := make(map[[32]byte]bool, len(pins))
	for _, p := range pins {
		set[p] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[host] = PinSet{IncludeSubdomains: includeSubdomains, Pins: set, Expires: expires}
}

// Verify checks the peer certificate chain's SPKI-SHA256 digests against
// host's configured pin set, per spec.md §4.3 step 4. It returns nil when
// no pin set is configured for host, when the configured set has expired
// (fail open), or when at least one certificate's SPKI matches a pin.
// Otherwise it returns a neterror.CertPinningFailed error.
func (s *PinStore) Verify(host string, chain []*x509.Certificate) error {
	host = strings.ToLower(host)

	s.mu.RLock()
	set, ok := lookupPinSet(s.entries, host)
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if set.expired(s.now()) {
		return nil
	}

	for _, cert := range chain {
		digest := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		if set.Pins[digest] {
			return nil
		}
	}
	return neterror.New(neterror.CertPinningFailed, host)
}

// lookupPinSet finds host's exact pin set, or the nearest parent pin set
// whose IncludeSubdomains is true.
func lookupPinSet(entries map[string]PinSet, host string) (PinSet, bool) {
	if set, ok := entries[host]; ok {
		return set, true
	}
	for _, parent := range parentDomains(host) {
		if set, ok := entries[parent]; ok && set.IncludeSubdomains {
			return set, true
		}
	}
	return PinSet{}, false
}
