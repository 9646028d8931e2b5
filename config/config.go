// Package config provides JSON-based configuration loading for a
// chromenet client.Context, with safe defaults for a single process
// driving many concurrent requests against one or more origins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the tunable parameters used to construct a client.Context.
// The struct is designed to be loaded once at startup and then shared
// across goroutines as a read-only value, making it inherently
// thread-safe after initialization.
type Config struct {
	// Profile selects a concrete emulation.Profile by name (e.g.
	// "chrome-120"), resolved via profiles.ByName.
	Profile string `json:"profile"`

	// ConnectTimeout bounds DNS resolution plus TCP/TLS handshake for one
	// connect attempt (connectjob.Job.ConnectDeadline).
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// HappyEyeballsDelay is the head start given to a racing IPv6 dial
	// before an IPv4 attempt also starts (spec.md §4.3).
	HappyEyeballsDelay time.Duration `json:"happy_eyeballs_delay"`

	// MaxRedirects caps the redirect hops a single Do call will follow
	// (request.Client.MaxRedirects).
	MaxRedirects int `json:"max_redirects"`

	// TargetURL is the base URL cmd/chromenet-fetch fetches by default.
	TargetURL string `json:"target_url"`

	// ProxyFile is a path to a newline-delimited proxy list consumed by a
	// proxydial.Rotator. Empty means run direct.
	ProxyFile string `json:"proxy_file"`

	// DNSServers, if non-empty, selects dnsresolver.NewAsync (a caching
	// UDP/TCP resolver querying these "host:port" nameservers directly)
	// instead of dnsresolver.NewSystem's OS-resolver dispatch.
	DNSServers []string `json:"dns_servers"`

	// PoolPerGroupCap and PoolGlobalCap size the socket pool (pool.Options).
	PoolPerGroupCap int           `json:"pool_per_group_cap"`
	PoolGlobalCap   int           `json:"pool_global_cap"`
	PoolIdleTTL     time.Duration `json:"pool_idle_ttl"`

	// CookieJarPerDomainCap and CookieJarGlobalCap size the cookie jar's
	// LRU eviction (cookiejar.Options).
	CookieJarPerDomainCap int `json:"cookie_jar_per_domain_cap"`
	CookieJarGlobalCap    int `json:"cookie_jar_global_cap"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a
// Config, starting from DefaultConfig's values so a partial file still leaves
// every omitted field at its documented fallback.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 -- filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return cfg, nil
}

// DefaultConfig returns a *Config pre-filled with production-sensible
// defaults, matching each component's own zero-value fallback. Callers
// are free to mutate the returned struct; each call returns a fresh
// independent copy.
func DefaultConfig() *Config {
	return &Config{
		Profile:               "chrome-120",
		ConnectTimeout:        240 * time.Second,
		HappyEyeballsDelay:    250 * time.Millisecond,
		MaxRedirects:          20,
		TargetURL:             "",
		ProxyFile:             "",
		PoolPerGroupCap:       6,
		PoolGlobalCap:         256,
		PoolIdleTTL:           60 * time.Second,
		CookieJarPerDomainCap: 50,
		CookieJarGlobalCap:    3000,
	}
}
