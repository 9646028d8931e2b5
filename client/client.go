// Package client provides Context, the aggregate object analogous to
// Chromium's URLRequestContext (spec.md §9): one value the caller
// constructs explicitly, holding the pool, cookie jar, security stores,
// DNS resolver, and emulation profile by reference, then passes to every
// request it sends. There are no package-level singletons anywhere in
// this module — two Contexts in the same process never share state
// unless the caller deliberately wires them to the same collaborators.
package client

import (
	"fmt"
	"net/url"

	"github.com/lunarforge/chromenet/authcache"
	"github.com/lunarforge/chromenet/config"
	"github.com/lunarforge/chromenet/connectjob"
	"github.com/lunarforge/chromenet/cookiejar"
	"github.com/lunarforge/chromenet/dnsresolver"
	"github.com/lunarforge/chromenet/emulation"
	"github.com/lunarforge/chromenet/metrics"
	"github.com/lunarforge/chromenet/pool"
	"github.com/lunarforge/chromenet/proxydial"
	"github.com/lunarforge/chromenet/request"
	"github.com/lunarforge/chromenet/security"
)

// Context aggregates every collaborator a request needs, constructed
// once and shared across as many concurrent request.Client.Do calls as
// the caller likes.
type Context struct {
	Pool     *pool.Pool
	Jar      *cookiejar.Jar
	HSTS     *security.HSTSStore
	Pins     *security.PinStore
	Resolver dnsresolver.Resolver
	Auth     *authcache.Cache
	Metrics  *metrics.Metrics
	Proxies  *proxydial.Rotator

	// RequestClient drives the request job state machine (request.Client)
	// against this Context's collaborators, carrying one emulation
	// profile for every request it sends.
	RequestClient *request.Client
}

// New builds a Context from cfg: the socket pool, cookie jar, HSTS/pin
// stores, DNS resolver, auth cache, and a request.Client wired to all of
// them, all constructed fresh (never a shared global). profile is the
// emulation profile the Context's RequestClient applies to every request.
// If cfg.ProxyFile is set, every request rotates through that proxy list;
// otherwise requests run direct.
func New(cfg *config.Config, profile emulation.Profile) (*Context, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	m := metrics.NewMetrics()

	p := pool.New(pool.Options{
		PerGroupCap: cfg.PoolPerGroupCap,
		GlobalCap:   cfg.PoolGlobalCap,
		IdleTTL:     cfg.PoolIdleTTL,
	})
	p.Metrics = m

	jar := cookiejar.New(cookiejar.Options{
		PerDomainCap: cfg.CookieJarPerDomainCap,
		GlobalCap:    cfg.CookieJarGlobalCap,
	})

	hsts := security.NewHSTSStore()
	pins := security.NewPinStore()
	var resolver dnsresolver.Resolver
	if len(cfg.DNSServers) > 0 {
		resolver = dnsresolver.NewAsync(cfg.DNSServers)
	} else {
		resolver = dnsresolver.NewSystem(8)
	}

	var rotator *proxydial.Rotator
	if cfg.ProxyFile != "" {
		rotator = &proxydial.Rotator{}
		if err := rotator.LoadFile(cfg.ProxyFile); err != nil {
			return nil, fmt.Errorf("client: load proxy file %q: %w", cfg.ProxyFile, err)
		}
	}

	connect := connectjob.New(resolver, hsts, pins)
	connect.HappyEyeballsDelay = cfg.HappyEyeballsDelay
	connect.ConnectDeadline = cfg.ConnectTimeout

	rc := request.NewClient(p, connect, jar, profile)
	rc.MaxRedirects = cfg.MaxRedirects
	rc.Metrics = m
	rc.AuthCache = authcache.New()
	if rotator != nil {
		rc.Proxy = rotatorSelector(rotator)
	}

	return &Context{
		Pool:          p,
		Jar:           jar,
		HSTS:          hsts,
		Pins:          pins,
		Resolver:      resolver,
		Auth:          rc.AuthCache,
		Metrics:       m,
		Proxies:       rotator,
		RequestClient: rc,
	}, nil
}

// rotatorSelector adapts a proxydial.Rotator into a request.ProxySelector
// that round-robins through the loaded proxy list for every request,
// regardless of target — per-target or per-scheme proxy policy is left to
// a caller-supplied request.ProxySelector assigned directly to
// RequestClient.Proxy instead.
func rotatorSelector(r *proxydial.Rotator) request.ProxySelector {
	return func(target *url.URL) (*url.URL, error) {
		raw := r.Next()
		if raw == "" {
			return nil, nil
		}
		return proxydial.Parse(raw)
	}
}

// Close releases the Context's background resources (the pool's idle
// sweeper and any idle connections it holds).
func (c *Context) Close() {
	c.Pool.Close()
}
