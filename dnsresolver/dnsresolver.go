// Package dnsresolver resolves hostnames to socket addresses for the
// connect job (§4.3), offering a blocking system resolver, a caching async
// resolver, and an override wrapper that can short-circuit either with a
// static host table.
package dnsresolver

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/lunarforge/chromenet/neterror"
	"github.com/lunarforge/chromenet/workerpool"
)

// Resolver resolves name to a list of socket addresses. Implementations
// must return neterror.NameNotResolved on lookup failure.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]netip.Addr, error)
}

// System dispatches net.Resolver.LookupIPAddr on a bounded goroutine pool,
// so that a burst of concurrent connect jobs cannot fork one OS thread per
// lookup. Pool ownership is internal: NewSystem starts it, Close stops it.
type System struct {
	resolver *net.Resolver
	pool     *workerpool.Pool
}

// NewSystem creates a System resolver backed by a pool of concurrency
// workers. concurrency must be positive; values <= 0 default to 8.
func NewSystem(concurrency int) *System {
	if concurrency <= 0 {
		concurrency = 8
	}
	pool := workerpool.New(concurrency)
	pool.Start()
	return &System{resolver: net.DefaultResolver, pool: pool}
}

type systemResult struct {
	addrs []netip.Addr
	err   error
}

// Resolve performs a single blocking OS lookup, dispatched onto the
// System's worker pool so the calling goroutine only blocks on the result
// channel, which itself respects ctx cancellation.
func (s *System) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	done := make(chan systemResult, 1)
	s.pool.Submit(func() {
		ipAddrs, err := s.resolver.LookupIPAddr(context.Background(), name)
		if err != nil {
			done <- systemResult{err: neterror.Wrap(neterror.NameNotResolved, name, err)}
			return
		}
		addrs := make([]netip.Addr, 0, len(ipAddrs))
		for _, ip := range ipAddrs {
			if a, ok := netip.AddrFromSlice(ip.IP); ok {
				addrs = append(addrs, a.Unmap())
			}
		}
		if len(addrs) == 0 {
			done <- systemResult{err: neterror.New(neterror.NameNotResolved, name)}
			return
		}
		done <- systemResult{addrs: addrs}
	})

	select {
	case <-ctx.Done():
		return nil, neterror.Wrap(neterror.NameNotResolved, name, ctx.Err())
	case r := <-done:
		return r.addrs, r.err
	}
}

// Close stops the System resolver's worker pool, waiting for any in-flight
// lookups to finish.
func (s *System) Close() {
	s.pool.Stop()
}

// Override layers a static host -> addresses table in front of an
// underlying Resolver. Exact-key lookups bypass the underlying resolver
// entirely; IP-literal hosts are answered without consulting either the
// table or the underlying resolver.
type Override struct {
	underlying Resolver
	mu         sync.RWMutex
	table      map[string][]netip.Addr
}

// NewOverride wraps underlying with an empty override table.
func NewOverride(underlying Resolver) *Override {
	return &Override{underlying: underlying, table: make(map[string][]netip.Addr)}
}

// Set installs a static resolution for host, replacing any prior entry.
func (o *Override) Set(host string, addrs []netip.Addr) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.table[host] = addrs
}

// Delete removes any static resolution for host.
func (o *Override) Delete(host string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.table, host)
}

// Resolve answers from the override table when host has an exact-key entry
// or is itself an IP literal; otherwise it delegates to the underlying
// resolver.
func (o *Override) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	o.mu.RLock()
	addrs, ok := o.table[host]
	o.mu.RUnlock()
	if ok {
		return addrs, nil
	}

	return o.underlying.Resolve(ctx, host)
}
