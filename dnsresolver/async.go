package dnsresolver

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/lunarforge/chromenet/neterror"
)

// cacheEntry holds a resolved address list and its expiry, derived from the
// minimum TTL across the answer records.
type cacheEntry struct {
	addrs   []netip.Addr
	expires time.Time
}

// Async is an internal UDP/TCP DNS client with caching. It queries A and
// AAAA records concurrently (strategy "IPv4 AND IPv6", per §4.1) so the
// connect job has both address families available for Happy Eyeballs
// racing without waiting for two sequential round trips.
type Async struct {
	client  *dns.Client
	servers []string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewAsync creates an Async resolver querying the given nameserver
// addresses (each "host:port"), in order, on each lookup. If servers is
// empty, NewAsync falls back to 1.1.1.1:53 and 8.8.8.8:53.
func NewAsync(servers []string) *Async {
	if len(servers) == 0 {
		servers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	return &Async{
		client:  &dns.Client{Timeout: 5 * time.Second},
		servers: servers,
		cache:   make(map[string]cacheEntry),
	}
}

// Resolve returns name's A and AAAA addresses, preferring a cached answer
// if still fresh.
func (a *Async) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	if cached, ok := a.lookupCache(name); ok {
		return cached, nil
	}

	type queryResult struct {
		addrs []netip.Addr
		ttl   uint32
		err   error
	}
	results := make(chan queryResult, 2)

	query := func(qtype uint16) {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), qtype)
		msg.RecursionDesired = true

		var lastErr error
		for _, server := range a.servers {
			reply, _, err := a.client.ExchangeContext(ctx, msg, server)
			if err != nil {
				lastErr = err
				continue
			}
			if reply.Rcode != dns.RcodeSuccess {
				continue
			}
			var addrs []netip.Addr
			var minTTL uint32 = ^uint32(0)
			for _, rr := range reply.Answer {
				var ip netip.Addr
				switch rec := rr.(type) {
				case *dns.A:
					ip, _ = netip.AddrFromSlice(rec.A.To4())
					if rec.Hdr.Ttl < minTTL {
						minTTL = rec.Hdr.Ttl
					}
				case *dns.AAAA:
					ip, _ = netip.AddrFromSlice(rec.AAAA.To16())
					if rec.Hdr.Ttl < minTTL {
						minTTL = rec.Hdr.Ttl
					}
				default:
					continue
				}
				if ip.IsValid() {
					addrs = append(addrs, ip)
				}
			}
			results <- queryResult{addrs: addrs, ttl: minTTL}
			return
		}
		results <- queryResult{err: lastErr}
	}

	go query(dns.TypeA)
	go query(dns.TypeAAAA)

	var all []netip.Addr
	var minTTL uint32 = 300
	var lastErr error
	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return nil, neterror.Wrap(neterror.NameNotResolved, name, ctx.Err())
		case r := <-results:
			if r.err != nil {
				lastErr = r.err
				continue
			}
			all = append(all, r.addrs...)
			if r.ttl > 0 && r.ttl < minTTL {
				minTTL = r.ttl
			}
		}
	}

	if len(all) == 0 {
		if lastErr != nil {
			return nil, neterror.Wrap(neterror.NameNotResolved, name, lastErr)
		}
		return nil, neterror.New(neterror.NameNotResolved, name)
	}

	a.storeCache(name, all, time.Duration(minTTL)*time.Second)
	return all, nil
}

func (a *Async) lookupCache(name string) ([]netip.Addr, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[name]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.addrs, true
}

func (a *Async) storeCache(name string, addrs []netip.Addr, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[name] = cacheEntry{addrs: addrs, expires: time.Now().Add(ttl)}
}
