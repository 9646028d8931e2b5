// Package pool implements the socket pool (spec.md §4.2): idle connections
// are kept per group key, reused LIFO, capped per-group and globally, with
// FIFO waiter queues once a group is at capacity and a background sweeper
// that retires idle connections past their TTL.
package pool

import (
	"container/list"
	"context"
	"net"
	"sync"
	"time"

	"github.com/lunarforge/chromenet/metrics"
	"github.com/lunarforge/chromenet/neterror"
)

// Key identifies a pool group: connections are only ever reused within the
// same (scheme, host, port, proxy fingerprint) group, per spec.md §4.2 —
// two requests to the same origin through different proxies must never
// share a socket.
type Key struct {
	Scheme           string
	Host             string
	Port             string
	ProxyFingerprint string
}

// Conn is a pooled connection plus the bookkeeping the pool needs to decide
// whether it is still reusable.
type Conn struct {
	Raw            net.Conn
	NegotiatedALPN string
	CreatedAt      time.Time
	LastUsed       time.Time
}

type waiter struct {
	ch chan *Conn
}

type group struct {
	idle   *list.List // of *Conn, front = most recently released (LIFO)
	active int
	queue  *list.List // of *waiter, front = oldest (FIFO)
}

func newGroup() *group {
	return &group{idle: list.New(), queue: list.New()}
}

// Pool is the connect pool described by spec.md §4.2. The zero value is not
// usable; construct with New.
type Pool struct {
	mu           sync.Mutex
	groups       map[Key]*group
	perGroupCap  int
	globalCap    int
	globalActive int
	idleTTL      time.Duration

	// Metrics, if non-nil, is incremented on every Acquire/AcquireFresh
	// call with a pool hit (idle connection reused) or miss (freshly
	// dialed) per spec.md §8's pool-efficiency testable property.
	Metrics *metrics.Metrics

	stop chan struct{}
	wg   sync.WaitGroup
}

// Options configures a Pool. Zero values fall back to spec.md §4.2's
// documented defaults: 6 connections per group, 256 globally, a 60s idle
// sweep interval and TTL.
type Options struct {
	PerGroupCap int
	GlobalCap   int
	IdleTTL     time.Duration
}

// New creates a Pool and starts its background idle sweeper.
func New(opts Options) *Pool {
	if opts.PerGroupCap <= 0 {
		opts.PerGroupCap = 6
	}
	if opts.GlobalCap <= 0 {
		opts.GlobalCap = 256
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 60 * time.Second
	}
	p := &Pool{
		groups:      make(map[Key]*group),
		perGroupCap: opts.PerGroupCap,
		globalCap:   opts.GlobalCap,
		idleTTL:     opts.IdleTTL,
		stop:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sweepLoop()
	return p
}

// Acquire returns a connection for key: a pooled idle connection if a live
// one is available, otherwise a freshly dialed one via dial once capacity
// allows, otherwise it blocks in key's FIFO waiter queue until capacity
// frees up or ctx is canceled.
func (p *Pool) Acquire(ctx context.Context, key Key, dial func(ctx context.Context) (*Conn, error)) (*Conn, bool, error) {
	return p.acquire(ctx, key, dial, false)
}

// AcquireFresh behaves like Acquire but never returns a pooled idle
// connection — every call either dials fresh or waits for capacity. The
// request job uses this for its transparent single retry after a reused
// connection turned out to be broken, so the retry cannot simply be
// handed the same stale connection again.
func (p *Pool) AcquireFresh(ctx context.Context, key Key, dial func(ctx context.Context) (*Conn, error)) (*Conn, error) {
	conn, _, err := p.acquire(ctx, key, dial, true)
	return conn, err
}

func (p *Pool) acquire(ctx context.Context, key Key, dial func(ctx context.Context) (*Conn, error), skipIdle bool) (*Conn, bool, error) {
	p.mu.Lock()
	g := p.groupLocked(key)

	if !skipIdle {
		for g.idle.Len() > 0 {
			elem := g.idle.Front()
			g.idle.Remove(elem)
			c := elem.Value.(*Conn)
			if isAlive(c.Raw) {
				p.mu.Unlock()
				p.recordHit()
				return c, true, nil
			}
			_ = c.Raw.Close()
			g.active--
			p.globalActive--
		}
	}

	if g.active < p.perGroupCap && p.globalActive < p.globalCap {
		g.active++
		p.globalActive++
		p.mu.Unlock()

		conn, err := dial(ctx)
		if err != nil {
			p.mu.Lock()
			g.active--
			p.globalActive--
			p.mu.Unlock()
			return nil, false, err
		}
		p.recordMiss()
		return conn, false, nil
	}

	w := &waiter{ch: make(chan *Conn, 1)}
	elem := g.queue.PushBack(w)
	p.mu.Unlock()

	select {
	case conn := <-w.ch:
		if conn != nil {
			p.recordHit()
			return conn, true, nil
		}
		// Ownership of a slot was handed to us without a reusable
		// connection; dial our own using that slot.
		conn, err := dial(ctx)
		if err != nil {
			p.mu.Lock()
			g.active--
			p.globalActive--
			p.mu.Unlock()
			return nil, false, err
		}
		p.recordMiss()
		return conn, false, nil
	case <-ctx.Done():
		p.mu.Lock()
		g.queue.Remove(elem)
		p.mu.Unlock()
		return nil, false, neterror.Wrap(neterror.PreconnectMaxSocketLimit, key.Host, ctx.Err())
	}
}

// Release returns c to the pool for key if reusable is true; otherwise it
// closes c and frees its capacity slot. Either way, if a waiter is queued
// for key, its slot is handed off directly rather than cycling through the
// idle stack (spec.md §4.2's FIFO waiter guarantee).
func (p *Pool) Release(key Key, c *Conn, reusable bool) {
	p.mu.Lock()
	g := p.groupLocked(key)

	if front := g.queue.Front(); front != nil {
		g.queue.Remove(front)
		w := front.Value.(*waiter)
		p.mu.Unlock()

		if reusable {
			c.LastUsed = time.Now()
			w.ch <- c
		} else {
			_ = c.Raw.Close()
			w.ch <- nil
		}
		return
	}

	if !reusable {
		_ = c.Raw.Close()
		g.active--
		p.globalActive--
		p.mu.Unlock()
		return
	}

	c.LastUsed = time.Now()
	g.idle.PushFront(c)
	p.mu.Unlock()
}

func (p *Pool) recordHit() {
	if p.Metrics != nil {
		p.Metrics.IncrementPoolHit()
	}
}

func (p *Pool) recordMiss() {
	if p.Metrics != nil {
		p.Metrics.IncrementPoolMiss()
	}
}

func (p *Pool) groupLocked(key Key) *group {
	g, ok := p.groups[key]
	if !ok {
		g = newGroup()
		p.groups[key] = g
	}
	return g
}

// Stats reports the pool's current idle/active connection counts for key.
// active counts every open connection of the group, idle ones included.
func (p *Pool) Stats(key Key) (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[key]
	if !ok {
		return 0, 0
	}
	return g.idle.Len(), g.active
}

// Close stops the background sweeper and closes every idle connection.
func (p *Pool) Close() {
	close(p.stop)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		for elem := g.idle.Front(); elem != nil; elem = elem.Next() {
			_ = elem.Value.(*Conn).Raw.Close()
		}
		g.idle.Init()
	}
}

func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

// sweepOnce closes and removes every idle connection that has sat longer
// than idleTTL since its last use.
func (p *Pool) sweepOnce() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		var next *list.Element
		for elem := g.idle.Front(); elem != nil; elem = next {
			next = elem.Next()
			c := elem.Value.(*Conn)
			if now.Sub(c.LastUsed) >= p.idleTTL {
				_ = c.Raw.Close()
				g.idle.Remove(elem)
				g.active--
				p.globalActive--
			}
		}
	}
}
