package pool_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lunarforge/chromenet/metrics"
	"github.com/lunarforge/chromenet/pool"
)

func pipeConn() (*pool.Conn, net.Conn) {
	client, server := net.Pipe()
	now := time.Now()
	return &pool.Conn{Raw: client, CreatedAt: now, LastUsed: now}, server
}

func testKey() pool.Key {
	return pool.Key{Scheme: "https", Host: "example.com", Port: "443"}
}

func TestAcquireDialsWhenNoIdleConn(t *testing.T) {
	p := pool.New(pool.Options{PerGroupCap: 2, GlobalCap: 4, IdleTTL: time.Hour})
	defer p.Close()

	c, reused, err := p.Acquire(context.Background(), testKey(), func(ctx context.Context) (*pool.Conn, error) {
		conn, _ := pipeConn()
		return conn, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if reused {
		t.Error("expected a freshly dialed connection, got reused=true")
	}
	c.Raw.Close()
}

func TestReleaseThenAcquireReusesConn(t *testing.T) {
	p := pool.New(pool.Options{PerGroupCap: 2, GlobalCap: 4, IdleTTL: time.Hour})
	defer p.Close()
	key := testKey()

	c, _, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
		conn, _ := pipeConn()
		return conn, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(key, c, true)

	idle, active := p.Stats(key)
	if idle != 1 || active != 1 {
		t.Fatalf("Stats = idle=%d active=%d, want idle=1 active=1", idle, active)
	}

	c2, reused, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
		t.Fatal("dial should not be called when an idle conn is available")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !reused {
		t.Error("expected reused=true")
	}
	if c2 != c {
		t.Error("expected the same *Conn to be returned")
	}
	c2.Raw.Close()
}

func TestAcquireBlocksAtPerGroupCapThenWaiterGetsSlot(t *testing.T) {
	p := pool.New(pool.Options{PerGroupCap: 1, GlobalCap: 4, IdleTTL: time.Hour})
	defer p.Close()
	key := testKey()

	c1, _, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
		conn, _ := pipeConn()
		return conn, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	type result struct {
		c   *pool.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, _, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
			conn, _ := pipeConn()
			return conn, nil
		})
		done <- result{c, err}
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("second Acquire should still be blocked at cap")
	default:
	}

	p.Release(key, c1, false)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("waiter Acquire: %v", r.err)
		}
		r.c.Raw.Close()
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked after Release")
	}
}

func TestMetricsRecordsHitsAndMisses(t *testing.T) {
	p := pool.New(pool.Options{PerGroupCap: 2, GlobalCap: 4, IdleTTL: time.Hour})
	defer p.Close()
	p.Metrics = metrics.NewMetrics()
	key := testKey()

	c, _, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
		conn, _ := pipeConn()
		return conn, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(key, c, true)

	if _, _, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
		t.Fatal("dial should not be called when an idle conn is available")
		return nil, nil
	}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	hits, misses := p.Metrics.PoolSnapshot()
	if hits != 1 {
		t.Errorf("PoolHits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("PoolMisses = %d, want 1", misses)
	}
}

func TestAcquireCtxCancelWhileWaiting(t *testing.T) {
	p := pool.New(pool.Options{PerGroupCap: 1, GlobalCap: 4, IdleTTL: time.Hour})
	defer p.Close()
	key := testKey()

	c1, _, err := p.Acquire(context.Background(), key, func(ctx context.Context) (*pool.Conn, error) {
		conn, _ := pipeConn()
		return conn, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(key, c1, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err = p.Acquire(ctx, key, func(ctx context.Context) (*pool.Conn, error) {
		t.Fatal("dial should not run; pool is at cap")
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected context-deadline error")
	}
}
