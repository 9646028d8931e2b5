package dnsresolver_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/lunarforge/chromenet/dnsresolver"
)

type stubResolver struct {
	calls int
	addrs []netip.Addr
}

func (s *stubResolver) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	s.calls++
	return s.addrs, nil
}

func TestOverrideExactKeyBypassesUnderlying(t *testing.T) {
	stub := &stubResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	override := dnsresolver.NewOverride(stub)
	override.Set("example.internal", []netip.Addr{netip.MustParseAddr("192.168.1.1")})

	addrs, err := override.Resolve(context.Background(), "example.internal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "192.168.1.1" {
		t.Errorf("got %v, want override address", addrs)
	}
	if stub.calls != 0 {
		t.Error("override entry should bypass the underlying resolver")
	}
}

func TestOverrideFallsThroughForUnknownHost(t *testing.T) {
	stub := &stubResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	override := dnsresolver.NewOverride(stub)

	addrs, err := override.Resolve(context.Background(), "other.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "10.0.0.1" {
		t.Errorf("got %v, want underlying resolver's address", addrs)
	}
	if stub.calls != 1 {
		t.Error("expected underlying resolver to be consulted once")
	}
}

func TestOverrideIPLiteralBypassesEverything(t *testing.T) {
	stub := &stubResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	override := dnsresolver.NewOverride(stub)

	addrs, err := override.Resolve(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "203.0.113.7" {
		t.Errorf("got %v, want IP literal echoed back", addrs)
	}
	if stub.calls != 0 {
		t.Error("IP literal should bypass DNS entirely, including the override table")
	}
}

func TestOverrideDelete(t *testing.T) {
	stub := &stubResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	override := dnsresolver.NewOverride(stub)
	override.Set("example.internal", []netip.Addr{netip.MustParseAddr("192.168.1.1")})
	override.Delete("example.internal")

	if _, err := override.Resolve(context.Background(), "example.internal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Error("deleted override entry should fall through to the underlying resolver")
	}
}

func TestSystemResolveLocalhost(t *testing.T) {
	sys := dnsresolver.NewSystem(2)
	defer sys.Close()

	addrs, err := sys.Resolve(context.Background(), "localhost")
	if err != nil {
		t.Fatalf("unexpected error resolving localhost: %v", err)
	}
	if len(addrs) == 0 {
		t.Error("expected at least one address for localhost")
	}
}

// startFakeDNS runs a UDP nameserver on localhost that answers every A
// query for name with addr and answers AAAA with an empty success reply
// (no records), so a test can drive Async
// against a known answer without touching the real network.
func startFakeDNS(t *testing.T, name, addr string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(dns.Fqdn(name), func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		if q.Qtype == dns.TypeA {
			rr, err := dns.NewRR(q.Name + " 60 IN A " + addr)
			if err == nil {
				m.Answer = append(m.Answer, rr)
			}
		}
		_ = w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go srv.ActivateAndServe()
	t.Cleanup(func() {
		srv.Shutdown()
	})
	return pc.LocalAddr().String()
}

func TestAsyncResolveReturnsAnswerAndCaches(t *testing.T) {
	server := startFakeDNS(t, "fake.example.", "203.0.113.42")
	async := dnsresolver.NewAsync([]string{server})

	addrs, err := async.Resolve(context.Background(), "fake.example.")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	found := false
	for _, a := range addrs {
		if a.String() == "203.0.113.42" {
			found = true
		}
	}
	if !found {
		t.Errorf("addrs = %v, want to include 203.0.113.42", addrs)
	}

	// Second call should hit the cache and still return the same answer
	// even with a context that's already past deadline for a fresh query.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	addrs2, err := async.Resolve(ctx, "fake.example.")
	if err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	if len(addrs2) != len(addrs) {
		t.Errorf("cached addrs = %v, want %v", addrs2, addrs)
	}
}

func TestAsyncResolveUnknownNameFails(t *testing.T) {
	server := startFakeDNS(t, "fake.example.", "203.0.113.42")
	async := dnsresolver.NewAsync([]string{server})

	if _, err := async.Resolve(context.Background(), "unknown.example."); err == nil {
		t.Fatal("expected an error resolving a name the fake server has no answer for")
	}
}
