package connectjob_test

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/lunarforge/chromenet/connectjob"
	"github.com/lunarforge/chromenet/emulation"
	"github.com/lunarforge/chromenet/h2fingerprint"
	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/security"
	"github.com/lunarforge/chromenet/tlsconfig"
)

type stubResolver struct {
	addrs []netip.Addr
	err   error
}

func (s stubResolver) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	return s.addrs, s.err
}

func plainProfile() emulation.Profile {
	return emulation.Profile{
		Name: "test",
		TLS:  tlsconfig.Spec{HelloID: utls.HelloChrome_120, ALPN: []string{"http/1.1"}},
		H2:   h2fingerprint.Chrome120,
		DefaultHeaders: func() *header.Header {
			return header.New()
		},
		UserAgent: "test-agent",
	}
}

func TestDialDirectPlaintextSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	resolver := stubResolver{addrs: []netip.Addr{netip.MustParseAddr("127.0.0.1")}}
	job := connectjob.New(resolver, security.NewHSTSStore(), security.NewPinStore())

	target, _ := url.Parse("http://example.invalid")
	target.Host = "example.invalid:" + strconv.Itoa(port)

	result, err := job.Dial(context.Background(), target, nil, plainProfile())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if result.Conn == nil {
		t.Fatal("expected non-nil conn")
	}
	result.Conn.Close()
}

func TestDialDirectNoAddressesFails(t *testing.T) {
	resolver := stubResolver{addrs: nil}
	job := connectjob.New(resolver, nil, nil)

	target, _ := url.Parse("http://nowhere.invalid")
	_, err := job.Dial(context.Background(), target, nil, plainProfile())
	if err == nil {
		t.Fatal("expected error for empty address list")
	}
	if !strings.Contains(err.Error(), "NameNotResolved") {
		t.Errorf("error = %v, want NameNotResolved", err)
	}
}

func TestDialRespectsShortDeadline(t *testing.T) {
	resolver := stubResolver{addrs: []netip.Addr{netip.MustParseAddr("192.0.2.1")}} // TEST-NET-1, unreachable
	job := connectjob.New(resolver, nil, nil)
	job.ConnectDeadline = 200 * time.Millisecond

	target, _ := url.Parse("http://unreachable.invalid:80")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err := job.Dial(ctx, target, nil, plainProfile())
	if err == nil {
		t.Fatal("expected error dialing an unreachable address")
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Errorf("Dial took %v, want bounded by ConnectDeadline", time.Since(start))
	}
}
