// Package connectjob implements the connect job (spec.md §4.3): DNS
// resolution, Happy Eyeballs dual-stack racing, optional proxy tunneling,
// and the TLS handshake, producing a connected stream tagged with the
// negotiated protocol.
package connectjob

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/lunarforge/chromenet/dnsresolver"
	"github.com/lunarforge/chromenet/emulation"
	"github.com/lunarforge/chromenet/neterror"
	"github.com/lunarforge/chromenet/proxydial"
	"github.com/lunarforge/chromenet/security"
	"github.com/lunarforge/chromenet/tlsconfig"
)

// Result is the outcome of a successful connect job.
type Result struct {
	Conn          net.Conn
	NegotiatedALPN string
	IsH2          bool
}

// Job resolves and connects to a target URL, optionally through a proxy,
// applying the given emulation profile's TLS fingerprint. A Job is safe
// for concurrent use: it holds only references to shared, already
// concurrency-safe collaborators.
type Job struct {
	Resolver   dnsresolver.Resolver
	HSTS       *security.HSTSStore
	Pins       *security.PinStore
	HappyEyeballsDelay time.Duration
	ConnectDeadline    time.Duration
}

// New creates a Job with spec.md §4.3's documented defaults: a 250ms
// Happy Eyeballs head start and a 240s overall connect deadline.
func New(resolver dnsresolver.Resolver, hsts *security.HSTSStore, pins *security.PinStore) *Job {
	return &Job{
		Resolver:           resolver,
		HSTS:               hsts,
		Pins:               pins,
		HappyEyeballsDelay: 250 * time.Millisecond,
		ConnectDeadline:    240 * time.Second,
	}
}

// Dial connects to target (scheme determines whether TLS is performed),
// optionally through proxyURL, using profile's TLS/ALPN fingerprint.
func (j *Job) Dial(ctx context.Context, target *url.URL, proxyURL *url.URL, profile emulation.Profile) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, j.ConnectDeadline)
	defer cancel()

	host := target.Hostname()
	port := target.Port()
	if port == "" {
		port = defaultPort(target.Scheme)
	}
	isHTTPS := target.Scheme == "https"
	if j.HSTS != nil && !isHTTPS && j.HSTS.ShouldUpgrade(host) {
		isHTTPS = true
		port = "443"
	}

	var conn net.Conn
	var err error
	if proxyURL == nil {
		conn, err = j.dialDirect(ctx, host, port)
	} else {
		conn, err = j.dialThroughProxy(ctx, proxyURL, host, port, isHTTPS, profile)
	}
	if err != nil {
		return nil, err
	}

	if !isHTTPS {
		return &Result{Conn: conn}, nil
	}

	spec := profile.TLS
	tlsConn, alpn, err := tlsconfig.Handshake(ctx, conn, host, spec)
	if err != nil {
		return nil, err
	}

	if j.Pins != nil {
		if uConn, ok := tlsConn.(*utls.UConn); ok {
			chain := uConn.ConnectionState().PeerCertificates
			if err := j.Pins.Verify(host, chain); err != nil {
				_ = tlsConn.Close()
				return nil, err
			}
		}
	}

	return &Result{Conn: tlsConn, NegotiatedALPN: alpn, IsH2: alpn == "h2"}, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// dialDirect resolves host and races IPv6/IPv4 addresses per Happy
// Eyeballs (RFC 8305), returning the first successful TCP connection.
func (j *Job) dialDirect(ctx context.Context, host, port string) (net.Conn, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr.String(), port))
		if err != nil {
			return nil, neterror.Wrap(neterror.ConnectionRefused, host, err)
		}
		return conn, nil
	}

	addrs, err := j.Resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return happyEyeballs(ctx, addrs, port, j.HappyEyeballsDelay)
}

// happyEyeballs partitions addrs into IPv6 and IPv4 lists (preserving DNS
// order), races the first IPv6 attempt, starts a parallel IPv4 attempt
// after delay, and returns the first success, canceling the other. If
// one family is absent, only the other family is tried — no race.
func happyEyeballs(ctx context.Context, addrs []netip.Addr, port string, delay time.Duration) (net.Conn, error) {
	var v6, v4 []netip.Addr
	for _, a := range addrs {
		if a.Is4() || a.Is4In6() {
			v4 = append(v4, a)
		} else {
			v6 = append(v6, a)
		}
	}

	if len(v6) == 0 && len(v4) == 0 {
		return nil, neterror.New(neterror.NameNotResolved, "no addresses resolved")
	}
	if len(v6) == 0 {
		return dialAddrList(ctx, v4, port)
	}
	if len(v4) == 0 {
		return dialAddrList(ctx, v6, port)
	}

	type attempt struct {
		conn net.Conn
		err  error
	}
	results := make(chan attempt, 2)
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		conn, err := dialAddrList(raceCtx, v6, port)
		results <- attempt{conn, err}
	}()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case a := <-results:
		if a.err == nil {
			return a.conn, nil
		}
		// IPv6 failed before the IPv4 head start elapsed: fall through
		// immediately to IPv4 rather than waiting out the timer.
	case <-timer.C:
	case <-ctx.Done():
		return nil, neterror.Wrap(neterror.ConnectionTimedOut, "", ctx.Err())
	}

	go func() {
		conn, err := dialAddrList(raceCtx, v4, port)
		results <- attempt{conn, err}
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		select {
		case a := <-results:
			if a.err == nil {
				cancel()
				return a.conn, nil
			}
			if firstErr == nil {
				firstErr = a.err
			}
		case <-ctx.Done():
			return nil, neterror.Wrap(neterror.ConnectionTimedOut, "", ctx.Err())
		}
	}
	return nil, firstErr
}

// dialAddrList tries each address in order, returning the first success.
func dialAddrList(ctx context.Context, addrs []netip.Addr, port string) (net.Conn, error) {
	var d net.Dialer
	var lastErr error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(a.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = neterror.New(neterror.AddressUnreachable, "empty address list")
	}
	return nil, neterror.Wrap(neterror.ConnectionRefused, port, lastErr)
}

func (j *Job) dialThroughProxy(ctx context.Context, proxyURL *url.URL, targetHost, targetPort string, isHTTPS bool, profile emulation.Profile) (net.Conn, error) {
	targetAddr := net.JoinHostPort(targetHost, targetPort)
	proxyAddr := proxyURL.Host

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		portNum, err := strconv.Atoi(targetPort)
		if err != nil {
			return nil, neterror.Wrap(neterror.AddressInvalid, targetPort, err)
		}
		return proxydial.DialSOCKS5(ctx, proxyAddr, targetHost, portNum)
	case "https":
		proxyHost, _, err := net.SplitHostPort(proxyAddr)
		if err != nil {
			proxyHost = proxyAddr
		}
		return proxydial.DialHTTPSTunnel(ctx, proxyAddr, proxyHost, targetAddr, proxyURL.User, profile.TLS)
	default: // "http"
		if !isHTTPS {
			// Plaintext target through a plaintext proxy: the proxy
			// forwards the request directly, no CONNECT tunnel needed.
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", proxyAddr)
			if err != nil {
				return nil, neterror.Wrap(neterror.ProxyTunnelFailed, proxyAddr, err)
			}
			return conn, nil
		}
		return proxydial.DialHTTPConnect(ctx, proxyAddr, targetAddr, proxyURL.User)
	}
}
