// Package tlsconfig builds fingerprint-faithful TLS client connections
// using uTLS, generalizing the teacher's single hard-coded Chrome dialer
// into one driven by an arbitrary emulation profile's ClientHelloSpec and
// ALPN list (spec.md §4.3 step 3).
package tlsconfig

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"

	utls "github.com/refraction-networking/utls"

	"github.com/lunarforge/chromenet/neterror"
)

// Spec bundles everything tlsconfig needs to shape one TLS handshake: the
// uTLS ClientHelloID to impersonate and the ALPN protocol list to offer,
// in the order the emulated browser offers them.
type Spec struct {
	HelloID utls.ClientHelloID
	ALPN    []string

	// SessionCache is shared across handshakes to the same origin so that
	// TLS session resumption (and uTLS's PSK support) works across
	// connection pool dispose/recreate cycles, per spec.md §4.2.
	SessionCache utls.ClientSessionCache

	// InsecureSkipVerify disables certificate verification. Callers
	// outside of tests should leave this false; certificate trust is
	// normally established via the platform trust store plus the pin
	// store (spec.md §4.4), not by skipping verification.
	InsecureSkipVerify bool
}

// Handshake performs a uTLS handshake over rawConn, impersonating the
// fingerprint described by spec. host is used as the SNI value unless it
// is an IP literal, in which case SNI is omitted entirely (spec.md §4.3
// step 3). The returned net.Conn is the established TLS connection;
// callers can type-assert to *utls.UConn to read ConnectionState().
func Handshake(ctx context.Context, rawConn net.Conn, host string, spec Spec) (net.Conn, string, error) {
	uCfg := &utls.Config{
		NextProtos:         spec.ALPN,
		ClientSessionCache: spec.SessionCache,
		InsecureSkipVerify: spec.InsecureSkipVerify, // #nosec G402 -- caller-controlled, off by default
	}
	if _, err := netip.ParseAddr(host); err != nil {
		// host is a name, not a literal: set SNI.
		uCfg.ServerName = host
	}

	uConn := utls.UClient(rawConn, uCfg, spec.HelloID)

	helloSpec, err := clientHelloSpec(spec.HelloID)
	if err != nil {
		_ = rawConn.Close()
		return nil, "", neterror.Wrap(neterror.TLSProtocolError, host, err)
	}
	if len(spec.ALPN) > 0 {
		applyALPN(&helloSpec, spec.ALPN)
	}
	if err := uConn.ApplyPreset(&helloSpec); err != nil {
		_ = rawConn.Close()
		return nil, "", neterror.Wrap(neterror.TLSProtocolError, host, err)
	}

	if err := uConn.HandshakeContext(ctx); err != nil {
		_ = uConn.Close()
		return nil, "", neterror.Wrap(neterror.TLSProtocolError, host, err)
	}

	return uConn, uConn.ConnectionState().NegotiatedProtocol, nil
}

// clientHelloSpec returns the ClientHelloSpec for helloID. An ID the uTLS
// parrot table doesn't recognize yields an error; there is no fallback
// to a default spec.
func clientHelloSpec(helloID utls.ClientHelloID) (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return utls.ClientHelloSpec{}, fmt.Errorf("tlsconfig: no parrot spec for %s: %w", helloID.Str(), err)
	}
	return spec, nil
}

// applyALPN rewrites the ALPN extension inside helloSpec (if present) to
// alpn, preserving every other extension and their order untouched.
func applyALPN(helloSpec *utls.ClientHelloSpec, alpn []string) {
	for _, ext := range helloSpec.Extensions {
		if alpnExt, ok := ext.(*utls.ALPNExtension); ok {
			alpnExt.AlpnProtocols = alpn
			return
		}
	}
}

// Dialer adapts Handshake into a DialTLSContext-compatible function for
// wiring directly into an http.Transport or http2.Transport. network/addr
// use the standard "host:port" form; dial uses a plain net.Dialer honoring
// ctx for the initial TCP connect.
func Dialer(spec Spec) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, neterror.Wrap(neterror.AddressInvalid, addr, err)
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, neterror.Wrap(neterror.ConnectionRefused, addr, err)
		}

		conn, _, err := Handshake(ctx, rawConn, host, spec)
		return conn, err
	}
}
