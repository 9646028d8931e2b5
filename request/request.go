// Package request drives the request job state machine (spec.md §4.7):
// Idle -> CreateStream -> SendRequest -> ReadHeaders -> (Redirect ->
// CreateStream) -> Done | Error. It is the top-level orchestrator tying
// the pool, connect job, cookie jar, security stores, and header/stream
// layers together into one Client.Do call.
package request

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lunarforge/chromenet/authcache"
	"github.com/lunarforge/chromenet/connectjob"
	"github.com/lunarforge/chromenet/cookiejar"
	"github.com/lunarforge/chromenet/emulation"
	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/metrics"
	"github.com/lunarforge/chromenet/neterror"
	"github.com/lunarforge/chromenet/pool"
	"github.com/lunarforge/chromenet/security"
	"github.com/lunarforge/chromenet/streamfactory"
)

// ProxySelector returns the proxy URL to use for target, or nil for a
// direct connection.
type ProxySelector func(target *url.URL) (*url.URL, error)

// Client executes requests through the full connect/pool/stream pipeline,
// applying one emulation profile consistently across every hop of a
// redirect chain.
type Client struct {
	Pool    *pool.Pool
	Connect *connectjob.Job
	Jar     *cookiejar.Jar
	Profile emulation.Profile
	Proxy   ProxySelector

	// AuthCache holds cached Digest challenges per host (spec.md §4.7 step
	// (e)). Left nil, no Authorization header is added from a cached
	// challenge. Credentials supplies the username/password per host; a
	// host absent from the map is never authorized automatically.
	AuthCache   *authcache.Cache
	Credentials map[string]Credential

	// Metrics, if non-nil, is incremented as Do and sendOnce progress
	// (spec.md §4.10's extended counters).
	Metrics *metrics.Metrics

	// MaxRedirects caps the number of redirect hops a single Do call will
	// follow before returning neterror.TooManyRedirects (spec.md §4.7).
	MaxRedirects int

	// RetryBackoff is a delay function for attempt N (1-based) of a caller
	// retry. Do does not read it: Do makes no caller-level retries and
	// applies no backoff of its own. The transparent single retry on a broken
	// reused connection, by contrast, is always enabled and never
	// backs off — it exists to absorb server-side idle-timeout races, not
	// transient failures.
	RetryBackoff func(attempt int) time.Duration
}

// NewClient wires a Client from its collaborators with spec.md §4.7's
// default redirect cap of 20 (Chromium's own limit).
func NewClient(p *pool.Pool, connect *connectjob.Job, jar *cookiejar.Jar, profile emulation.Profile) *Client {
	return &Client{
		Pool:         p,
		Connect:      connect,
		Jar:          jar,
		Profile:      profile,
		MaxRedirects: 20,
	}
}

// Credential is the username/password pair tried against a host's cached
// Digest challenge, keyed in Client.Credentials by hostname.
type Credential struct {
	Username string
	Password string
}

// Request describes one logical request, before any redirects.
type Request struct {
	Method  string
	URL     *url.URL
	Header  *header.Header
	Body    io.Reader
	GetBody func() (io.ReadCloser, error) // required to replay Body across a redirect
}

// Response is the terminal response of a Do call: the final hop's status
// and body, plus the request that produced it (after any redirects and
// method downgrades).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Request    *Request
	ALPN       string
}

// pooledConn is the value stored as a pool.Conn's Raw field: it bundles
// the raw net.Conn with the Stream wrapped around it once, at dial time,
// so repeated pool reuse of the same physical connection never re-wraps
// it in a new Stream (which for h2 would re-send the connection preface
// and discard the HPACK encoder state). An h2 connection still occupies one pool "slot" for the
// duration of each individual request rather than being shared across
// concurrent requests — a deliberate simplification over real H2
// multiplexing, noted in DESIGN.md.
type pooledConn struct {
	net.Conn
	stream streamfactory.Stream
	alpn   string
}

// Do runs req through the full state machine, following redirects up to
// MaxRedirects, and returns the terminal response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.Metrics != nil {
		c.Metrics.IncrementTotal()
	}
	visited := map[string]bool{}
	current := req
	redirects := 0
	triedFreshAfterBroken := false

	for {
		visited[current.Method+" "+current.URL.String()] = true

		resp, key, conn, err := c.sendOnce(ctx, current, !triedFreshAfterBroken)
		if err != nil {
			if _, ok := err.(*brokenReusedConn); ok && !triedFreshAfterBroken {
				// Transparent single retry: the connection was stale
				// (peer closed it while idle) even though the liveness
				// peek missed it, or it broke between peek and write.
				triedFreshAfterBroken = true
				if c.Metrics != nil {
					c.Metrics.IncrementBrokenConnRetry()
				}
				continue
			}
			if c.Metrics != nil {
				c.Metrics.IncrementFailed()
			}
			return nil, err
		}
		triedFreshAfterBroken = false

		c.absorbResponseMetadata(current.URL, resp)

		if next, nextReq, ok := c.redirectTarget(current, resp); ok {
			// Drain and release this hop's connection before following
			// the redirect; the body is not the caller's concern for an
			// intermediate hop.
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			c.Pool.Release(key, conn, conn.Raw.(*pooledConn).stream.Reusable())

			redirects++
			if c.Metrics != nil {
				c.Metrics.IncrementRedirect()
			}
			if redirects > c.MaxRedirects {
				if c.Metrics != nil {
					c.Metrics.IncrementFailed()
				}
				return nil, neterror.New(neterror.TooManyRedirects, current.URL.String())
			}
			if visited[nextReq.Method+" "+next.String()] {
				if c.Metrics != nil {
					c.Metrics.IncrementFailed()
				}
				return nil, neterror.New(neterror.RedirectCycleDetected, next.String())
			}
			current = nextReq
			continue
		}

		released := false
		release := func() {
			if released {
				return
			}
			released = true
			c.Pool.Release(key, conn, conn.Raw.(*pooledConn).stream.Reusable())
		}

		decoded, err := decompress(resp.Header, resp.Body)
		if err != nil {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			release()
			if c.Metrics != nil {
				c.Metrics.IncrementFailed()
			}
			return nil, neterror.Wrap(neterror.InvalidResponse, current.URL.String(), err)
		}

		if c.Metrics != nil {
			c.Metrics.IncrementSuccess()
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       &releasingBody{ReadCloser: decoded, release: release},
			Request:    current,
			ALPN:       conn.Raw.(*pooledConn).alpn,
		}, nil
	}
}

// brokenReusedConn signals sendOnce failed on a connection that came from
// the idle pool (not freshly dialed), so the caller may retry once with a
// forced-fresh connection.
type brokenReusedConn struct{ err error }

func (e *brokenReusedConn) Error() string { return e.err.Error() }
func (e *brokenReusedConn) Unwrap() error { return e.err }

func (c *Client) sendOnce(ctx context.Context, r *Request, allowReuse bool) (*http.Response, pool.Key, *pool.Conn, error) {
	proxyURL, err := c.resolveProxy(r.URL)
	if err != nil {
		return nil, pool.Key{}, nil, err
	}
	key := groupKey(r.URL, proxyURL)

	dial := func(ctx context.Context) (*pool.Conn, error) {
		result, err := c.Connect.Dial(ctx, r.URL, proxyURL, c.Profile)
		if err != nil {
			if c.Metrics != nil {
				c.Metrics.IncrementConnectFailure()
			}
			return nil, err
		}
		if c.Metrics != nil {
			c.Metrics.IncrementConnect()
		}
		stream, err := streamfactory.WrapConn(result.Conn, result.NegotiatedALPN, c.Profile.H2)
		if err != nil {
			_ = result.Conn.Close()
			return nil, err
		}
		now := time.Now()
		return &pool.Conn{
			Raw:            &pooledConn{Conn: result.Conn, stream: stream, alpn: result.NegotiatedALPN},
			NegotiatedALPN: result.NegotiatedALPN,
			CreatedAt:      now,
			LastUsed:       now,
		}, nil
	}

	var conn *pool.Conn
	var reused bool
	if allowReuse {
		conn, reused, err = c.Pool.Acquire(ctx, key, dial)
	} else {
		conn, err = c.Pool.AcquireFresh(ctx, key, dial)
	}
	if err != nil {
		return nil, key, nil, err
	}
	pc := conn.Raw.(*pooledConn)

	httpReq, err := c.buildHTTPRequest(ctx, r)
	if err != nil {
		c.Pool.Release(key, conn, false)
		return nil, key, nil, err
	}

	resp, err := pc.stream.RoundTrip(httpReq)
	if err != nil {
		c.Pool.Release(key, conn, false)
		if reused && allowReuse {
			return nil, key, nil, &brokenReusedConn{err: err}
		}
		return nil, key, nil, neterror.Wrap(neterror.ConnectionReset, r.URL.Host, err)
	}
	return resp, key, conn, nil
}

// buildHTTPRequest assembles the outgoing *http.Request with the
// profile's default headers as the base layer and r.Header layered on top
// (spec.md §4.7 steps (b)+(c)), plus the jar's Cookie header for r.URL if
// the caller didn't already set one explicitly.
func (c *Client) buildHTTPRequest(ctx context.Context, r *Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), r.Body)
	if err != nil {
		return nil, neterror.Wrap(neterror.InvalidURL, r.URL.String(), err)
	}
	httpReq.GetBody = r.GetBody
	httpReq.Host = r.URL.Host

	h := c.Profile.DefaultHeaders()
	h.MergeOverride(r.Header)
	if c.Jar != nil && !h.Has("Cookie") {
		if cookieHeader := c.Jar.CookieHeader(r.URL); cookieHeader != "" {
			h.Set("Cookie", cookieHeader)
		}
	}
	if c.AuthCache != nil && !h.Has("Authorization") {
		if cred, ok := c.Credentials[r.URL.Hostname()]; ok {
			if creds, authorized, err := c.AuthCache.Authorize(r.URL.Hostname(), cred.Username, cred.Password, httpReq); err == nil && authorized {
				h.Set("Authorization", creds.Header)
			}
		}
	}
	h.ApplyToRequest(httpReq)
	return httpReq, nil
}

// absorbResponseMetadata stores Set-Cookie values into the jar and learns
// any Strict-Transport-Security policy the response carries.
func (c *Client) absorbResponseMetadata(u *url.URL, resp *http.Response) {
	if c.Jar != nil {
		for _, line := range resp.Header.Values("Set-Cookie") {
			c.Jar.ParseAndSave(u, line)
		}
	}
	if c.Connect != nil && c.Connect.HSTS != nil && u.Scheme == "https" {
		if hsts := resp.Header.Get("Strict-Transport-Security"); hsts != "" {
			applyHSTS(c.Connect.HSTS, u.Hostname(), hsts)
		}
	}
	if c.AuthCache != nil && resp.StatusCode == http.StatusUnauthorized {
		_ = c.AuthCache.Observe(u.Hostname(), resp)
	}
}

func applyHSTS(store *security.HSTSStore, host, headerValue string) {
	includeSubdomains := false
	maxAge := -1
	for _, directive := range strings.Split(headerValue, ";") {
		directive = strings.TrimSpace(directive)
		name, value, _ := strings.Cut(directive, "=")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "includesubdomains":
			includeSubdomains = true
		case "max-age":
			fmt.Sscanf(strings.TrimSpace(value), "%d", &maxAge) //nolint:errcheck
		}
	}
	if maxAge >= 0 {
		store.Set(host, includeSubdomains, time.Duration(maxAge)*time.Second)
	}
}

// redirectTarget reports whether resp is a redirect that should be
// followed, and if so, returns the resolved target URL plus the next
// Request built per spec.md §4.7's redirect rules: 301/302 downgrade a
// POST to GET (matching browser, not strict-HTTP, semantics); 303 always
// downgrades to GET (except HEAD, which stays HEAD); 307/308 preserve
// the method and body; credentials (Authorization, Cookie,
// Proxy-Authorization) are stripped whenever the redirect crosses origin.
func (c *Client) redirectTarget(current *Request, resp *http.Response) (*url.URL, *Request, bool) {
	switch resp.StatusCode {
	case 301, 302, 303, 307, 308:
	default:
		return nil, nil, false
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, nil, false
	}
	next, err := current.URL.Parse(loc)
	if err != nil {
		return nil, nil, false
	}

	method := current.Method
	var body io.Reader
	var getBody func() (io.ReadCloser, error)
	switch resp.StatusCode {
	case 303:
		if method != http.MethodHead {
			method = http.MethodGet
		}
	case 301, 302:
		if method == http.MethodPost {
			method = http.MethodGet
		} else {
			body, getBody = current.Body, current.GetBody
		}
	default: // 307, 308
		body, getBody = current.Body, current.GetBody
		if getBody != nil {
			if rc, err := getBody(); err == nil {
				body = rc
			}
		}
	}

	h := current.Header.Clone()
	if !sameOrigin(current.URL, next) {
		h.Del("Authorization")
		h.Del("Cookie")
		h.Del("Proxy-Authorization")
	}

	return next, &Request{Method: method, URL: next, Header: h, Body: body, GetBody: getBody}, true
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Hostname() == b.Hostname() && a.Port() == b.Port()
}

func (c *Client) resolveProxy(u *url.URL) (*url.URL, error) {
	if c.Proxy == nil {
		return nil, nil
	}
	return c.Proxy(u)
}

func groupKey(u *url.URL, proxyURL *url.URL) pool.Key {
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	fingerprint := ""
	if proxyURL != nil {
		fingerprint = proxyURL.String()
	}
	return pool.Key{Scheme: u.Scheme, Host: u.Hostname(), Port: port, ProxyFingerprint: fingerprint}
}

// releasingBody wraps a response body so the pooled connection is
// released back to the pool exactly once, when the caller closes the
// body — matching net/http's own contract that the connection is in use
// until Body.Close.
type releasingBody struct {
	io.ReadCloser
	release func()
}

// Close drains any unread response body before releasing the underlying
// connection back to the pool — an H1 connection with bytes still queued
// on the wire cannot be handed to the next request, same reasoning as
// net/http's own transport body wrapper.
func (b *releasingBody) Close() error {
	_, _ = io.Copy(io.Discard, b.ReadCloser)
	err := b.ReadCloser.Close()
	b.release()
	return err
}
