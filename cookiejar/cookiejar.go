// Package cookiejar implements an RFC 6265-style cookie jar with
// public-suffix supercookie protection and LRU-style eviction (spec.md
// §4.6). The teacher's session engine delegated entirely to the standard
// library's net/http/cookiejar, which has no eviction caps and no
// Netscape-format import/export; this package is a from-scratch
// implementation grounded on the original chromenet crate's
// src/cookies/monster.rs (per original_source/_INDEX.md) and on the RFC
// 6265 matching rules spec.md §4.6 restates directly.
package cookiejar

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lunarforge/chromenet/psl"
)

// Cookie is one stored cookie record.
type Cookie struct {
	Name     string
	Value    string
	Domain   string // effective domain: lowercased, leading dot stripped
	Path     string
	Secure   bool
	HTTPOnly bool
	HostOnly bool
	Expires  time.Time // zero means session cookie (never expires on its own)

	Created time.Time
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && now.After(c.Expires)
}

type key struct {
	domain string
	path   string
	name   string
}

// Jar is a concurrency-safe cookie store. The zero value is not usable;
// construct with New.
type Jar struct {
	mu             sync.Mutex
	entries        map[key]Cookie
	perDomainCap   int
	globalCap      int
	now            func() time.Time
}

// Options configures a Jar's eviction caps. Zero values fall back to
// spec.md §4.6's documented defaults (50 per domain, 3000 global).
type Options struct {
	PerDomainCap int
	GlobalCap    int
}

// New creates an empty Jar.
func New(opts Options) *Jar {
	if opts.PerDomainCap <= 0 {
		opts.PerDomainCap = 50
	}
	if opts.GlobalCap <= 0 {
		opts.GlobalCap = 3000
	}
	return &Jar{
		entries:      make(map[key]Cookie),
		perDomainCap: opts.PerDomainCap,
		globalCap:    opts.GlobalCap,
		now:          time.Now,
	}
}

// ParseAndSave parses one Set-Cookie header value received in response to
// u and stores it, applying PSL rejection and filling in the effective
// domain and host-only flag. Unparseable input, a PSL violation, or a
// path/domain mismatch against u are silently rejected — not an error to
// the caller, per spec.md §4.6.
func (j *Jar) ParseAndSave(u *url.URL, setCookieLine string) {
	c, ok := parseSetCookie(setCookieLine, j.now())
	if !ok {
		return
	}

	reqHost := canonicalHost(u.Hostname())

	if c.Domain == "" {
		c.Domain = reqHost
		c.HostOnly = true
	} else {
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if psl.IsPublicSuffix(domain) {
			return // supercookie rejected
		}
		if domain != reqHost && !strings.HasSuffix(reqHost, "."+domain) {
			return // domain mismatch: request host is not within the cookie's domain
		}
		c.Domain = domain
		c.HostOnly = false
	}

	if c.Path == "" {
		c.Path = defaultPath(u.Path)
	} else if !pathMatches(c.Path, u.Path) {
		return // path mismatch: request path is not within the cookie's path
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[key{domain: c.Domain, path: c.Path, name: c.Name}] = c
	j.evictLocked(c.Domain)
}

// CookiesFor returns the cookies applicable to u, ordered by descending
// path length then ascending creation time, per spec.md §4.6 step 2-3.
func (j *Jar) CookiesFor(u *url.URL) []Cookie {
	reqHost := canonicalHost(u.Hostname())
	candidates := psl.ParentLabels(reqHost)
	isSecure := u.Scheme == "https"
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Cookie
	for _, c := range j.entries {
		if c.expired(now) {
			continue
		}
		if !domainMatches(c, reqHost, candidates) {
			continue
		}
		if !pathMatches(c.Path, u.Path) {
			continue
		}
		if c.Secure && !isSecure {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, k int) bool {
		if len(out[i].Path) != len(out[k].Path) {
			return len(out[i].Path) > len(out[k].Path)
		}
		return out[i].Created.Before(out[k].Created)
	})
	return out
}

// CookieHeader renders CookiesFor(u) as a single Cookie header value.
func (j *Jar) CookieHeader(u *url.URL) string {
	cookies := j.CookiesFor(u)
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// Clear removes every stored cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = make(map[key]Cookie)
}

// Count returns the number of stored cookies.
func (j *Jar) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// IterAll calls fn for every stored cookie, in unspecified order. fn must
// not call back into the Jar.
func (j *Jar) IterAll(fn func(Cookie)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range j.entries {
		fn(c)
	}
}

// domainMatches implements RFC 6265 domain matching: host-only requires
// an exact case-insensitive match against the request host; otherwise the
// request host must equal the cookie domain or end with "."+domain.
func domainMatches(c Cookie, reqHost string, candidates []string) bool {
	if c.HostOnly {
		return c.Domain == reqHost
	}
	for _, candidate := range candidates {
		if candidate == c.Domain {
			return true
		}
	}
	return reqHost == c.Domain || strings.HasSuffix(reqHost, "."+c.Domain)
}

// pathMatches implements RFC 6265 §5.1.4 path-match: equal, requestPath
// has cookiePath as a prefix ending in "/", or the next character after
// the prefix is "/".
func pathMatches(cookiePath, requestPath string) bool {
	if requestPath == "" {
		requestPath = "/"
	}
	if cookiePath == requestPath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

func defaultPath(reqPath string) string {
	if reqPath == "" || reqPath[0] != '/' {
		return "/"
	}
	idx := strings.LastIndexByte(reqPath, '/')
	if idx <= 0 {
		return "/"
	}
	return reqPath[:idx]
}

func canonicalHost(host string) string {
	return strings.ToLower(host)
}

// evictLocked enforces the per-domain and global caps after an insert,
// per spec.md §4.6 eviction rules. Caller must hold j.mu.
func (j *Jar) evictLocked(domain string) {
	j.evictDomainLocked(domain)
	for len(j.entries) > j.globalCap {
		j.evictGloballyOldestLocked()
	}
}

func (j *Jar) evictDomainLocked(domain string) {
	var domainKeys []key
	for k := range j.entries {
		if k.domain == domain {
			domainKeys = append(domainKeys, k)
		}
	}
	if len(domainKeys) <= j.perDomainCap {
		return
	}
	sort.Slice(domainKeys, func(i, k int) bool {
		return j.entries[domainKeys[i]].Created.Before(j.entries[domainKeys[k]].Created)
	})
	excess := len(domainKeys) - j.perDomainCap
	for i := 0; i < excess; i++ {
		delete(j.entries, domainKeys[i])
	}
}

func (j *Jar) evictGloballyOldestLocked() {
	var oldestKey key
	var oldest time.Time
	first := true
	for k, c := range j.entries {
		if first || c.Created.Before(oldest) {
			oldestKey, oldest, first = k, c.Created, false
		}
	}
	if !first {
		delete(j.entries, oldestKey)
	}
}

// parseSetCookie parses a single Set-Cookie header value into a Cookie.
// ok is false for unparseable input (no NAME=VALUE pair).
func parseSetCookie(line string, now time.Time) (Cookie, bool) {
	parts := strings.Split(line, ";")
	if len(parts) == 0 {
		return Cookie{}, false
	}

	nameValue := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return Cookie{}, false
	}
	c := Cookie{
		Name:    strings.TrimSpace(nameValue[:eq]),
		Value:   strings.TrimSpace(nameValue[eq+1:]),
		Created: now,
	}
	if c.Name == "" {
		return Cookie{}, false
	}

	var maxAge *int
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		attrName, attrValue, _ := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(attrName)) {
		case "domain":
			c.Domain = strings.TrimSpace(attrValue)
		case "path":
			c.Path = strings.TrimSpace(attrValue)
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "expires":
			if t, err := time.Parse(time.RFC1123, strings.TrimSpace(attrValue)); err == nil {
				c.Expires = t
			} else if t, err := time.Parse("Mon, 02-Jan-2006 15:04:05 MST", strings.TrimSpace(attrValue)); err == nil {
				c.Expires = t
			}
		case "max-age":
			var seconds int
			if _, err := fmt.Sscanf(strings.TrimSpace(attrValue), "%d", &seconds); err == nil {
				maxAge = &seconds
			}
		}
	}
	if maxAge != nil {
		if *maxAge <= 0 {
			c.Expires = now.Add(-time.Second) // already expired: immediate deletion
		} else {
			c.Expires = now.Add(time.Duration(*maxAge) * time.Second)
		}
	}

	return c, true
}
