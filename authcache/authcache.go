// Package authcache caches HTTP Digest authentication challenges per host
// and computes the Authorization header for a subsequent request from a
// cached challenge, per spec.md §3's (host, port, realm) → credentials map.
//
// Full Digest session auth — automatically retrying a 401 and re-sending
// the request — is out of scope (spec.md §1 Non-goals); request.Client
// consults Cache once per spec.md §4.7 step (e) and leaves any retry loop
// to the caller.
package authcache

import (
	"net/http"
	"sync"

	"github.com/icholy/digest"

	"github.com/lunarforge/chromenet/neterror"
)

// entry is a cached challenge plus the number of times it has been used to
// derive credentials, mirroring the nonce-count ("nc") digest requires.
type entry struct {
	mu  sync.Mutex
	chl *digest.Challenge
	n   int
}

// Cache maps host → cached Digest challenge, sharded with sync.Map so that
// concurrent sessions hitting many distinct origins never contend on one
// lock, per token.HeartbeatManager's sessions field.
type Cache struct {
	byHost sync.Map // string (host) -> *entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{}
}

// Credentials is the computed Authorization header value for one request,
// plus the realm it was issued for.
type Credentials struct {
	Realm  string
	Header string
}

// Observe parses a 401 response's WWW-Authenticate header and stores its
// Digest challenge for host, replacing any previous entry. If the header
// does not carry a Digest challenge chromenet understands, it drops any
// cached entry for host and returns a neterror.InvalidResponse error
// wrapping the parse failure.
func (c *Cache) Observe(host string, resp *http.Response) error {
	chl, err := digest.FindChallenge(resp.Header)
	if err != nil {
		c.byHost.Delete(host)
		return neterror.Wrap(neterror.InvalidResponse, host, err)
	}
	c.byHost.Store(host, &entry{chl: chl})
	return nil
}

// Authorize computes the Authorization header for req against host's
// cached challenge. ok is false if no challenge has been observed for host
// yet, in which case the caller must send the request unauthenticated
// first and call Observe on the resulting 401.
func (c *Cache) Authorize(host, username, password string, req *http.Request) (Credentials, bool, error) {
	v, ok := c.byHost.Load(host)
	if !ok {
		return Credentials{}, false, nil
	}
	e := v.(*entry)

	e.mu.Lock()
	e.n++
	count := e.n
	chl := e.chl
	e.mu.Unlock()

	opt := digest.Options{
		Method:   req.Method,
		URI:      req.URL.RequestURI(),
		GetBody:  req.GetBody,
		Count:    count,
		Username: username,
		Password: password,
	}
	cred, err := digest.Digest(chl, opt)
	if err != nil {
		return Credentials{}, false, neterror.Wrap(neterror.InvalidResponse, host, err)
	}
	return Credentials{Realm: chl.Realm, Header: cred.String()}, true, nil
}

// Forget drops any cached challenge for host, e.g. after a second 401
// shows the cached challenge is stale.
func (c *Cache) Forget(host string) {
	c.byHost.Delete(host)
}
