package authcache_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lunarforge/chromenet/authcache"
)

func challengeResponse(t *testing.T, reqURL string) *http.Response {
	t.Helper()
	u, err := url.Parse(reqURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusUnauthorized,
		Header: http.Header{
			"Www-Authenticate": {`Digest realm="example", qop="auth", nonce="abc123", opaque="xyz"`},
		},
		Request: &http.Request{URL: u},
	}
}

func TestAuthorizeWithoutObserveReturnsNotOK(t *testing.T) {
	c := authcache.New()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/secret", nil)
	_, ok, err := c.Authorize("example.com", "alice", "hunter2", req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false before any challenge observed")
	}
}

func TestObserveThenAuthorizeProducesDigestHeader(t *testing.T) {
	c := authcache.New()
	resp := challengeResponse(t, "http://example.com/secret")
	if err := c.Observe("example.com", resp); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/secret", nil)
	cred, ok, err := c.Authorize("example.com", "alice", "hunter2", req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true after Observe")
	}
	if cred.Realm != "example" {
		t.Errorf("Realm = %q, want %q", cred.Realm, "example")
	}
	if cred.Header == "" {
		t.Error("Header is empty")
	}
}

func TestAuthorizeIncrementsNonceCount(t *testing.T) {
	c := authcache.New()
	resp := challengeResponse(t, "http://example.com/secret")
	if err := c.Observe("example.com", resp); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/secret", nil)
	first, _, err := c.Authorize("example.com", "alice", "hunter2", req)
	if err != nil {
		t.Fatalf("Authorize 1: %v", err)
	}
	second, _, err := c.Authorize("example.com", "alice", "hunter2", req)
	if err != nil {
		t.Fatalf("Authorize 2: %v", err)
	}
	if first.Header == second.Header {
		t.Error("expected nonce count to change the computed header across calls")
	}
}

func TestForgetClearsCachedChallenge(t *testing.T) {
	c := authcache.New()
	resp := challengeResponse(t, "http://example.com/secret")
	if err := c.Observe("example.com", resp); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	c.Forget("example.com")

	req := httptest.NewRequest(http.MethodGet, "http://example.com/secret", nil)
	_, ok, err := c.Authorize("example.com", "alice", "hunter2", req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false after Forget")
	}
}

func TestObserveWithoutDigestChallengeFails(t *testing.T) {
	c := authcache.New()
	u, _ := url.Parse("http://example.com/secret")
	resp := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Header:     http.Header{"Www-Authenticate": {`Basic realm="example"`}},
		Request:    &http.Request{URL: u},
	}
	if err := c.Observe("example.com", resp); err == nil {
		t.Fatal("expected error observing a non-Digest challenge")
	}
}
