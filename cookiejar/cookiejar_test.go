package cookiejar_test

import (
	"net/url"
	"testing"

	"github.com/lunarforge/chromenet/cookiejar"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestParseAndSaveHostOnly(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.com/")
	j.ParseAndSave(u, "session=abc123; Path=/")

	got := j.CookieHeader(u)
	if got != "session=abc123" {
		t.Errorf("CookieHeader = %q, want session=abc123", got)
	}

	sub := mustURL(t, "https://sub.example.com/")
	if got := j.CookieHeader(sub); got != "" {
		t.Errorf("host-only cookie leaked to subdomain: %q", got)
	}
}

func TestParseAndSaveDomainCookieAppliesToSubdomains(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.com/")
	j.ParseAndSave(u, "pref=dark; Domain=example.com; Path=/")

	sub := mustURL(t, "https://sub.example.com/")
	if got := j.CookieHeader(sub); got != "pref=dark" {
		t.Errorf("CookieHeader(sub) = %q, want pref=dark", got)
	}
}

func TestPublicSuffixSupercookieRejected(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.co.uk/")
	j.ParseAndSave(u, "tracker=evil; Domain=co.uk; Path=/")

	if got := j.CookieHeader(u); got != "" {
		t.Errorf("expected supercookie to be rejected, got %q", got)
	}
	if j.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after rejected supercookie", j.Count())
	}
}

func TestPublicSuffixSupercookieRejectedForBareTLD(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.com/")
	j.ParseAndSave(u, "tracker=evil; Domain=com; Path=/")

	if got := j.CookieHeader(u); got != "" {
		t.Errorf("expected supercookie to be rejected, got %q", got)
	}
	if j.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after rejected supercookie", j.Count())
	}
}

func TestSecureCookieNotSentOverPlainHTTP(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	httpsURL := mustURL(t, "https://example.com/")
	j.ParseAndSave(httpsURL, "sid=xyz; Secure; Path=/")

	httpURL := mustURL(t, "http://example.com/")
	if got := j.CookieHeader(httpURL); got != "" {
		t.Errorf("secure cookie leaked over HTTP: %q", got)
	}
	if got := j.CookieHeader(httpsURL); got != "sid=xyz" {
		t.Errorf("CookieHeader(https) = %q, want sid=xyz", got)
	}
}

func TestPathMatchOnlyUnderPrefix(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.com/admin/login")
	j.ParseAndSave(u, "adm=1; Path=/admin")

	under := mustURL(t, "https://example.com/admin/settings")
	if got := j.CookieHeader(under); got != "adm=1" {
		t.Errorf("CookieHeader(/admin/settings) = %q, want adm=1", got)
	}

	outside := mustURL(t, "https://example.com/other")
	if got := j.CookieHeader(outside); got != "" {
		t.Errorf("CookieHeader(/other) = %q, want empty", got)
	}
}

func TestOrderedByPathLengthDescending(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	root := mustURL(t, "https://example.com/")
	deep := mustURL(t, "https://example.com/a/b/")
	j.ParseAndSave(root, "a=1; Path=/")
	j.ParseAndSave(deep, "b=2; Path=/a/b")

	got := j.CookieHeader(deep)
	if got != "b=2; a=1" {
		t.Errorf("CookieHeader = %q, want b=2; a=1 (longer path first)", got)
	}
}

func TestPerDomainCapEvictsOldest(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{PerDomainCap: 2, GlobalCap: 100})
	u := mustURL(t, "https://example.com/")
	j.ParseAndSave(u, "a=1; Path=/")
	j.ParseAndSave(u, "b=2; Path=/")
	j.ParseAndSave(u, "c=3; Path=/")

	if j.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 after per-domain cap eviction", j.Count())
	}
	got := j.CookieHeader(u)
	if got == "" {
		t.Fatal("expected surviving cookies")
	}
}

func TestNetscapeRoundTrip(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.com/")
	j.ParseAndSave(u, "session=abc; Path=/")

	exported := j.ExportNetscape()

	j2 := cookiejar.New(cookiejar.Options{})
	j2.ImportNetscape(exported)

	if got := j2.CookieHeader(u); got != "session=abc" {
		t.Errorf("round-tripped CookieHeader = %q, want session=abc", got)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	j := cookiejar.New(cookiejar.Options{})
	u := mustURL(t, "https://example.com/")
	j.ParseAndSave(u, "a=1; Path=/")
	j.Clear()
	if j.Count() != 0 {
		t.Errorf("Count() = %d after Clear, want 0", j.Count())
	}
}
