package request_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	utls "github.com/refraction-networking/utls"

	"github.com/lunarforge/chromenet/connectjob"
	"github.com/lunarforge/chromenet/cookiejar"
	"github.com/lunarforge/chromenet/emulation"
	"github.com/lunarforge/chromenet/h2fingerprint"
	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/metrics"
	"github.com/lunarforge/chromenet/pool"
	"github.com/lunarforge/chromenet/request"
	"github.com/lunarforge/chromenet/security"
	"github.com/lunarforge/chromenet/tlsconfig"
)

func testProfile() emulation.Profile {
	return emulation.Profile{
		Name: "test",
		TLS:  tlsconfig.Spec{HelloID: utls.HelloChrome_120},
		H2:   h2fingerprint.Chrome120,
		DefaultHeaders: func() *header.Header {
			h := header.New()
			h.Add("User-Agent", "chromenet-test/1.0")
			return h
		},
		UserAgent: "chromenet-test/1.0",
	}
}

func newTestClient(t *testing.T) *request.Client {
	t.Helper()
	p := pool.New(pool.Options{PerGroupCap: 4, GlobalCap: 16})
	t.Cleanup(p.Close)
	job := connectjob.New(nil, security.NewHSTSStore(), security.NewPinStore())
	jar := cookiejar.New(cookiejar.Options{})
	return request.NewClient(p, job, jar, testProfile())
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestDoSimpleGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodGet,
		URL:    mustParse(t, srv.URL+"/"),
		Header: header.New(),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestDoFollowsRedirectAndDowngradesPOSTOn302(t *testing.T) {
	var sawMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		sawMethod = r.Method
		fmt.Fprint(w, "done")
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodPost,
		URL:    mustParse(t, srv.URL+"/start"),
		Header: header.New(),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if sawMethod != http.MethodGet {
		t.Errorf("final method = %q, want GET (302 downgrade)", sawMethod)
	}
	if resp.Request.URL.Path != "/end" {
		t.Errorf("final path = %q, want /end", resp.Request.URL.Path)
	}
}

func TestDoStripsAuthorizationOnCrossOriginRedirect(t *testing.T) {
	var sawAuth string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "ok")
	}))
	defer other.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/", http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	c := newTestClient(t)
	h := header.New()
	h.Add("Authorization", "Bearer secret")
	resp, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodGet,
		URL:    mustParse(t, srv.URL+"/"),
		Header: h,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if sawAuth != "" {
		t.Errorf("Authorization leaked cross-origin: %q", sawAuth)
	}
}

func TestDoSavesCookiesAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc123"})
			fmt.Fprint(w, "set")
			return
		}
		fmt.Fprint(w, "cookie="+r.Header.Get("Cookie"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp1, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodGet,
		URL:    mustParse(t, srv.URL+"/set"),
		Header: header.New(),
	})
	if err != nil {
		t.Fatalf("Do 1: %v", err)
	}
	resp1.Body.Close()

	resp2, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodGet,
		URL:    mustParse(t, srv.URL+"/check"),
		Header: header.New(),
	})
	if err != nil {
		t.Fatalf("Do 2: %v", err)
	}
	defer resp2.Body.Close()
	body, _ := io.ReadAll(resp2.Body)
	if string(body) != "cookie=sid=abc123" {
		t.Errorf("body = %q, want cookie=sid=abc123", body)
	}
}

func TestDoRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	c := newTestClient(t)
	c.Metrics = metrics.NewMetrics()
	resp, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodGet,
		URL:    mustParse(t, srv.URL+"/"),
		Header: header.New(),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	total, success, failed := c.Metrics.Snapshot()
	if total != 1 {
		t.Errorf("TotalRequests = %d, want 1", total)
	}
	if success != 1 {
		t.Errorf("Success = %d, want 1", success)
	}
	if failed != 0 {
		t.Errorf("Failed = %d, want 0", failed)
	}
	if c.Metrics.Connects != 1 {
		t.Errorf("Connects = %d, want 1", c.Metrics.Connects)
	}
}

func TestDoTooManyRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(t)
	c.MaxRedirects = 3
	_, err := c.Do(context.Background(), &request.Request{
		Method: http.MethodGet,
		URL:    mustParse(t, srv.URL+"/"),
		Header: header.New(),
	})
	if err == nil {
		t.Fatal("expected TooManyRedirects error")
	}
}
