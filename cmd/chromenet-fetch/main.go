// chromenet-fetch is a thin example harness that exercises a
// client.Context end to end: load configuration, pick an emulation
// profile, send one request, and print the status line, the response
// headers and the body. It exists to drive the library manually; it is not one of
// chromenet's core subsystems.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/lunarforge/chromenet/client"
	"github.com/lunarforge/chromenet/config"
	"github.com/lunarforge/chromenet/emulation/profiles"
	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/logger"
	"github.com/lunarforge/chromenet/request"
)

func sortedKeys(h map[string][]string) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	profileName := flag.String("profile", "chrome-120", "Emulation profile: chrome-120, chrome-131, firefox-120, safari-16, edge-120, okhttp-5, opera-119")
	proxyAddr := flag.String("proxy", "", "Proxy URL for this single request, e.g. http://host:port (overrides -config's proxy file)")
	targetURL := flag.String("url", "", "URL to fetch (required)")
	method := flag.String("method", "GET", "HTTP method")
	timeout := flag.Duration("timeout", 30*time.Second, "End-to-end request timeout")
	flag.Parse()

	log := logger.New(logger.LevelInfo)

	if *targetURL == "" {
		log.Error("missing required -url flag")
		flag.Usage()
		os.Exit(2)
	}

	// ── Configuration ──────────────────────────────────────────────────────
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
	}

	profile, ok := profiles.ByName(*profileName)
	if !ok {
		log.Errorf("unknown profile %q", *profileName)
		os.Exit(1)
	}

	// ── Context ────────────────────────────────────────────────────────────
	ctx, err := client.New(cfg, profile)
	if err != nil {
		log.Errorf("failed to build client context: %v", err)
		os.Exit(1)
	}
	defer ctx.Close()

	if *proxyAddr != "" {
		proxyURL, err := url.Parse(*proxyAddr)
		if err != nil {
			log.Errorf("invalid -proxy %q: %v", *proxyAddr, err)
			os.Exit(1)
		}
		ctx.RequestClient.Proxy = func(*url.URL) (*url.URL, error) { return proxyURL, nil }
	}

	u, err := url.Parse(*targetURL)
	if err != nil {
		log.Errorf("invalid -url %q: %v", *targetURL, err)
		os.Exit(1)
	}

	// ── Request ────────────────────────────────────────────────────────────
	reqCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := ctx.RequestClient.Do(reqCtx, &request.Request{
		Method: *method,
		URL:    u,
		Header: header.New(),
	})
	if err != nil {
		log.Errorf("request failed: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("%s %d\n", *method, resp.StatusCode)
	for _, key := range sortedKeys(resp.Header) {
		for _, v := range resp.Header[key] {
			fmt.Printf("%s: %s\n", key, v)
		}
	}
	fmt.Println()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("failed reading response body: %v", err)
		os.Exit(1)
	}
	os.Stdout.Write(body)

	total, success, failed := ctx.Metrics.Snapshot()
	log.Infof("done – total: %d | success: %d | failed: %d | alpn: %s", total, success, failed, resp.ALPN)
}
