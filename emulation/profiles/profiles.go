// Package profiles provides concrete emulation.Profile values for the
// browsers chromenet impersonates, generalized from the teacher's
// fingerprint.ChromeProfile/FirefoxProfile pair (which only carried TLS
// cipher order and headers, no uTLS ClientHello or H2 fingerprint) into
// full TLS+H2+header triples.
package profiles

import (
	utls "github.com/refraction-networking/utls"

	"github.com/lunarforge/chromenet/emulation"
	"github.com/lunarforge/chromenet/h2fingerprint"
	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/tlsconfig"
)

// Chrome120 mimics Windows Chrome 120: the uTLS Chrome 120 ClientHello
// parrot, Chrome's captured HTTP/2 SETTINGS, and the header order/casing
// a real Windows Chrome 120 client sends, lifted from the teacher's
// ChromeOrderedHeaders.
func Chrome120() emulation.Profile {
	const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	return emulation.Profile{
		Name: "chrome-120",
		TLS: tlsconfig.Spec{
			HelloID: utls.HelloChrome_120,
			ALPN:    []string{"h2", "http/1.1"},
		},
		H2:        h2fingerprint.Chrome120,
		UserAgent: userAgent,
		DefaultHeaders: func() *header.Header {
			h := header.New()
			h.Add("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
			h.Add("sec-ch-ua-mobile", "?0")
			h.Add("sec-ch-ua-platform", `"Windows"`)
			h.Add("Upgrade-Insecure-Requests", "1")
			h.Add("User-Agent", userAgent)
			h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
			h.Add("sec-fetch-site", "none")
			h.Add("sec-fetch-mode", "navigate")
			h.Add("sec-fetch-user", "?1")
			h.Add("sec-fetch-dest", "document")
			h.Add("accept-encoding", "gzip, deflate, br")
			h.Add("accept-language", "en-US,en;q=0.9")
			return h
		},
	}
}

// Chrome131 is Chrome120 with the uTLS Chrome 131 ClientHello parrot and
// an updated version string, otherwise identical header order.
func Chrome131() emulation.Profile {
	p := Chrome120()
	const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	p.Name = "chrome-131"
	p.TLS.HelloID = utls.HelloChrome_131
	p.UserAgent = userAgent
	p.DefaultHeaders = func() *header.Header {
		h := Chrome120().DefaultHeaders()
		h.Set("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="131", "Google Chrome";v="131"`)
		h.Set("User-Agent", userAgent)
		return h
	}
	return p
}

// Firefox120 mimics Firefox 120 on Windows: Firefox's distinct H2
// pseudo-header order (:method, :path, :authority, :scheme) and header
// set, lifted from the teacher's FirefoxProfile.
func Firefox120() emulation.Profile {
	const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0"
	return emulation.Profile{
		Name: "firefox-120",
		TLS: tlsconfig.Spec{
			HelloID: utls.HelloFirefox_102,
			ALPN:    []string{"h2", "http/1.1"},
		},
		H2:        h2fingerprint.Firefox120,
		UserAgent: userAgent,
		DefaultHeaders: func() *header.Header {
			h := header.New()
			h.Add("User-Agent", userAgent)
			h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
			h.Add("Accept-Language", "en-US,en;q=0.5")
			h.Add("Accept-Encoding", "gzip, deflate, br")
			h.Add("Upgrade-Insecure-Requests", "1")
			h.Add("Sec-Fetch-Dest", "document")
			h.Add("Sec-Fetch-Mode", "navigate")
			h.Add("Sec-Fetch-Site", "none")
			h.Add("Sec-Fetch-User", "?1")
			return h
		},
	}
}

// Safari16 mimics Safari 16 on macOS.
func Safari16() emulation.Profile {
	const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/16.0 Safari/605.1.15"
	return emulation.Profile{
		Name: "safari-16",
		TLS: tlsconfig.Spec{
			HelloID: utls.HelloSafari_Auto,
			ALPN:    []string{"h2", "http/1.1"},
		},
		H2:        h2fingerprint.Safari16,
		UserAgent: userAgent,
		DefaultHeaders: func() *header.Header {
			h := header.New()
			h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
			h.Add("Accept-Language", "en-US,en;q=0.9")
			h.Add("Accept-Encoding", "gzip, deflate, br")
			h.Add("User-Agent", userAgent)
			return h
		},
	}
}

// Edge120 mimics Edge 120 on Windows: Chromium-based, so it shares
// Chrome's TLS/H2 fingerprint but advertises its own brand and UA.
func Edge120() emulation.Profile {
	const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	p := Chrome120()
	p.Name = "edge-120"
	p.UserAgent = userAgent
	p.DefaultHeaders = func() *header.Header {
		h := Chrome120().DefaultHeaders()
		h.Set("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Microsoft Edge";v="120"`)
		h.Set("User-Agent", userAgent)
		return h
	}
	return p
}

// OkHttp5 mimics OkHttp 5.0's Android HTTP client: no uTLS GREASE or
// extension permutation (OkHttp's own TLS stack doesn't do either),
// OkHttp's captured H2 SETTINGS, and its minimal header set, lifted from
// original_source's emulation/profiles/okhttp.rs.
func OkHttp5() emulation.Profile {
	const userAgent = "okhttp/5.0.0-alpha2"
	return emulation.Profile{
		Name: "okhttp-5",
		TLS: tlsconfig.Spec{
			HelloID: utls.HelloAndroid_11_OkHttp,
			ALPN:    []string{"h2", "http/1.1"},
		},
		H2:        h2fingerprint.OkHttp5,
		UserAgent: userAgent,
		DefaultHeaders: func() *header.Header {
			h := header.New()
			h.Add("User-Agent", userAgent)
			h.Add("Accept", "*/*")
			h.Add("Accept-Language", "en-US,en;q=0.9")
			h.Add("Accept-Encoding", "gzip, deflate, br")
			return h
		},
	}
}

// Opera119 mimics Opera 119, built on Chromium 134: Opera is
// Chromium-based, so it shares Chrome's TLS/H2 fingerprint (reusing
// Chrome120's uTLS hello and h2fingerprint.Opera119, itself an alias for
// Chrome120's) but advertises Opera's own brand in its UA and
// sec-ch-ua/client-hints headers, lifted from
// original_source's emulation/profiles/opera.rs.
func Opera119() emulation.Profile {
	const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36 OPR/119.0.0.0"
	p := Chrome120()
	p.Name = "opera-119"
	p.H2 = h2fingerprint.Opera119
	p.UserAgent = userAgent
	p.DefaultHeaders = func() *header.Header {
		h := Chrome120().DefaultHeaders()
		h.Set("sec-ch-ua", `"Chromium";v="134", "Not:A-Brand";v="24", "Opera";v="119"`)
		h.Set("User-Agent", userAgent)
		h.Set("accept-encoding", "gzip, deflate, br, zstd")
		h.Add("Cache-Control", "max-age=0")
		return h
	}
	return p
}

// ByName resolves a profile by its Profile.Name, for config-driven
// selection (spec.md §6). ok is false for an unrecognized name.
func ByName(name string) (emulation.Profile, bool) {
	switch name {
	case "chrome-120":
		return Chrome120(), true
	case "chrome-131":
		return Chrome131(), true
	case "firefox-120":
		return Firefox120(), true
	case "safari-16":
		return Safari16(), true
	case "edge-120":
		return Edge120(), true
	case "okhttp-5":
		return OkHttp5(), true
	case "opera-119":
		return Opera119(), true
	default:
		return emulation.Profile{}, false
	}
}
