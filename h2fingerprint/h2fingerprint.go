// Package h2fingerprint holds per-profile HTTP/2 fingerprint data: SETTINGS
// frame parameters and values, the connection-level window update, and
// pseudo-header ordering (spec.md §4.5). It generalizes the teacher's
// single hard-coded Chrome 120 SETTINGS table into a per-profile value so
// every emulation profile gets its own fingerprint instead of sharing one.
package h2fingerprint

import "golang.org/x/net/http2"

// SettingID names an HTTP/2 SETTINGS parameter, mirroring http2.SettingID's
// values so conversion is a direct cast.
type SettingID = http2.SettingID

// Setting is one (id, value) pair as it appears on the wire.
type Setting struct {
	ID    SettingID
	Value uint32
}

// Fingerprint describes one browser's HTTP/2 connection preamble: the
// initial SETTINGS frame (in wire order), the connection-level
// WINDOW_UPDATE increment sent right after it, and the pseudo-header
// order used when serializing request headers.
//
// golang.org/x/net/http2 does not expose an API for reordering the
// SETTINGS parameters or pseudo-headers it writes; Settings and
// PseudoHeaderOrder document the target wire order for a hand-rolled
// framer (streamfactory), since the stock transport cannot honor it.
type Fingerprint struct {
	Settings           []Setting
	ConnWindowUpdate   uint32
	HeaderTableSize    uint32
	MaxHeaderListSize  uint32
	InitialWindowSize  uint32
	PseudoHeaderOrder  []string
	PriorityFrames     []PriorityFrame
}

// PriorityFrame describes one HTTP/2 PRIORITY frame to emit immediately
// after the connection preface, used to reproduce Chrome's priority tree
// rooted at stream 0.
type PriorityFrame struct {
	StreamID      uint32
	DependsOn     uint32
	Weight        uint8
	Exclusive     bool
}

// Chrome120 is captured from a real Windows Chrome 120 client (Wireshark
// trace), reused from the teacher's hard-coded constants.
var Chrome120 = Fingerprint{
	Settings: []Setting{
		{ID: http2.SettingHeaderTableSize, Value: 65536},
		{ID: http2.SettingEnablePush, Value: 0},
		{ID: http2.SettingInitialWindowSize, Value: 6291456},
		{ID: http2.SettingMaxHeaderListSize, Value: 262144},
	},
	ConnWindowUpdate:  15663105,
	HeaderTableSize:   65536,
	MaxHeaderListSize: 262144,
	InitialWindowSize: 6291456,
	PseudoHeaderOrder: []string{":method", ":authority", ":scheme", ":path"},
	PriorityFrames: []PriorityFrame{
		{StreamID: 1, DependsOn: 0, Weight: 255, Exclusive: false},
		{StreamID: 3, DependsOn: 0, Weight: 255, Exclusive: false},
		{StreamID: 5, DependsOn: 0, Weight: 255, Exclusive: false},
	},
}

// Firefox120 approximates a Firefox 120 client: the same header table size
// as Chrome, no ENABLE_PUSH setting, a smaller initial window, an explicit
// MAX_FRAME_SIZE, a larger header-list limit, and Firefox's distinct
// pseudo-header order (:method, :path, :authority, :scheme).
var Firefox120 = Fingerprint{
	Settings: []Setting{
		{ID: http2.SettingHeaderTableSize, Value: 65536},
		{ID: http2.SettingInitialWindowSize, Value: 131072},
		{ID: http2.SettingMaxFrameSize, Value: 16384},
		{ID: http2.SettingMaxHeaderListSize, Value: 393216},
	},
	ConnWindowUpdate:  12517377,
	HeaderTableSize:   65536,
	MaxHeaderListSize: 393216,
	InitialWindowSize: 131072,
	PseudoHeaderOrder: []string{":method", ":path", ":authority", ":scheme"},
}

// Safari16 approximates Safari 16's HTTP/2 fingerprint.
var Safari16 = Fingerprint{
	Settings: []Setting{
		{ID: http2.SettingInitialWindowSize, Value: 4194304},
		{ID: http2.SettingMaxConcurrentStreams, Value: 100},
	},
	ConnWindowUpdate:  10485760,
	MaxHeaderListSize: 0,
	InitialWindowSize: 4194304,
	PseudoHeaderOrder: []string{":method", ":scheme", ":path", ":authority"},
}

// OkHttp5 is derived from original_source's emulation/profiles/okhttp.rs
// Http2Options builder for OkHttp::V5: initial window, max header list
// size, and header table size match Chrome's, plus OkHttp's own
// max_concurrent_streams=1000 and disabled push, in the order the builder
// declares them. original_source never captures an OkHttp wire trace for
// the connection WINDOW_UPDATE, so ConnWindowUpdate borrows Chrome's
// rather than inventing an uncaptured value. OkHttp has no documented
// pseudo-header reordering, so PseudoHeaderOrder is left unset
// (RFC-conventional order).
var OkHttp5 = Fingerprint{
	Settings: []Setting{
		{ID: http2.SettingInitialWindowSize, Value: 6291456},
		{ID: http2.SettingMaxHeaderListSize, Value: 262144},
		{ID: http2.SettingHeaderTableSize, Value: 65536},
		{ID: http2.SettingMaxConcurrentStreams, Value: 1000},
		{ID: http2.SettingEnablePush, Value: 0},
	},
	ConnWindowUpdate:  Chrome120.ConnWindowUpdate,
	HeaderTableSize:   65536,
	MaxHeaderListSize: 262144,
	InitialWindowSize: 6291456,
}

// Opera119 reuses Chrome120's HTTP/2 fingerprint outright: Opera is
// Chromium-based and original_source's emulation/profiles/opera.rs builds
// its Http2Options with the identical initial window, header table size,
// and max header list size values as the Chrome profile, noting in its
// own comment that it is "Same H2 settings as Chrome".
var Opera119 = Chrome120
