package streamfactory

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/lunarforge/chromenet/h2fingerprint"
	"github.com/lunarforge/chromenet/neterror"
)

// Stream sends requests over one already-established connection — the
// pool hands out an idle Stream for reuse, or the connect job's result is
// wrapped into a fresh one, per spec.md §4.7's CreateStream/SendRequest
// steps. Implementations wrap either an HTTP/1.1 connection or a
// hand-framed H2 connection uniformly.
type Stream interface {
	RoundTrip(req *http.Request) (*http.Response, error)
	// Reusable reports whether another request may be sent over this
	// stream afterward (h2 multiplexes; h1 only if neither side sent
	// Connection: close).
	Reusable() bool
	Close() error
}

// WrapConn adapts an established connection and its negotiated ALPN
// protocol into a Stream. alpn == "h2" frames the connection itself per
// fp (spec.md §4.5): golang.org/x/net/http2.Transport accepts no SETTINGS
// order, pseudo-header order, or PRIORITY tree of its own, so reproducing
// a browser's fingerprint means driving http2.Framer directly instead of
// handing the raw conn to a stock Transport. Anything else is treated as
// HTTP/1.1.
func WrapConn(conn net.Conn, alpn string, fp h2fingerprint.Fingerprint) (Stream, error) {
	if alpn == "h2" {
		return newH2Stream(conn, fp)
	}
	return &h1Stream{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// h2Stream is a minimal hand-rolled HTTP/2 client built on http2.Framer
// and hpack directly (grounded on shiroyk-ski-ext's fetch-http2-patch,
// which frames the preface/SETTINGS/WINDOW_UPDATE/PRIORITY itself rather
// than going through http2.Transport). The pool checks out one stream at
// a time per connection (documented in request's pool-capacity note in
// DESIGN.md), so this client only ever has one HTTP/2 stream in flight
// and needs none of a production multiplexer's concurrent-stream
// bookkeeping — RoundTrip drives the whole exchange synchronously.
type h2Stream struct {
	mu           sync.Mutex
	conn         net.Conn
	bw           *bufio.Writer
	framer       *http2.Framer
	encBuf       strings.Builder // reused as the hpack block-fragment buffer
	enc          *hpack.Encoder
	nextStreamID uint32
	closed       bool
	broken       bool // true once a GOAWAY or connection error has been seen

	// defaultOrder is the profile's declared pseudo-header order
	// (h2fingerprint.Fingerprint.PseudoHeaderOrder). Every request sent
	// over this stream is serialized in this order, since a connection
	// is dialed for exactly one emulation profile.
	defaultOrder []string
}

func newH2Stream(conn net.Conn, fp h2fingerprint.Fingerprint) (*h2Stream, error) {
	bw := bufio.NewWriter(conn)
	if _, err := bw.WriteString(http2.ClientPreface); err != nil {
		return nil, neterror.Wrap(neterror.Http2ProtocolError, "", err)
	}

	framer := http2.NewFramer(bw, bufio.NewReaderSize(conn, 16<<10))
	framer.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	if fp.MaxHeaderListSize > 0 {
		framer.MaxHeaderListSize = fp.MaxHeaderListSize
	}

	settings := make([]http2.Setting, len(fp.Settings))
	for i, s := range fp.Settings {
		settings[i] = http2.Setting{ID: s.ID, Val: s.Value}
	}
	if err := framer.WriteSettings(settings...); err != nil {
		return nil, neterror.Wrap(neterror.Http2ProtocolError, "", err)
	}
	if fp.ConnWindowUpdate > 0 {
		if err := framer.WriteWindowUpdate(0, fp.ConnWindowUpdate); err != nil {
			return nil, neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}
	}
	for _, p := range fp.PriorityFrames {
		err := framer.WritePriority(p.StreamID, http2.PriorityParam{
			StreamDep: p.DependsOn,
			Exclusive: p.Exclusive,
			Weight:    p.Weight,
		})
		if err != nil {
			return nil, neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, neterror.Wrap(neterror.Http2ProtocolError, "", err)
	}

	s := &h2Stream{conn: conn, bw: bw, framer: framer, nextStreamID: 1, defaultOrder: fp.PseudoHeaderOrder}
	s.enc = hpack.NewEncoder(&s.encBuf)
	if err := s.awaitServerSettings(); err != nil {
		return nil, err
	}
	return s, nil
}

// awaitServerSettings reads and ACKs the server's initial SETTINGS frame,
// discarding anything else that arrives first (a WINDOW_UPDATE often
// precedes it).
func (s *h2Stream) awaitServerSettings() error {
	for {
		f, err := s.framer.ReadFrame()
		if err != nil {
			return neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}
		sf, ok := f.(*http2.SettingsFrame)
		if !ok {
			continue
		}
		if sf.IsAck() {
			continue
		}
		if err := s.framer.WriteSettingsAck(); err != nil {
			return neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}
		return s.bw.Flush()
	}
}

func (s *h2Stream) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return nil, neterror.New(neterror.Http2StreamClosed, "connection already failed")
	}

	streamID := s.nextStreamID
	s.nextStreamID += 2

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, neterror.Wrap(neterror.InvalidResponse, "", err)
		}
	}

	block := s.encodeHeaderBlock(req, len(body))
	if err := s.writeHeaders(streamID, block, len(body) == 0); err != nil {
		s.broken = true
		return nil, err
	}
	if len(body) > 0 {
		if err := s.writeData(streamID, body); err != nil {
			s.broken = true
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if req.Context().Err() != nil {
				s.conn.Close()
			}
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	resp, err := s.readResponse(streamID, req)
	if err != nil {
		s.broken = true
		return nil, err
	}
	return resp, nil
}

// defaultPseudoOrder is used when a profile's fingerprint leaves
// PseudoHeaderOrder unset.
var defaultPseudoOrder = []string{":method", ":authority", ":scheme", ":path"}

func (s *h2Stream) encodeHeaderBlock(req *http.Request, bodyLen int) []byte {
	s.encBuf.Reset()

	pseudo := map[string]string{
		":method":    req.Method,
		":authority": req.Host,
		":scheme":    req.URL.Scheme,
		":path":      req.URL.RequestURI(),
	}
	if pseudo[":authority"] == "" {
		pseudo[":authority"] = req.URL.Host
	}

	order := s.pseudoHeaderOrder()
	written := make(map[string]bool, 4)
	for _, name := range order {
		v, ok := pseudo[name]
		if !ok {
			continue
		}
		s.enc.WriteField(hpack.HeaderField{Name: name, Value: v})
		written[name] = true
	}
	for name, v := range pseudo {
		if !written[name] {
			s.enc.WriteField(hpack.HeaderField{Name: name, Value: v})
		}
	}

	for key, vals := range req.Header {
		lower := strings.ToLower(key)
		if isConnectionSpecificHeader(lower) {
			continue
		}
		for _, v := range vals {
			s.enc.WriteField(hpack.HeaderField{Name: lower, Value: v})
		}
	}
	if bodyLen > 0 && req.Header.Get("Content-Length") == "" {
		s.enc.WriteField(hpack.HeaderField{Name: "content-length", Value: itoa(bodyLen)})
	}

	out := make([]byte, len(s.encBuf.String()))
	copy(out, s.encBuf.String())
	return out
}

// pseudoHeaderOrder returns the order every request on this connection
// serializes its pseudo-headers in: the fingerprint it was built from
// (every stream belongs to exactly one profile for its whole life), or
// the RFC-conventional order if the profile left it unset.
func (s *h2Stream) pseudoHeaderOrder() []string {
	if len(s.defaultOrder) > 0 {
		return s.defaultOrder
	}
	return defaultPseudoOrder
}

func isConnectionSpecificHeader(lower string) bool {
	switch lower {
	case "connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade", "host":
		return true
	}
	return false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

const maxH2FrameSize = 16 << 10

func (s *h2Stream) writeHeaders(streamID uint32, block []byte, endStream bool) error {
	first := block
	rest := block
	endHeaders := true
	if len(block) > maxH2FrameSize {
		first = block[:maxH2FrameSize]
		rest = block[maxH2FrameSize:]
		endHeaders = false
	}
	if err := s.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    endHeaders,
	}); err != nil {
		return neterror.Wrap(neterror.Http2ProtocolError, "", err)
	}
	for !endHeaders {
		chunk := rest
		if len(chunk) > maxH2FrameSize {
			chunk = rest[:maxH2FrameSize]
			rest = rest[maxH2FrameSize:]
		} else {
			rest = nil
		}
		endHeaders = rest == nil
		if err := s.framer.WriteContinuation(streamID, endHeaders, chunk); err != nil {
			return neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}
	}
	if err := s.bw.Flush(); err != nil {
		return neterror.Wrap(neterror.Http2ProtocolError, "", err)
	}
	return nil
}

func (s *h2Stream) writeData(streamID uint32, body []byte) error {
	for len(body) > 0 {
		chunk := body
		last := true
		if len(chunk) > maxH2FrameSize {
			chunk = body[:maxH2FrameSize]
			last = false
		}
		if err := s.framer.WriteData(streamID, last, chunk); err != nil {
			return neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}
		body = body[len(chunk):]
	}
	if err := s.bw.Flush(); err != nil {
		return neterror.Wrap(neterror.Http2ProtocolError, "", err)
	}
	return nil
}

// readResponse reads frames until the response for streamID is complete,
// acking/consuming any connection-level frames (SETTINGS, PING, GOAWAY,
// WINDOW_UPDATE) that interleave with it — a real HTTP/2 connection keeps
// emitting those regardless of which stream is active.
func (s *h2Stream) readResponse(streamID uint32, req *http.Request) (*http.Response, error) {
	resp := &http.Response{
		Proto:      "HTTP/2.0",
		ProtoMajor: 2,
		ProtoMinor: 0,
		Header:     make(http.Header),
		Request:    req,
	}
	var body []byte
	haveHeaders := false
	streamEnded := false

	for !streamEnded {
		f, err := s.framer.ReadFrame()
		if err != nil {
			return nil, neterror.Wrap(neterror.Http2ProtocolError, "", err)
		}

		switch fr := f.(type) {
		case *http2.MetaHeadersFrame:
			if fr.StreamID != streamID {
				continue
			}
			for _, hf := range fr.Fields {
				if hf.Name == ":status" {
					resp.StatusCode, _ = atoi(hf.Value)
					resp.Status = hf.Value + " " + http.StatusText(resp.StatusCode)
					continue
				}
				if hf.IsPseudo() {
					continue
				}
				resp.Header.Add(http.CanonicalHeaderKey(hf.Name), hf.Value)
			}
			haveHeaders = true
			if fr.StreamEnded() {
				streamEnded = true
			}

		case *http2.DataFrame:
			if fr.StreamID != streamID {
				continue
			}
			data := fr.Data()
			if len(data) > 0 {
				cp := make([]byte, len(data))
				copy(cp, data)
				body = append(body, cp...)
				// Replenish both windows so a response larger than the
				// advertised initial window doesn't stall.
				_ = s.framer.WriteWindowUpdate(0, uint32(len(data)))
				_ = s.framer.WriteWindowUpdate(streamID, uint32(len(data)))
				_ = s.bw.Flush()
			}
			if fr.StreamEnded() {
				streamEnded = true
			}

		case *http2.RSTStreamFrame:
			if fr.StreamID == streamID {
				return nil, neterror.New(neterror.Http2ServerRefusedStream, "stream reset by server")
			}

		case *http2.GoAwayFrame:
			s.broken = true
			if !haveHeaders {
				return nil, neterror.New(neterror.Http2ProtocolError, "connection closing (GOAWAY)")
			}
			streamEnded = true

		case *http2.SettingsFrame:
			if !fr.IsAck() {
				_ = s.framer.WriteSettingsAck()
				_ = s.bw.Flush()
			}

		case *http2.PingFrame:
			if !fr.IsAck() {
				_ = s.framer.WritePing(true, fr.Data)
				_ = s.bw.Flush()
			}

		case *http2.WindowUpdateFrame:
			// No outbound flow-control accounting is kept (single
			// in-flight stream, bodies are buffered whole before
			// writing), so connection and stream WINDOW_UPDATEs from
			// the peer need no action here.
		}
	}

	resp.Body = io.NopCloser(newByteReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func atoi(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, neterror.New(neterror.InvalidResponse, "non-numeric :status")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func newByteReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}

// Reusable reports whether another request may be sent over this
// connection. A hand-framed stream serializes requests one at a time per
// the pool's single-checkout-per-connection design (see request's pool
// capacity note in DESIGN.md), so it stays reusable until a GOAWAY or a
// write/read error marks it broken.
func (s *h2Stream) Reusable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.broken && !s.closed
}

func (s *h2Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// h1Stream sends one HTTP/1.1 request at a time over a persistent
// connection, matching how an http.Transport would reuse a keep-alive
// socket — but here driven explicitly so the pool, not net/http, owns the
// connection's lifetime.
type h1Stream struct {
	conn     net.Conn
	reader   *bufio.Reader
	lastResp *http.Response
}

func (s *h1Stream) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Write(s.conn); err != nil {
		return nil, neterror.Wrap(neterror.ConnectionReset, "", err)
	}
	resp, err := http.ReadResponse(s.reader, req)
	if err != nil {
		return nil, neterror.Wrap(neterror.InvalidResponse, "", err)
	}
	s.lastResp = resp
	return resp, nil
}

// Reusable reports false once either side has signaled it will close the
// connection (HTTP/1.0 semantics, or an explicit "Connection: close").
func (s *h1Stream) Reusable() bool {
	return s.lastResp == nil || !s.lastResp.Close
}

func (s *h1Stream) Close() error {
	return s.conn.Close()
}
