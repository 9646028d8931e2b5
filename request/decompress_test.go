package request_test

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/lunarforge/chromenet/header"
	"github.com/lunarforge/chromenet/request"
)

func serveEncoded(t *testing.T, encoding string, plain []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", encoding)
		var buf bytes.Buffer
		switch encoding {
		case "gzip":
			gw := gzip.NewWriter(&buf)
			gw.Write(plain)
			gw.Close()
		case "deflate":
			fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			fw.Write(plain)
			fw.Close()
		case "br":
			bw := brotli.NewWriter(&buf)
			bw.Write(plain)
			bw.Close()
		case "zstd":
			zw, _ := zstd.NewWriter(&buf)
			zw.Write(plain)
			zw.Close()
		}
		w.Write(buf.Bytes())
	}))
}

func TestDoDecodesEachContentEncoding(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for good measure")
	for _, encoding := range []string{"gzip", "deflate", "br", "zstd"} {
		t.Run(encoding, func(t *testing.T) {
			srv := serveEncoded(t, encoding, want)
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

			got, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("body = %q, want %q", got, want)
			}
		})
	}
}

func TestDoPassesThroughUnknownContentEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "identity")
		fmt.Fprint(w, "plain")
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

	got, _ := io.ReadAll(resp.Body)
	if string(got) != "plain" {
		t.Errorf("body = %q, want %q", got, "plain")
	}
}
