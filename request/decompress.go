package request

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// decodingBody couples a Content-Encoding decoder's Read with the raw wire
// body's Close, so the pooled connection still sees every byte drained off
// the socket regardless of how far the caller actually read into the
// decoded stream.
type decodingBody struct {
	io.Reader
	raw     io.ReadCloser
	decoder io.Closer // nil if the codec has nothing to close
}

func (d *decodingBody) Close() error {
	if d.decoder != nil {
		_ = d.decoder.Close()
	}
	return d.raw.Close()
}

// decompress wraps body in the decoder named by header's Content-Encoding,
// so callers always see the same bytes a browser's fetch()/response.text()
// would — never raw gzip/deflate/br/zstd octets (spec.md §4.8). An empty
// or unrecognized encoding returns body unchanged.
func decompress(header http.Header, body io.ReadCloser) (io.ReadCloser, error) {
	switch header.Get("Content-Encoding") {
	case "gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &decodingBody{Reader: zr, raw: body, decoder: zr}, nil
	case "deflate":
		fr := flate.NewReader(body)
		return &decodingBody{Reader: fr, raw: body, decoder: fr}, nil
	case "br":
		return &decodingBody{Reader: brotli.NewReader(body), raw: body}, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		rc := zr.IOReadCloser()
		return &decodingBody{Reader: rc, raw: body, decoder: rc}, nil
	default:
		return body, nil
	}
}
