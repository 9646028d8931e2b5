// Package multipart encodes multipart/form-data bodies with a
// timestamp+PID-derived boundary and Chrome's own quote-escaping rule
// (spec.md §4.9), rather than Go's stdlib mime/multipart defaults — a
// random-hex boundary and a narrower escape set would make every request
// fingerprint as a Go http.Client instead of a browser.
package multipart

import (
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// NewBoundary returns a fresh boundary string derived from the current
// wall-clock time and this process's PID, mirroring the
// "----WebKitFormBoundary<16 chars>" shape Chrome produces, per spec.md
// §4.9. Two boundaries generated in the same process within the same
// nanosecond are astronomically unlikely to collide in practice, and a
// collision here only matters within the lifetime of one in-flight
// request.
func NewBoundary() string {
	return fmt.Sprintf("----WebKitFormBoundary%016x", uint64(time.Now().UnixNano())^uint64(os.Getpid())<<32)
}

// Part describes one file part to attach via Encoder.WriteFile.
type Part struct {
	FieldName   string
	FileName    string
	ContentType string
	Body        io.Reader
}

// Encoder writes a multipart/form-data body to an underlying io.Writer.
// It is not safe for concurrent use.
type Encoder struct {
	w        io.Writer
	boundary string
	closed   bool
}

// NewEncoder creates an Encoder with a freshly generated boundary, writing
// parts to w as they are added.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, boundary: NewBoundary()}
}

// Boundary returns the boundary string used to delimit parts.
func (e *Encoder) Boundary() string { return e.boundary }

// ContentType returns the value for the request's Content-Type header.
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// escapeQuoted applies spec.md §4.9's escaping rule for values embedded in
// a quoted Content-Disposition parameter: backslash, double-quote, CR and
// LF are each backslash-escaped; every other byte passes through
// unchanged.
func escapeQuoted(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '"':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (e *Encoder) writePartHeader(disposition string, header textproto.MIMEHeader) error {
	if _, err := fmt.Fprintf(e.w, "--%s\r\n", e.boundary); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "Content-Disposition: %s\r\n", disposition); err != nil {
		return err
	}
	for key, values := range header {
		for _, v := range values {
			if _, err := fmt.Fprintf(e.w, "%s: %s\r\n", key, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(e.w, "\r\n")
	return err
}

// WriteField writes one name/value form field part.
func (e *Encoder) WriteField(name, value string) error {
	if e.closed {
		return errors.New("multipart: encoder already closed")
	}
	disposition := fmt.Sprintf(`form-data; name="%s"`, escapeQuoted(name))
	if err := e.writePartHeader(disposition, nil); err != nil {
		return err
	}
	if _, err := io.WriteString(e.w, value); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, "\r\n")
	return err
}

// WriteFile writes one file attachment part, streaming p.Body directly
// into the underlying writer without buffering the whole file in memory.
func (e *Encoder) WriteFile(p Part) error {
	if e.closed {
		return errors.New("multipart: encoder already closed")
	}
	disposition := fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuoted(p.FieldName), escapeQuoted(p.FileName))

	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := textproto.MIMEHeader{"Content-Type": {contentType}}

	if err := e.writePartHeader(disposition, header); err != nil {
		return err
	}
	if _, err := io.Copy(e.w, p.Body); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, "\r\n")
	return err
}

// Close writes the terminating boundary. No further parts may be written
// afterward.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	_, err := fmt.Fprintf(e.w, "--%s--\r\n", e.boundary)
	return err
}

// Stream builds a streaming multipart/form-data body from fields (written
// in fieldOrder's order; a key of fields that fieldOrder does not list is
// not written) and files, returning a reader suitable for
// an http.Request body plus the Content-Type header value. Encoding
// happens concurrently in a goroutine feeding an io.Pipe, so the caller
// never buffers the whole body in memory — the same pattern the upload
// handler's form-submission path uses for large file attachments.
func Stream(fieldOrder []string, fields map[string]string, files []Part) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	enc := NewEncoder(pw)

	go func() {
		var err error
		defer func() {
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.Close()
		}()

		for _, name := range fieldOrder {
			if err = enc.WriteField(name, fields[name]); err != nil {
				return
			}
		}
		for _, p := range files {
			if err = enc.WriteFile(p); err != nil {
				return
			}
		}
		err = enc.Close()
	}()

	return pr, enc.ContentType()
}
