// Package decoder transparently decompresses HTTP response bodies,
// turning mid-stream decode failures into a readable error while
// treating a decode failure on an empty body as an empty body rather
// than an error (servers sometimes advertise an encoding on a body
// that never arrives, e.g. for a HEAD request or a 304).
package decoder

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// CompressionType identifies a supported Content-Encoding value.
type CompressionType int

const (
	None CompressionType = iota
	Gzip
	Deflate
	Brotli
)

func parseCompressionType(value string) (CompressionType, bool) {
	switch strings.TrimSpace(value) {
	case "gzip":
		return Gzip, true
	case "deflate":
		return Deflate, true
	case "br":
		return Brotli, true
	default:
		return None, false
	}
}

// DetectCompressionType inspects Content-Encoding, falling back to
// Transfer-Encoding, the way reqwest's decoder selection does. A
// Content-Length of exactly 0 short-circuits to "no compression",
// since there is nothing to decode either way.
func DetectCompressionType(h http.Header) CompressionType {
	ct, ok := firstParseable(h.Values("Content-Encoding"))
	if !ok {
		ct, ok = firstParseable(h.Values("Transfer-Encoding"))
	}
	if !ok {
		return None
	}
	if h.Get("Content-Length") == "0" {
		return None
	}
	return ct
}

func firstParseable(values []string) (CompressionType, bool) {
	for _, v := range values {
		if ct, ok := parseCompressionType(v); ok {
			return ct, true
		}
	}
	return None, false
}

// innerReader tracks whether the wrapped reader has ever produced data
// or a genuine I/O error, so a decompressor's own failure can be told
// apart from a failure in the underlying transport.
type innerReader struct {
	r           io.Reader
	hasReadData bool
	hasErrored  bool
}

func (ir *innerReader) Read(buf []byte) (int, error) {
	n, err := ir.r.Read(buf)
	if n > 0 {
		ir.hasReadData = true
	}
	if err != nil && err != io.EOF {
		ir.hasErrored = true
	}
	return n, err
}

// Decompress wraps r so that reads from the result yield the
// decompressed body for the given compression type.
func Decompress(r io.Reader, ct CompressionType) io.Reader {
	inner := &innerReader{r: r}
	switch ct {
	case Gzip:
		return &lazyDecoder{inner: inner, label: "gzip", open: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		}}
	case Deflate:
		return &lazyDecoder{inner: inner, label: "deflate", open: func(r io.Reader) (io.Reader, error) {
			return zlib.NewReader(r)
		}}
	case Brotli:
		return &lazyDecoder{inner: inner, label: "brotli", open: func(r io.Reader) (io.Reader, error) {
			return brotli.NewReader(r), nil
		}}
	default:
		return inner
	}
}

// lazyDecoder defers construction of the underlying decompressor until
// the first Read, so that a bad-header failure and a mid-stream
// failure are classified by exactly the same rule.
type lazyDecoder struct {
	inner *innerReader
	label string
	open  func(io.Reader) (io.Reader, error)

	r      io.Reader
	failed bool
	err    error
}

func (d *lazyDecoder) Read(buf []byte) (int, error) {
	if d.failed {
		return 0, d.err
	}
	if d.r == nil {
		r, err := d.open(d.inner)
		if err != nil {
			return d.classify(0, err)
		}
		d.r = r
	}
	n, err := d.r.Read(buf)
	if err == nil || err == io.EOF {
		return n, err
	}
	return d.classify(n, err)
}

// classify applies the "whose fault is it" rule: an error that
// originated in the transport is passed through unmodified; a decode
// error on a body that never produced any bytes is treated as an
// empty, successfully-terminated body; anything else is a genuine
// decode failure and gets a descriptive prefix.
func (d *lazyDecoder) classify(n int, err error) (int, error) {
	switch {
	case d.inner.hasErrored:
		d.failed, d.err = true, err
	case !d.inner.hasReadData:
		d.failed, d.err = true, io.EOF
	default:
		d.failed, d.err = true, fmt.Errorf("error decoding %s response body: %v", d.label, err)
	}
	if d.err == io.EOF {
		return n, io.EOF
	}
	return n, d.err
}
