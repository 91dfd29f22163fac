package cli

import (
	"bytes"
	"io"
	"net/http"
	"os"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/xhgo/internal/outbuf"
)

// buildRequest assembles the outgoing *http.Request: method, URL and
// headers are always applied; the body format is resolved from
// --json/--form/--multipart (JSON is the default, and a --form
// request with a file field is silently upgraded to multipart, while an
// explicit --json with a file field is an error), or read from stdin
// when no data-sending items were given at all.
func buildRequest(p *Params, it items, stdin io.Reader) (*http.Request, []byte, error) {
	var body []byte
	contentType := ""

	if p.JSON && len(it.formFiles) > 0 {
		return nil, nil, errgo.Newf("file fields cannot be sent in a --json body")
	}

	switch {
	case len(it.formFiles) > 0 || p.Multipart:
		b, ct, err := it.multipartBody()
		if err != nil {
			return nil, nil, err
		}
		body, contentType = b, ct
	case p.Form:
		body, contentType = []byte(it.formValues().Encode()), "application/x-www-form-urlencoded"
	case it.hasBody() || !p.IgnoreStdin && stdinHasData(stdin):
		if it.hasBody() {
			b, err := it.jsonBody()
			if err != nil {
				return nil, nil, err
			}
			body, contentType = b, "application/json"
		} else {
			b, err := io.ReadAll(stdin)
			if err != nil {
				return nil, nil, errgo.Notef(err, "cannot read stdin")
			}
			body = b
		}
	}

	req, err := http.NewRequest(p.Method, p.URL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, errgo.Mask(err)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "*/*")
	it.applyHeaders(req.Header)
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	if len(body) > 0 {
		req.ContentLength = int64(len(body))
	}
	return req, body, nil
}

// stdinHasData reports whether stdin looks like a pipe or redirect
// rather than an interactive terminal. A *os.File stdin is read only
// when it isn't a tty, matching the real tool's auto-detection;
// anything else (a test's strings.Reader, for instance) is assumed to
// carry real data.
func stdinHasData(stdin io.Reader) bool {
	if stdin == nil {
		return false
	}
	if f, ok := stdin.(*os.File); ok {
		return !outbuf.IsTerminal(f)
	}
	return true
}
