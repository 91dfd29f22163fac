// Package redirect implements the RFC 7231-ish redirect-following
// middleware: 301/302/303 downgrade to GET (HEAD stays HEAD) and drop
// the body, 307/308 preserve method and replay the original body, and
// a redirect that crosses origin strips the headers a server on the
// new host has no business seeing.
package redirect

import (
	"bytes"
	"io"
	"net/http"
	"net/url"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/xhgo/internal/middleware"
)

// Follower is a middleware.Middleware that follows redirects up to
// MaxRedirects hops, replaying a buffered copy of the original body
// for 307/308 responses.
type Follower struct {
	MaxRedirects int
}

var sensitiveHeaders = []string{
	"Authorization",
	"Cookie",
	"Cookie2",
	"Proxy-Authorization",
	"WWW-Authenticate",
}

var contentHeaders = []string{
	"Transfer-Encoding",
	"Content-Encoding",
	"Content-Type",
	"Content-Length",
}

// Handle implements middleware.Middleware.
func (f *Follower) Handle(ctx *middleware.Context, firstReq *http.Request) (*http.Response, error) {
	body, err := bufferBody(firstReq)
	if err != nil {
		return nil, err
	}
	req := firstReq
	resp, err := ctx.Next(req)
	if err != nil {
		return nil, err
	}
	remaining := f.maxRedirects()

	for {
		next, ok := nextRequest(req, body, resp)
		if !ok {
			return resp, nil
		}
		if remaining <= 0 {
			return nil, errgo.Newf("Too many redirects (--max-redirects=%d)", f.maxRedirects())
		}
		remaining--
		if ctx.PrintHook != nil {
			if err := ctx.PrintHook(resp, next); err != nil {
				return nil, err
			}
		}
		body, err = bufferBody(next)
		if err != nil {
			return nil, err
		}
		req = next
		resp, err = ctx.Next(req)
		if err != nil {
			return nil, err
		}
	}
}

func (f *Follower) maxRedirects() int {
	if f.MaxRedirects <= 0 {
		return 30
	}
	return f.MaxRedirects
}

// bufferBody reads req.Body fully so it can be replayed for a 307/308
// redirect, leaving req.Body set to a fresh reader over the same
// bytes.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, errgo.Mask(err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// nextRequest builds the request for the next hop, or returns
// ok == false when resp isn't a redirect this follower understands.
func nextRequest(prev *http.Request, prevBody []byte, resp *http.Response) (*http.Request, bool) {
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, false
	}
	nextURL, err := prev.URL.Parse(location)
	if err != nil {
		return nil, false
	}
	crossOrigin := isCrossOrigin(nextURL, prev.URL)

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		next := cloneRequest(prev, nextURL)
		if crossOrigin {
			stripHeaders(next.Header, sensitiveHeaders)
		}
		stripHeaders(next.Header, contentHeaders)
		next.Body = nil
		next.ContentLength = 0
		if prev.Method != http.MethodHead {
			next.Method = http.MethodGet
		}
		return next, true
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		next := cloneRequest(prev, nextURL)
		if crossOrigin {
			stripHeaders(next.Header, sensitiveHeaders)
		}
		if prevBody != nil {
			next.Body = io.NopCloser(bytes.NewReader(prevBody))
			next.ContentLength = int64(len(prevBody))
		}
		return next, true
	default:
		return nil, false
	}
}

func cloneRequest(prev *http.Request, nextURL *url.URL) *http.Request {
	next := prev.Clone(prev.Context())
	next.URL = nextURL
	next.Host = nextURL.Host
	next.RequestURI = ""
	return next
}

func isCrossOrigin(next, prev *url.URL) bool {
	return next.Hostname() != prev.Hostname() || portOrDefault(next) != portOrDefault(prev)
}

func portOrDefault(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

func stripHeaders(h http.Header, names []string) {
	for _, name := range names {
		h.Del(name)
	}
}
