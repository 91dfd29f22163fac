package cli

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/xhgo/internal/unixsocket"
)

// buildTransport constructs the round tripper the middleware chain
// terminates at: a Unix-domain-socket dialer when --unix-socket is
// given, otherwise a stdlib *http.Transport configured for
// --verify/--cert/--cert-key/--proxy.
func buildTransport(p *Params) (http.RoundTripper, error) {
	base, err := baseTransport(p)
	if err != nil {
		return nil, err
	}
	if p.Debug {
		return &loggingTransport{transport: base, printf: logger.Debugf}, nil
	}
	return base, nil
}

func baseTransport(p *Params) (http.RoundTripper, error) {
	timeout := time.Duration(p.Timeout * float64(time.Second))
	if p.UnixSocket != "" {
		return &unixsocket.Transport{SocketPath: p.UnixSocket, Timeout: timeout}, nil
	}

	tlsConfig := &tls.Config{}
	switch p.Verify {
	case "", "yes":
	case "no":
		tlsConfig.InsecureSkipVerify = true
	default:
		pool, err := loadCABundle(p.Verify)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}
	if p.Cert != "" {
		keyFile := p.CertKey
		if keyFile == "" {
			keyFile = p.Cert
		}
		cert, err := tls.LoadX509KeyPair(p.Cert, keyFile)
		if err != nil {
			return nil, errgo.Notef(err, "cannot load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	proxyFunc, err := buildProxyFunc(p.Proxies)
	if err != nil {
		return nil, err
	}

	return &http.Transport{
		TLSClientConfig: tlsConfig,
		Proxy:           proxyFunc,
		DialContext:     (&net.Dialer{Timeout: timeout}).DialContext,
	}, nil
}

func loadCABundle(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errgo.Notef(err, "cannot read CA bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errgo.Newf("no certificates found in %q", path)
	}
	return pool, nil
}

// buildProxyFunc turns the repeatable --proxy proto:url flags into an
// http.Transport.Proxy function, keyed by request scheme; "all"
// applies to both http and https unless overridden by a more specific
// entry.
func buildProxyFunc(proxies []string) (func(*http.Request) (*url.URL, error), error) {
	if len(proxies) == 0 {
		return http.ProxyFromEnvironment, nil
	}
	byScheme := map[string]*url.URL{}
	for _, spec := range proxies {
		proto, target, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, errgo.Newf("invalid --proxy value %q, want proto:url", spec)
		}
		u, err := url.Parse(target)
		if err != nil {
			return nil, errgo.Notef(err, "invalid proxy URL in %q", spec)
		}
		byScheme[proto] = u
	}
	return func(req *http.Request) (*url.URL, error) {
		if u, ok := byScheme[req.URL.Scheme]; ok {
			return u, nil
		}
		if u, ok := byScheme["all"]; ok {
			return u, nil
		}
		return nil, nil
	}, nil
}

// loggingTransport wraps another RoundTripper to print every request
// and response line-by-line via printf, for --debug.
type loggingTransport struct {
	transport http.RoundTripper
	printf    func(f string, a ...interface{})
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sendBody := replaceBody(&req.Body)

	t.printf("> %s %s", req.Method, req.URL)
	for _, line := range sortedHeader(req.Header) {
		t.printf("> %s: %s", line.name, line.val)
	}
	if len(sendBody) > 0 {
		t.printf("> body %q", sendBody)
	}
	resp, err := t.transport.RoundTrip(req)
	if err != nil {
		t.printf("< error %v", err)
		return resp, err
	}
	respBody := replaceBody(&resp.Body)
	t.printf("< %s", resp.Status)
	for _, line := range sortedHeader(resp.Header) {
		t.printf("< %s: %s", line.name, line.val)
	}
	if len(respBody) > 0 {
		t.printf("< body %q", respBody)
	}
	return resp, nil
}

// replaceBody drains *body (if any) and replaces it with a fresh
// reader over the same bytes, returning what was read.
func replaceBody(body *io.ReadCloser) []byte {
	if *body == nil || *body == http.NoBody {
		return nil
	}
	data, err := io.ReadAll(*body)
	if err != nil {
		return nil
	}
	(*body).Close()
	*body = io.NopCloser(bytes.NewReader(data))
	return data
}

type headerLine struct {
	name string
	val  string
}

func sortedHeader(h http.Header) []headerLine {
	var lines []headerLine
	for name, vals := range h {
		for _, val := range vals {
			lines = append(lines, headerLine{name, val})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].name < lines[j].name
	})
	return lines
}
