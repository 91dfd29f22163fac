package cli

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/xhgo/internal/middleware"
)

// authMiddleware applies basic, bearer or digest authentication ahead
// of the rest of the chain. Digest needs a first round trip to learn
// the server's challenge, so it buffers the request body to replay it.
type authMiddleware struct {
	typ      string // "basic", "digest", "bearer", or "" for none
	user     string
	pass     string
	token    string
	nonceCnt uint32
}

func (m *authMiddleware) Handle(ctx *middleware.Context, req *http.Request) (*http.Response, error) {
	switch m.typ {
	case "basic":
		req.SetBasicAuth(m.user, m.pass)
		return ctx.Next(req)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+m.token)
		return ctx.Next(req)
	case "digest":
		return m.handleDigest(ctx, req)
	default:
		return ctx.Next(req)
	}
}

func (m *authMiddleware) handleDigest(ctx *middleware.Context, req *http.Request) (*http.Response, error) {
	body, err := bufferRequestBody(req)
	if err != nil {
		return nil, err
	}
	resp, err := ctx.Next(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	challenge := resp.Header.Get("WWW-Authenticate")
	if !strings.HasPrefix(strings.ToLower(challenge), "digest") {
		return resp, nil
	}
	params := parseDigestChallenge(challenge)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	header, err := m.buildDigestHeader(params, req.Method, req.URL.RequestURI())
	if err != nil {
		return nil, errgo.Mask(err)
	}
	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", header)
	if body != nil {
		retry.Body = io.NopCloser(bytes.NewReader(body))
		retry.ContentLength = int64(len(body))
	}
	return ctx.Next(retry)
}

func bufferRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func parseDigestChallenge(header string) map[string]string {
	params := map[string]string{}
	rest := strings.TrimSpace(header)
	rest = strings.TrimPrefix(rest, "Digest ")
	rest = strings.TrimPrefix(rest, "digest ")
	for _, part := range splitDigestParams(rest) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = value
	}
	return params
}

// splitDigestParams splits on commas that aren't inside a quoted
// string, since quality-of-protocol lists like qop="auth,auth-int"
// contain commas of their own.
func splitDigestParams(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (m *authMiddleware) buildDigestHeader(params map[string]string, method, uri string) (string, error) {
	realm := params["realm"]
	nonce := params["nonce"]
	qop := firstQop(params["qop"])
	opaque := params["opaque"]

	ha1 := md5hex(m.user + ":" + realm + ":" + m.pass)
	ha2 := md5hex(method + ":" + uri)

	var response, nc, cnonce string
	if qop != "" {
		cnonce = generateCnonce()
		nc = fmt.Sprintf("%08x", atomic.AddUint32(&m.nonceCnt, 1))
		response = md5hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
	} else {
		response = md5hex(ha1 + ":" + nonce + ":" + ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		m.user, realm, nonce, uri, response)
	if qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, qop, nc, cnonce)
	}
	if opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, opaque)
	}
	return b.String(), nil
}

func firstQop(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(value, ",")[0])
}

func generateCnonce() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(int64(len(buf)), 16)
	}
	return hex.EncodeToString(buf)
}
