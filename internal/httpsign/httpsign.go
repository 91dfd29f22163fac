// Package httpsign implements RFC 9421 HTTP Message Signatures for
// outgoing requests: selecting which parts of a request to cover,
// computing an RFC 9530 Content-Digest when the body is covered, and
// emitting Signature / Signature-Input headers.
package httpsign

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	errgo "gopkg.in/errgo.v1"
)

// defaultComponents is the RFC 9421-recommended minimal coverage used
// when the user doesn't name any components explicitly.
var defaultComponents = []string{"@method", "@authority", "@target-uri"}

// Param is one parameter on a covered component, e.g. the name="id"
// in `@query-param;name="id"`, or a bare flag like sf.
type Param struct {
	Key   string
	Value string
	Flag  bool
}

// ComponentID identifies one line of the signature base: either a
// derived component (name starts with "@") or an HTTP field name.
type ComponentID struct {
	Name   string
	Params []Param
}

func (id ComponentID) param(key string) (string, bool) {
	for _, p := range id.Params {
		if !p.Flag && p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// serialize renders the component identifier the way it appears in a
// Signature-Input component list: a quoted name followed by any
// parameters.
func (id ComponentID) serialize() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q", id.Name)
	for _, p := range id.Params {
		if p.Flag {
			fmt.Fprintf(&b, ";%s", p.Key)
		} else {
			fmt.Fprintf(&b, ";%s=%q", p.Key, p.Value)
		}
	}
	return b.String()
}

// ParseComponentID parses one comma-separated entry of a
// --unstable-m-sig-comp value, such as `@query-param;name="id"`,
// `"x-struct";sf`, or `content-type`.
func ParseComponentID(raw string) (ComponentID, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ";")
	name := strings.ToLower(strings.Trim(strings.TrimSpace(parts[0]), `"`))
	if name == "" {
		return ComponentID{}, errgo.Newf("empty component name")
	}
	id := ComponentID{Name: name}
	for _, part := range parts[1:] {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			key := strings.TrimSpace(p[:eq])
			val := strings.Trim(strings.TrimSpace(p[eq+1:]), `"`)
			switch key {
			case "name", "key":
				id.Params = append(id.Params, Param{Key: key, Value: val})
			default:
				return ComponentID{}, errgo.Newf("message-signature: component parameter %q is not supported", key)
			}
			continue
		}
		switch p {
		case "sf":
			id.Params = append(id.Params, Param{Key: "sf", Flag: true})
		case "bs":
			return ComponentID{}, errgo.Newf("message-signature: component parameter \"bs\" is not supported yet")
		case "tr":
			return ComponentID{}, errgo.Newf("message-signature: component parameter \"tr\" is not supported yet")
		default:
			return ComponentID{}, errgo.Newf("message-signature: unknown component parameter %q", p)
		}
	}
	if _, ok := id.param("name"); ok && id.Name != "@query-param" {
		return ComponentID{}, errgo.Newf("message-signature: the \"name\" parameter is only valid on @query-param")
	}
	return id, nil
}

// resolveComponents expands a raw, comma-separated --unstable-m-sig-comp
// value (or the default set, when raw == "") into the concrete list of
// components to cover: "@query-params" expands into one
// "@query-param;name=..." entry per query parameter present on req,
// and "content-digest" is dropped unless req has a body.
func resolveComponents(req *http.Request, raw string) ([]string, error) {
	var source []string
	if raw == "" {
		source = defaultComponents
	} else {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if idx := strings.IndexByte(s, ';'); idx >= 0 {
				s = strings.ToLower(s[:idx]) + s[idx:]
			} else {
				s = strings.ToLower(s)
			}
			source = append(source, s)
		}
	}

	var resolved []string
	for _, c := range source {
		switch {
		case c == "@query-params":
			for _, name := range orderedQueryParamNames(req) {
				resolved = append(resolved, fmt.Sprintf("@query-param;name=%q", name))
			}
		case strings.EqualFold(c, "content-digest"):
			if hasBody(req) {
				resolved = append(resolved, c)
			}
		default:
			resolved = append(resolved, c)
		}
	}
	return resolved, nil
}

// orderedQueryParamNames returns the distinct query parameter names in
// req's URL, in first-appearance order.
func orderedQueryParamNames(req *http.Request) []string {
	query := req.URL.RawQuery
	if query == "" {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			name = pair[:idx]
		}
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// hasBody reports whether req carries an actual body, treating both a
// nil Body and the http.NoBody sentinel as "no body".
func hasBody(req *http.Request) bool {
	return req.Body != nil && req.Body != http.NoBody
}

// ensureContentDigest computes and inserts the Content-Digest header
// (RFC 9530, sha-256) when content-digest is a covered component and
// the header isn't already present. Returns the buffered body bytes
// so the caller can build later component lines without re-reading
// req.Body.
func ensureContentDigest(req *http.Request, components []string) ([]byte, error) {
	covered := false
	for _, c := range components {
		if strings.EqualFold(c, "content-digest") {
			covered = true
			break
		}
	}
	if !hasBody(req) {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, errgo.Mask(err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))

	if covered && req.Header.Get("Content-Digest") == "" {
		sum := sha256.Sum256(data)
		req.Header.Set("Content-Digest", "sha-256=:"+base64.StdEncoding.EncodeToString(sum[:])+":")
	}
	return data, nil
}

// Params is the set of signature parameters serialized as the final
// "@signature-params" line and as the Signature-Input header value.
type Params struct {
	Components []ComponentID
	Created    time.Time
	KeyID      string
	Alg        string
}

func (p Params) serialize() string {
	var names []string
	for _, c := range p.Components {
		names = append(names, c.serialize())
	}
	return fmt.Sprintf("(%s);created=%d;keyid=%q;alg=%q",
		strings.Join(names, " "), p.Created.Unix(), p.KeyID, p.Alg)
}

// gatherComponentValues returns the one-or-more field values
// contributing to component id's line, trimmed per RFC 9421 §2.1.
func gatherComponentValues(req *http.Request, id ComponentID) ([]string, error) {
	if strings.HasPrefix(id.Name, "@") {
		return gatherDerived(req, id)
	}
	values := req.Header.Values(id.Name)
	if len(values) == 0 {
		return nil, errgo.Newf("message-signature: signature input refers to header %q, but the request does not include it", id.Name)
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out, nil
}

func gatherDerived(req *http.Request, id ComponentID) ([]string, error) {
	switch id.Name {
	case "@method":
		return []string{req.Method}, nil
	case "@target-uri":
		return []string{req.URL.String()}, nil
	case "@authority":
		return []string{computeAuthority(req)}, nil
	case "@scheme":
		return []string{strings.ToLower(req.URL.Scheme)}, nil
	case "@request-target":
		return []string{computeRequestTarget(req)}, nil
	case "@path":
		if req.URL.Path == "" {
			return []string{"/"}, nil
		}
		return []string{req.URL.Path}, nil
	case "@query":
		if req.URL.RawQuery == "" {
			return []string{"?"}, nil
		}
		return []string{"?" + req.URL.RawQuery}, nil
	case "@query-param":
		name, ok := id.param("name")
		if !ok {
			return nil, errgo.Newf("message-signature: @query-param requires a name parameter")
		}
		values, ok := req.URL.Query()[name]
		if !ok {
			return nil, errgo.Newf("message-signature: query parameter %q is not present", name)
		}
		return values, nil
	case "@signature-params":
		return nil, errgo.Newf("message-signature: @signature-params must not be included as a covered component")
	case "@status":
		return nil, errgo.Newf("message-signature: @status is only valid in responses")
	default:
		return nil, errgo.Newf("message-signature: unknown derived component %q", id.Name)
	}
}

func computeAuthority(req *http.Request) string {
	host := strings.ToLower(req.URL.Hostname())
	port := req.URL.Port()
	if port != "" && port != defaultPort(req.URL.Scheme) {
		return host + ":" + port
	}
	return host
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func computeRequestTarget(req *http.Request) string {
	if req.Method == http.MethodConnect {
		return computeAuthority(req)
	}
	target := req.URL.Path
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	return target
}

// buildSignatureBase renders the lines that get signed: one per
// covered component, followed by the @signature-params line.
func buildSignatureBase(req *http.Request, params Params) (string, error) {
	var lines []string
	for _, id := range params.Components {
		values, err := gatherComponentValues(req, id)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", id.serialize(), strings.Join(values, ", ")))
	}
	lines = append(lines, fmt.Sprintf("%q: %s", "@signature-params", params.serialize()))
	return strings.Join(lines, "\n"), nil
}

// SigningKey signs a signature base and names the algorithm it used.
type SigningKey interface {
	Sign(data []byte) ([]byte, error)
	AlgName() string
}

type hmacKey struct{ secret []byte }

func (k hmacKey) Sign(data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write(data)
	return mac.Sum(nil), nil
}
func (hmacKey) AlgName() string { return "hmac-sha256" }

type ed25519Key struct{ priv ed25519.PrivateKey }

func (k ed25519Key) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, data), nil
}
func (ed25519Key) AlgName() string { return "ed25519" }

type rsaPSSKey struct{ priv *rsa.PrivateKey }

func (k rsaPSSKey) Sign(data []byte) ([]byte, error) {
	sum := sha512.Sum512(data)
	return rsa.SignPSS(rand.Reader, k.priv, crypto.SHA512, sum[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
}
func (rsaPSSKey) AlgName() string { return "rsa-pss-sha512" }

type ecdsaKey struct {
	priv    *ecdsa.PrivateKey
	curve   elliptic.Curve
	hash    crypto.Hash
	algName string
}

func (k ecdsaKey) Sign(data []byte) ([]byte, error) {
	h := k.hash.New()
	h.Write(data)
	sum := h.Sum(nil)
	r, s, err := ecdsa.Sign(rand.Reader, k.priv, sum)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	size := (k.curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}
func (k ecdsaKey) AlgName() string { return k.algName }

// LoadKey builds a SigningKey from key material that is either a raw
// secret (HMAC-SHA256) or a PEM-encoded private key (algorithm chosen
// from the key type: RSA -> rsa-pss-sha512, EC P-256/P-384 ->
// ecdsa-p256-sha256/ecdsa-p384-sha384, Ed25519 -> ed25519).
// A material value starting with "@" is a path to a file holding the
// key, with a leading "~" expanded to the user's home directory.
func LoadKey(material string) (SigningKey, error) {
	raw := []byte(material)
	if path, ok := strings.CutPrefix(material, "@"); ok {
		data, err := os.ReadFile(expandTilde(path))
		if err != nil {
			return nil, errgo.Mask(err)
		}
		raw = data
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return hmacKey{secret: raw}, nil
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errgo.Notef(err, "message-signature: failed to parse RSA private key")
		}
		return rsaPSSKey{priv: priv}, nil
	case "EC PRIVATE KEY":
		priv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, errgo.Notef(err, "message-signature: failed to parse EC private key")
		}
		return ecKeyFor(priv)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errgo.Notef(err, "message-signature: failed to parse private key")
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return rsaPSSKey{priv: k}, nil
		case *ecdsa.PrivateKey:
			return ecKeyFor(k)
		case ed25519.PrivateKey:
			return ed25519Key{priv: k}, nil
		default:
			return nil, errgo.Newf("message-signature: unsupported private key type %T", k)
		}
	default:
		return nil, errgo.Newf("message-signature: unsupported PEM block type %q", block.Type)
	}
}

func ecKeyFor(priv *ecdsa.PrivateKey) (SigningKey, error) {
	switch priv.Curve {
	case elliptic.P256():
		return ecdsaKey{priv: priv, curve: priv.Curve, hash: crypto.SHA256, algName: "ecdsa-p256-sha256"}, nil
	case elliptic.P384():
		return ecdsaKey{priv: priv, curve: priv.Curve, hash: crypto.SHA384, algName: "ecdsa-p384-sha384"}, nil
	default:
		return nil, errgo.Newf("message-signature: unsupported EC curve")
	}
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Sign adds Signature and Signature-Input headers to req, covering
// componentsCSV (or the RFC 9421 default set, if empty) and signed
// with keyMaterial under label "sig1". componentsCSV is a
// comma-separated list as accepted by ParseComponentID, e.g.
// `@method,@authority,content-digest`.
func Sign(req *http.Request, keyID, keyMaterial, componentsCSV string) error {
	key, err := LoadKey(keyMaterial)
	if err != nil {
		return err
	}

	resolved, err := resolveComponents(req, componentsCSV)
	if err != nil {
		return err
	}
	if _, err := ensureContentDigest(req, resolved); err != nil {
		return err
	}

	ids := make([]ComponentID, 0, len(resolved))
	for _, c := range resolved {
		id, err := ParseComponentID(c)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	params := Params{
		Components: ids,
		Created:    time.Now(),
		KeyID:      keyID,
		Alg:        key.AlgName(),
	}

	base, err := buildSignatureBase(req, params)
	if err != nil {
		return errgo.Notef(err, "message-signature: failed to build signature base")
	}

	sig, err := key.Sign([]byte(base))
	if err != nil {
		return errgo.Notef(err, "message-signature: failed to sign request")
	}

	req.Header.Set("Signature", "sig1=:"+base64.StdEncoding.EncodeToString(sig)+":")
	req.Header.Set("Signature-Input", "sig1="+params.serialize())
	return nil
}
