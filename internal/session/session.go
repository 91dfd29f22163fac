// Package session implements loading and persisting xh-style session
// files: a JSON document recording headers, auth and cookies that get
// replayed into later requests against the same named session.
package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/rjson"

	"github.com/rogpeppe/xhgo/internal/cookiejar"
)

// Auth is the round-tripped authentication recorded in a session file.
type Auth struct {
	Type    string `json:"type"`
	RawAuth string `json:"raw_auth"`
}

// Header is one request header, kept as a name/value pair rather than
// a map so that duplicate header names survive a round trip.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Cookie is the neutral, serializable shape of a stored cookie.
type Cookie struct {
	Value   string `json:"value"`
	Expires *int64 `json:"expires,omitempty"`
	Path    string `json:"path,omitempty"`
	Secure  bool   `json:"secure,omitempty"`
}

type meta struct {
	About string `json:"about,omitempty"`
	XH    string `json:"xh,omitempty"`
	// Httpie is populated only when reading an httpie-authored session
	// file; it is never written by us.
	Httpie string `json:"httpie,omitempty"`
}

func defaultMeta() meta {
	return meta{About: "xh session file", XH: "0.0.0"}
}

// content is the on-disk shape of a session file. Headers absorbs
// both the legacy map-of-strings format and the list-of-{name,value}
// format; Load migrates the former into the latter in memory.
type content struct {
	Meta    meta              `json:"__meta__"`
	AuthRaw Auth              `json:"auth"`
	Cookies map[string]Cookie `json:"cookies"`
	Headers json.RawMessage   `json:"headers"`

	headerList []Header
}

// Session is an open session file: its parsed content plus the path
// it was loaded from (or will be created at).
type Session struct {
	Path     string
	ReadOnly bool
	content  content
}

// Load reads the session identified by nameOrPath against u, or
// starts a fresh empty session if no file exists yet. nameOrPath is
// treated as a literal filesystem path if it contains a path
// separator; otherwise it names a session under
// <user-config-dir>/xh/sessions/<host>[_<port>]/<name>.json.
func Load(u *url.URL, nameOrPath string, readOnly bool) (*Session, error) {
	path, err := resolvePath(u, nameOrPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var c content
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errgo.Notef(err, "invalid session file %q", path)
		}
		if err := c.migrate(); err != nil {
			return nil, err
		}
		return &Session{Path: path, ReadOnly: readOnly, content: c}, nil
	case os.IsNotExist(err):
		c := content{Meta: defaultMeta(), Cookies: map[string]Cookie{}}
		return &Session{Path: path, ReadOnly: readOnly, content: c}, nil
	default:
		return nil, errgo.Mask(err)
	}
}

func resolvePath(u *url.URL, nameOrPath string) (string, error) {
	if strings.ContainsRune(nameOrPath, os.PathSeparator) || strings.ContainsRune(nameOrPath, '/') {
		return nameOrPath, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	host, err := hostDir(u)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "xh", "sessions", host, nameOrPath+".json"), nil
}

// configDir is os.UserConfigDir(), overridable with XH_CONFIG_DIR so
// tests (and users) can redirect sessions and cookies elsewhere.
func configDir() (string, error) {
	if dir := os.Getenv("XH_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errgo.Notef(err, "couldn't get config directory")
	}
	return dir, nil
}

func hostDir(u *url.URL) (string, error) {
	host := u.Hostname()
	if host == "" || host == "." || host == ".." {
		return "", errgo.Newf("couldn't extract host from url")
	}
	if port := u.Port(); port != "" {
		return host + "_" + port, nil
	}
	return host, nil
}

// migrate normalizes the raw JSON in Headers into headerList,
// accepting both the legacy map format and the list-of-pairs format,
// and resets __meta__ to our own identity (matching what a save would
// write, so an httpie- or older-xh-authored file is re-stamped as
// ours once touched).
func (c *content) migrate() error {
	c.Meta = defaultMeta()
	if c.Cookies == nil {
		c.Cookies = map[string]Cookie{}
	}
	if len(c.Headers) == 0 {
		return nil
	}
	var list []Header
	if err := json.Unmarshal(c.Headers, &list); err == nil {
		c.headerList = list
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(c.Headers))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return errgo.Newf("invalid headers in session file")
	}
	for dec.More() {
		var value string
		tok, err := dec.Token()
		if err == nil {
			err = dec.Decode(&value)
		}
		if err != nil {
			return errgo.Notef(err, "invalid headers in session file")
		}
		c.headerList = append(c.headerList, Header{Name: tok.(string), Value: value})
	}
	return nil
}

// Headers returns the headers recorded in the session, in the order
// they were stored.
func (s *Session) Headers() []Header {
	return s.content.headerList
}

// ApplyHeaders sets every recorded header onto req, without
// clobbering headers already present.
func (s *Session) ApplyHeaders(req *http.Request) {
	present := make(map[string]bool)
	for name := range req.Header {
		present[http.CanonicalHeaderKey(name)] = true
	}
	for _, h := range s.content.headerList {
		if !present[http.CanonicalHeaderKey(h.Name)] {
			req.Header.Add(h.Name, h.Value)
		}
	}
}

// SaveHeaders replaces the recorded header list with a snapshot of
// requestHeaders, skipping headers that describe one particular
// request rather than the session as a whole: Cookie (handled
// separately via SaveCookies), and anything starting with
// "Content-" or "If-".
func (s *Session) SaveHeaders(requestHeaders http.Header) {
	s.content.headerList = s.content.headerList[:0]
	for key, values := range requestHeaders {
		lower := strings.ToLower(key)
		if lower == "cookie" || strings.HasPrefix(lower, "content-") || strings.HasPrefix(lower, "if-") {
			continue
		}
		for _, v := range values {
			s.content.headerList = append(s.content.headerList, Header{Name: key, Value: v})
		}
	}
}

// Auth returns the recorded auth, or ok == false if none was saved.
func (s *Session) Auth() (Auth, bool) {
	a := s.content.AuthRaw
	if a.Type == "" || a.RawAuth == "" {
		return Auth{}, false
	}
	return a, true
}

// SaveAuth records the type/value pair describing the auth used for
// a request. typ is one of "basic", "digest" or "bearer".
func (s *Session) SaveAuth(typ, rawAuth string) {
	s.content.AuthRaw = Auth{Type: typ, RawAuth: rawAuth}
}

// Cookies returns the recorded cookies for insertion into a cookie
// jar before a request is sent.
func (s *Session) Cookies() []cookiejar.Record {
	records := make([]cookiejar.Record, 0, len(s.content.Cookies))
	for name, c := range s.content.Cookies {
		records = append(records, cookiejar.Record{
			Name:   name,
			Value:  c.Value,
			Path:   pathOrDefault(c.Path),
			Secure: c.Secure,
		})
	}
	return records
}

func pathOrDefault(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// SaveCookies replaces the recorded cookies with records, which
// should be every cookie presently in the jar for the session's
// host.
func (s *Session) SaveCookies(records []cookiejar.Record, expiresAt map[string]time.Time) {
	s.content.Cookies = make(map[string]Cookie, len(records))
	for _, r := range records {
		c := Cookie{Value: r.Value, Path: r.Path, Secure: r.Secure}
		if t, ok := expiresAt[r.Name]; ok && !t.IsZero() {
			unix := t.Unix()
			c.Expires = &unix
		}
		s.content.Cookies[r.Name] = c
	}
}

// Persist writes the session back to Path as 4-space-indented JSON
// followed by a trailing newline, unless the session is read-only and
// the file already exists.
func (s *Session) Persist() error {
	if s.ReadOnly {
		if _, err := os.Stat(s.Path); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return errgo.Mask(err)
	}

	out := struct {
		Meta    meta              `json:"__meta__"`
		Auth    Auth              `json:"auth"`
		Cookies map[string]Cookie `json:"cookies"`
		Headers []Header          `json:"headers"`
	}{
		Meta:    s.content.Meta,
		Auth:    s.content.AuthRaw,
		Cookies: s.content.Cookies,
		Headers: s.content.headerList,
	}
	if out.Headers == nil {
		out.Headers = []Header{}
	}
	if out.Cookies == nil {
		out.Cookies = map[string]Cookie{}
	}

	compact, err := json.Marshal(out)
	if err != nil {
		return errgo.Mask(err)
	}
	var pretty bytes.Buffer
	if err := rjson.Indent(&pretty, compact, "", "    "); err != nil {
		return errgo.Mask(err)
	}
	pretty.WriteByte('\n')

	return os.WriteFile(s.Path, pretty.Bytes(), 0o644)
}

// ParseBasicLike splits a "user:pass" raw_auth value the way basic and
// digest auth store it, matching the historical absence of escaping:
// the first colon separates username from password.
func ParseBasicLike(raw string) (user, pass string) {
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

// FormatBasicLike is the inverse of ParseBasicLike.
func FormatBasicLike(user, pass string) string {
	return user + ":" + pass
}

// ExpiresFromUnix converts a Cookie.Expires field (seconds since the
// epoch) into a time.Time, or the zero Time if unset.
func ExpiresFromUnix(c Cookie) time.Time {
	if c.Expires == nil {
		return time.Time{}
	}
	return time.Unix(*c.Expires, 0)
}

// FormatUnix renders t as decimal seconds since the Unix epoch.
func FormatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
