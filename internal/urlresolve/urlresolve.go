// Package urlresolve turns a user-typed target argument into a full URL
// the way the CLI's positional-argument parser does, and resolves
// authentication credentials from an --auth flag or from a .netrc file.
package urlresolve

import (
	"net/url"
	"strconv"
	"strings"

	errgo "gopkg.in/errgo.v1"
	"golang.org/x/net/idna"
)

// ResolveURL expands shorthand forms of a target argument into a full
// URL, defaulting the scheme to http and the host to localhost.
//
// ":8080/foo"  -> "http://localhost:8080/foo"
// ":/foo"      -> "http://localhost/foo"
// "example.com" -> "http://example.com"
func ResolveURL(raw string) (*url.URL, error) {
	urlStr := raw
	if strings.HasPrefix(urlStr, ":") {
		if urlStr == ":" || strings.HasPrefix(urlStr, ":/") {
			urlStr = "http://localhost" + urlStr[1:]
		} else {
			urlStr = "http://localhost" + urlStr
		}
	}
	if !strings.HasPrefix(urlStr, "http:") && !strings.HasPrefix(urlStr, "https:") {
		urlStr = "http://" + urlStr
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errgo.Notef(err, "invalid URL %q", raw)
	}
	if u.Host == "" {
		u.Host = "localhost"
	}
	return u, nil
}

// ParseAuth splits an --auth argument of the form "user:pass", "user:"
// or "user" into its components. hasPass is false only for the bare
// "user" form, in which case the caller should prompt for a password
// (or fall back to netrc).
func ParseAuth(s string) (user, pass string, hasPass bool) {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx], s[idx+1:], true
	}
	return s, "", false
}

// Entry is a resolved netrc login/password pair.
type Entry struct {
	Login    string
	Password string
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if allDigits(host) {
		if n, err := strconv.ParseUint(host, 10, 32); err == nil {
			return strconv.FormatUint(uint64(byte(n>>24))<<24|uint64(byte(n>>16))<<16|uint64(byte(n>>8))<<8|uint64(byte(n)), 10)
		}
	}
	if ip := parseDottedIPv4(host); ip != "" {
		return ip
	}
	ascii, err := idna.ToASCII(strings.ToLower(host))
	if err != nil {
		return strings.ToLower(host)
	}
	return ascii
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseDottedIPv4 normalizes a dotted-quad IPv4 literal to its decimal
// integer form so that it compares equal to the all-digits spelling; it
// returns "" for anything else, IPv6 literals included.
func parseDottedIPv4(s string) string {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ""
	}
	var n uint32
	for _, p := range parts {
		if !allDigits(p) {
			return ""
		}
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return ""
		}
		n = n<<8 | uint32(v)
	}
	return strconv.FormatUint(uint64(n), 10)
}
