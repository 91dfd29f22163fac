// Package cookiejar wraps juju/persistent-cookiejar so that a single
// process can hold one jar per active session (rather than the
// teacher's one-jar-per-invocation model) and can serialize a jar's
// contents into the neutral cookie-record shape the session store
// persists to disk.
package cookiejar

import (
	"net/http"
	"net/url"
	"sync"

	pcookiejar "github.com/juju/persistent-cookiejar"
)

// Record is the host-independent shape a session file stores a cookie
// as; it doesn't care which jar implementation produced it.
type Record struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Jar is a thread-safe cookie jar, safe to share between the
// middleware chain and whatever goroutine persists the session file.
type Jar struct {
	mu  sync.Mutex
	jar *pcookiejar.Jar
}

// New creates a jar backed by a file for persistence across
// invocations. A jar created with an empty path is memory-only:
// nothing is loaded from disk and Save is a no-op.
func New(path string) (*Jar, error) {
	j, err := pcookiejar.New(&pcookiejar.Options{Filename: path, NoPersist: path == ""})
	if err != nil {
		return nil, err
	}
	return &Jar{jar: j}, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Save persists the jar to its backing file, if any.
func (j *Jar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Save()
}

// LoadRecords seeds the jar with cookies recorded against host (and
// optionally scoped to an explicit path), as read back from a session
// file.
func (j *Jar) LoadRecords(host string, records []Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range records {
		domain := r.Domain
		if domain == "" {
			domain = host
		}
		path := r.Path
		if path == "" {
			path = "/"
		}
		u := &url.URL{Scheme: "https", Host: domain, Path: path}
		if !r.Secure {
			u.Scheme = "http"
		}
		j.jar.SetCookies(u, []*http.Cookie{{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     path,
			Secure:   r.Secure,
			HttpOnly: r.HTTPOnly,
		}})
	}
}

// RecordsFor returns the cookies currently held for u, in the neutral
// Record shape a session file stores.
func (j *Jar) RecordsFor(u *url.URL) []Record {
	cookies := j.Cookies(u)
	records := make([]Record, len(cookies))
	for i, c := range cookies {
		records[i] = Record{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
	}
	return records
}
