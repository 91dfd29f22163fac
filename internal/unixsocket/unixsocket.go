// Package unixsocket implements an http.RoundTripper that dials a
// Unix domain socket instead of a TCP host, for talking to daemons
// that only listen on a local socket (Docker, podman, and similar).
package unixsocket

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	errgo "gopkg.in/errgo.v1"
)

// ErrTimeout is returned (wrapped) when a read from the socket takes
// longer than Transport.Timeout to produce its next frame.
var ErrTimeout = errors.New("operation timed out")

// Transport dials SocketPath for every request, ignoring the
// request's Host/port entirely (the socket is the destination), and
// resets Timeout on every read so a slow-but-still-progressing
// response doesn't get killed by an overall deadline.
type Transport struct {
	SocketPath string
	Timeout    time.Duration
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	conn, err := net.Dial("unix", t.SocketPath)
	if err != nil {
		return nil, errgo.Notef(err, "couldn't connect to unix socket %q", t.SocketPath)
	}

	if req.Host == "" {
		req.Host = req.URL.Host
	}

	tc := &timeoutConn{Conn: conn, timeout: t.Timeout}
	if err := tc.bump(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := req.Write(tc); err != nil {
		conn.Close()
		return nil, errgo.Notef(err, "couldn't write request to unix socket")
	}

	br := bufio.NewReader(tc)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, errgo.Notef(err, "couldn't read response from unix socket")
	}
	resp.Body = &closingBody{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

// timeoutConn resets its read/write deadline before every operation,
// so Timeout bounds the gap between frames rather than the whole
// connection lifetime.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timeoutConn) bump() error {
	if c.timeout <= 0 {
		return nil
	}
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return errgo.Mask(err)
	}
	return nil
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if err := c.bump(); err != nil {
		return 0, err
	}
	n, err := c.Conn.Read(p)
	if isTimeout(err) {
		err = ErrTimeout
	}
	return n, err
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if err := c.bump(); err != nil {
		return 0, err
	}
	n, err := c.Conn.Write(p)
	if isTimeout(err) {
		err = ErrTimeout
	}
	return n, err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// closingBody closes the underlying socket connection once the
// response body has been fully consumed and closed, since
// http.ReadResponse doesn't own the connection itself.
type closingBody struct {
	io.ReadCloser
	conn net.Conn
}

func (b *closingBody) Close() error {
	err := b.ReadCloser.Close()
	if cerr := b.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
