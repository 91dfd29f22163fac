package unixsocket_test

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/unixsocket"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func serveOnce(c *gc.C, socketPath string, handler http.Handler) {
	ln, err := net.Listen("unix", socketPath)
	c.Assert(err, gc.IsNil)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		rec.Result().Write(conn)
	}()
}

func (*suite) TestRoundTripOverUnixSocket(c *gc.C) {
	socketPath := filepath.Join(c.MkDir(), "test.sock")
	serveOnce(c, socketPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Reply", "pong")
		w.WriteHeader(200)
		w.Write([]byte("hello"))
	}))

	transport := &unixsocket.Transport{SocketPath: socketPath}
	req, err := http.NewRequest("GET", "http://unix/ping", nil)
	c.Assert(err, gc.IsNil)

	resp, err := transport.RoundTrip(req)
	c.Assert(err, gc.IsNil)
	defer resp.Body.Close()

	c.Check(resp.Header.Get("X-Reply"), gc.Equals, "pong")
	data, err := io.ReadAll(resp.Body)
	c.Assert(err, gc.IsNil)
	c.Check(string(data), gc.Equals, "hello")
}

func (*suite) TestMissingSocketErrors(c *gc.C) {
	transport := &unixsocket.Transport{SocketPath: filepath.Join(c.MkDir(), "nope.sock")}
	req, err := http.NewRequest("GET", "http://unix/ping", nil)
	c.Assert(err, gc.IsNil)

	_, err = transport.RoundTrip(req)
	c.Assert(err, gc.NotNil)
}

func (*suite) TestHostHeaderInjectedFromRequestHost(c *gc.C) {
	socketPath := filepath.Join(c.MkDir(), "host.sock")
	var gotHost string
	serveOnce(c, socketPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(200)
	}))

	transport := &unixsocket.Transport{SocketPath: socketPath}
	req, err := http.NewRequest("GET", "http://example.com/ping", nil)
	c.Assert(err, gc.IsNil)

	resp, err := transport.RoundTrip(req)
	c.Assert(err, gc.IsNil)
	resp.Body.Close()

	c.Check(gotHost, gc.Equals, "example.com")
}
