// Package middleware runs an HTTP request through an ordered chain of
// handlers — signing, auth, cookies, redirects, a user-supplied print
// hook, and finally the transport — each able to inspect or rewrite
// the request/response and to decide whether to call the next one.
package middleware

import (
	"net/http"
	"time"
)

// ResponseMeta carries timing (and other out-of-band) information
// about a round trip that doesn't belong on http.Response itself.
type ResponseMeta struct {
	Elapsed time.Duration
}

// Middleware is one link in the chain. It receives the context (which
// holds the remaining chain and the terminal transport) and the
// request, and returns the final response for that request — typically
// by calling ctx.Next, possibly more than once (as redirect.Follower
// does).
type Middleware interface {
	Handle(ctx *Context, req *http.Request) (*http.Response, error)
}

// MiddlewareFunc adapts a plain function to the Middleware interface.
type MiddlewareFunc func(ctx *Context, req *http.Request) (*http.Response, error)

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx *Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// PrintHook is called by redirect.Follower (and any other middleware
// that produces more than one response per user-visible request) once
// per intermediate response, so the CLI's printer can show each hop.
type PrintHook func(resp *http.Response, nextReq *http.Request) error

// Context threads the remaining middleware chain, the terminal
// transport, and the print hook through a call to Handle.
type Context struct {
	chain     []Middleware
	index     int
	Transport http.RoundTripper
	PrintHook PrintHook
	Meta      *ResponseMeta
}

// NewChain builds a Context for running req through the given ordered
// chain (outer-to-inner) ending at transport.
func NewChain(chain []Middleware, transport http.RoundTripper) *Context {
	return &Context{chain: chain, index: -1, Transport: transport, Meta: &ResponseMeta{}}
}

// Next invokes the next middleware in the chain, or the terminal
// transport if the chain is exhausted, recording elapsed time on the
// terminal round trip.
func (ctx *Context) Next(req *http.Request) (*http.Response, error) {
	i := ctx.index + 1
	if i < len(ctx.chain) {
		ctx.index = i
		defer func() { ctx.index = i - 1 }()
		return ctx.chain[i].Handle(ctx, req)
	}
	start := time.Now()
	resp, err := ctx.Transport.RoundTrip(req)
	ctx.Meta.Elapsed = time.Since(start)
	return resp, err
}

// Run executes req through chain, ending at transport.
func Run(chain []Middleware, transport http.RoundTripper, req *http.Request) (*http.Response, *ResponseMeta, error) {
	ctx := NewChain(chain, transport)
	resp, err := ctx.Next(req)
	return resp, ctx.Meta, err
}
