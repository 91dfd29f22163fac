// Package cli implements the xh command-line driver: flag parsing,
// request assembly, middleware wiring, and exit-code mapping.
package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	flag "github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/rogpeppe/xhgo/internal/cookiejar"
	"github.com/rogpeppe/xhgo/internal/download"
	"github.com/rogpeppe/xhgo/internal/outbuf"
	"github.com/rogpeppe/xhgo/internal/printer"
	"github.com/rogpeppe/xhgo/internal/session"
	"github.com/rogpeppe/xhgo/internal/urlresolve"
)

var logger = loggo.GetLogger("xh")

const helpMessage = `usage: xh [flag...] [METHOD] URL [REQUEST_ITEM [REQUEST_ITEM...]]

  METHOD
      GET, HEAD, POST, PUT, PATCH, DELETE or OPTIONS (case-insensitive).
      Omitted, it defaults to GET, or POST when data-sending items are
      present.

  URL
      The scheme defaults to http:// if none is given.

          xh :3000                 # => http://localhost:3000
          xh :/foo                 # => http://localhost/foo

  REQUEST_ITEM
      ':'  header            Referer:http://example.com
      '==' query parameter   search==xh
      '='  data field        name=xh
      ':=' JSON data field   awesome:=true
      '@'  multipart file    cv@~/cv.pdf
`

var errUsage = errors.New("bad usage")

// exitError carries a fixed process exit code past the point an error
// would otherwise just be printed with exit code 1.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("exit with code %d", e.code)
}

// proxyList accumulates repeated --proxy proto:url flags.
type proxyList []string

func (p *proxyList) String() string { return strings.Join(*p, ",") }
func (p *proxyList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// Params is every value the flag set can produce, plus the parsed
// positional method/URL/request-item arguments.
type Params struct {
	JSON, Form, Multipart bool

	Pretty  string
	Style   string
	Verbose bool
	Headers bool
	Body    bool
	Print   string

	Proxies    proxyList
	Verify     string
	Cert       string
	CertKey    string
	UnixSocket string

	Follow       bool
	MaxRedirects int
	CheckStatus  bool
	Timeout      float64
	Download     bool
	Continue     bool
	Output       string
	IgnoreStdin  bool
	Offline      bool

	Auth            string
	AuthType        string
	Bearer          string
	Session         string
	SessionReadOnly string

	SigID   string
	SigKey  string
	SigComp string

	ColorMode string
	Debug     bool

	Method string
	URL    *url.URL
	Items  []string

	authUser, authPass string
}

func (p *Params) resolvedAuthType() string {
	switch {
	case p.Bearer != "":
		return "bearer"
	case p.AuthType != "":
		return p.AuthType
	case p.Auth != "":
		return "basic"
	default:
		return ""
	}
}

func newFlagSet(name string) (*flag.FlagSet, *Params) {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	p := &Params{MaxRedirects: 30, Pretty: "all", ColorMode: "auto"}

	fset.BoolVar(&p.JSON, "j", false, "serialize data items as a JSON object (default)")
	fset.BoolVar(&p.JSON, "json", false, "")
	fset.BoolVar(&p.Form, "f", false, "serialize data items as form values")
	fset.BoolVar(&p.Form, "form", false, "")
	fset.BoolVar(&p.Multipart, "multipart", false, "always use multipart/form-data, even without a file field")

	fset.StringVar(&p.Pretty, "pretty", "all", "all, colors, format or none; accepted, but output processing does not depend on it")
	fset.StringVar(&p.Style, "style", "", "coloring style name; accepted, but the colors used do not depend on it")
	fset.BoolVar(&p.Verbose, "verbose", false, "print the whole request as well as the response")
	fset.BoolVar(&p.Headers, "h", false, "print only the response headers")
	fset.BoolVar(&p.Headers, "headers", false, "")
	fset.BoolVar(&p.Body, "b", false, "print only the response body")
	fset.BoolVar(&p.Body, "body", false, "")
	fset.StringVar(&p.Print, "print", "", "string consisting of any of HhBb to select what to print")
	fset.StringVar(&p.ColorMode, "color", "auto", "auto, always or never")

	fset.Var(&p.Proxies, "proxy", "proto:url proxy to use for http, https or all (repeatable)")
	fset.StringVar(&p.Verify, "verify", "yes", "yes, no, or a CA bundle path")
	fset.StringVar(&p.Cert, "cert", "", "client certificate file")
	fset.StringVar(&p.CertKey, "cert-key", "", "client certificate private key file")
	fset.StringVar(&p.UnixSocket, "unix-socket", "", "connect to a unix domain socket instead of a TCP host")

	fset.BoolVar(&p.Follow, "follow", false, "follow redirects")
	fset.IntVar(&p.MaxRedirects, "max-redirects", 30, "maximum number of redirects to follow")
	fset.BoolVar(&p.CheckStatus, "check-status", false, "exit with an error status if the response is 3xx/4xx/5xx")
	fset.Float64Var(&p.Timeout, "timeout", 0, "connection timeout in seconds")
	fset.BoolVar(&p.Download, "d", false, "download the response body to a file")
	fset.BoolVar(&p.Download, "download", false, "")
	fset.BoolVar(&p.Continue, "c", false, "resume an interrupted download")
	fset.BoolVar(&p.Continue, "continue", false, "")
	fset.StringVar(&p.Output, "o", "", "save output to file")
	fset.StringVar(&p.Output, "output", "", "")
	fset.BoolVar(&p.IgnoreStdin, "ignore-stdin", false, "do not read stdin even if it's not a tty")
	fset.BoolVar(&p.Offline, "offline", false, "build the request and print it without sending it")

	fset.StringVar(&p.Auth, "a", "", "username[:password] for basic/digest auth")
	fset.StringVar(&p.Auth, "auth", "", "")
	fset.StringVar(&p.AuthType, "auth-type", "", "basic, digest or bearer")
	fset.StringVar(&p.Bearer, "bearer", "", "bearer token")
	fset.StringVar(&p.Session, "session", "", "session name or path")
	fset.StringVar(&p.SessionReadOnly, "session-read-only", "", "session name or path, never updated")

	fset.StringVar(&p.SigID, "unstable-m-sig-id", "", "message-signature key id")
	fset.StringVar(&p.SigKey, "unstable-m-sig-key", "", "message-signature key material, or @path")
	fset.StringVar(&p.SigComp, "unstable-m-sig-comp", "", "comma-separated message-signature components")

	fset.BoolVar(&p.Debug, "debug", false, "print debugging information, including all HTTP traffic")

	fset.Usage = func() {
		fmt.Fprint(os.Stderr, helpMessage)
		fset.PrintDefaults()
	}
	return fset, p
}

// finishParsing resolves the positional method/URL/request-item
// grammar out of fset.Args(), the way the teacher's parseArgs does: an
// optional leading all-letters token naming a known method, then the
// URL, then zero or more request items.
func finishParsing(fset *flag.FlagSet, p *Params) error {
	rest := fset.Args()
	if len(rest) == 0 {
		return errUsage
	}
	if isMethod(rest[0]) {
		p.Method, rest = strings.ToUpper(rest[0]), rest[1:]
		if len(rest) == 0 {
			return errUsage
		}
	}
	u, err := urlresolve.ResolveURL(rest[0])
	if err != nil {
		return err
	}
	p.URL, rest = u, rest[1:]
	p.Items = rest

	resolveAuth(p, u)

	if p.Method == "" {
		if classifyIsDataSending(p.Items) {
			p.Method = "POST"
		} else {
			p.Method = "GET"
		}
	}
	return nil
}

func resolveAuth(p *Params, u *url.URL) {
	if p.Auth != "" {
		user, pass, hasPass := urlresolve.ParseAuth(p.Auth)
		if !hasPass {
			if entry, ok := urlresolve.FindNetrcEntry(u.Hostname()); ok {
				user, pass = entry.Login, entry.Password
			}
		}
		p.authUser, p.authPass = user, pass
		if p.AuthType == "" {
			p.AuthType = "basic"
		}
		return
	}
	if p.Bearer != "" {
		return
	}
	if entry, ok := urlresolve.FindNetrcEntry(u.Hostname()); ok {
		p.authUser, p.authPass = entry.Login, entry.Password
		if p.AuthType == "" {
			p.AuthType = "basic"
		}
	}
}

func classifyIsDataSending(args []string) bool {
	it, err := classifyItems(args)
	if err != nil {
		return false
	}
	return it.hasBody()
}

func isMethod(s string) bool {
	switch strings.ToUpper(s) {
	case "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS":
		return true
	}
	return false
}

// Run is the top-level entry point: parse args, build and send the
// request, print the response, and return the process exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fset, p := newFlagSet("xh")
	if err := fset.Parse(true, args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if err := finishParsing(fset, p); err != nil {
		if err == errUsage {
			fset.Usage()
		} else {
			fmt.Fprintf(stderr, "xh: %v\n", err)
		}
		return 1
	}
	if p.Debug {
		loggo.ConfigureLoggers("DEBUG")
		logger.Debugf("parsed args: %+v", args)
	}

	code, err := run(p, stdin, stdout, stderr)
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintf(stderr, "xh: %s\n", ee.msg)
			}
			return ee.code
		}
		fmt.Fprintf(stderr, "xh: %v\n", err)
		return 1
	}
	return code
}

func run(p *Params, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	it, err := classifyItems(p.Items)
	if err != nil {
		return 1, err
	}
	it.applyQuery(p.URL)

	req, body, err := buildRequest(p, it, stdin)
	if err != nil {
		return 1, err
	}

	sessionPath, readOnly := p.Session, false
	if sessionPath == "" {
		sessionPath, readOnly = p.SessionReadOnly, true
	}
	var sess *session.Session
	if sessionPath != "" {
		sess, err = session.Load(p.URL, sessionPath, readOnly)
		if err != nil {
			return 1, err
		}
		sess.ApplyHeaders(req)
	}

	jar, err := cookiejar.New("")
	if err != nil {
		return 1, err
	}
	if sess != nil {
		jar.LoadRecords(p.URL.Hostname(), sess.Cookies())
	}

	if p.Offline {
		what := resolveWhat(p)
		what.RequestHeaders = true
		kind := outbuf.KindFor(stdout, false, p.Output != "")
		pr := &printer.Printer{Out: outbuf.New(stdout, kind, colorModeFor(p.ColorMode))}
		return 0, printRequest(pr, req, body, what)
	}

	transport, err := buildTransport(p)
	if err != nil {
		return 1, err
	}
	chain := buildChain(p, jar)

	targetPath := ""
	if p.Download {
		targetPath = downloadTargetPath(p)
		warning := download.PrepareRequest(req, targetPath, download.Options{
			Continue:  p.Continue,
			UserRange: req.Header.Get("Range"),
		})
		if warning != "" {
			fmt.Fprintf(stderr, "xh: %s\n", warning)
		}
	}

	what := resolveWhat(p)
	if what.RequestHeaders || what.RequestBody {
		kind := outbuf.KindFor(stdout, false, p.Output != "")
		pr := &printer.Printer{Out: outbuf.New(stdout, kind, colorModeFor(p.ColorMode))}
		if err := printRequest(pr, req, body, what); err != nil {
			return 1, err
		}
	}

	resp, err := runChain(p, chain, transport, req, stdout)
	if err != nil {
		return 1, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if sess != nil {
		sess.SaveHeaders(req.Header)
		if p.resolvedAuthType() != "" {
			sess.SaveAuth(p.resolvedAuthType(), rawAuthFor(p))
		}
		sess.SaveCookies(jar.RecordsFor(p.URL), nil)
		if err := sess.Persist(); err != nil {
			fmt.Fprintf(stderr, "xh: %v\n", err)
		}
	}

	if p.Download {
		return finishDownload(p, resp, targetPath, stderr)
	}

	if err := printResponse(p, resp, stdout); err != nil {
		return 1, err
	}

	if p.CheckStatus {
		class := resp.StatusCode / 100
		if class != 2 {
			fmt.Fprintf(stderr, "xh: warning: HTTP %s\n", resp.Status)
			return class, nil
		}
	}
	return 0, nil
}

func rawAuthFor(p *Params) string {
	if p.resolvedAuthType() == "bearer" {
		return p.Bearer
	}
	return session.FormatBasicLike(p.authUser, p.authPass)
}

func classifyTransportError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "Too many redirects") {
		return &exitError{code: 6, msg: msg}
	}
	if isTimeoutErr(err) {
		return &exitError{code: 2, msg: msg}
	}
	return err
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; e = errors.Unwrap(e) {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
	}
	return strings.Contains(err.Error(), "operation timed out")
}

// printRequest writes the request line, headers and (if asked for) the
// body that's about to be sent, using the same What selection that
// governs the response.
func printRequest(pr *printer.Printer, req *http.Request, body []byte, what printer.What) error {
	if err := pr.PrintRequestLine(req, what); err != nil {
		return err
	}
	return pr.PrintRequestBody(body, req.Header.Get("Content-Type"), what)
}

func printResponse(p *Params, resp *http.Response, stdout io.Writer) error {
	what := resolveWhat(p)
	out := stdout
	if p.Output != "" {
		f, err := os.Create(p.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	kind := outbuf.KindFor(out, false, p.Output != "")
	pr := &printer.Printer{Out: outbuf.New(out, kind, colorModeFor(p.ColorMode))}
	return pr.PrintResponse(resp, what)
}

func resolveWhat(p *Params) printer.What {
	if p.Verbose {
		return printer.Verbose()
	}
	if p.Print != "" {
		return printer.What{
			RequestHeaders:  strings.ContainsAny(p.Print, "H"),
			RequestBody:     strings.ContainsAny(p.Print, "B"),
			ResponseHeaders: strings.ContainsAny(p.Print, "h"),
			ResponseBody:    strings.ContainsAny(p.Print, "b"),
		}
	}
	what := printer.What{ResponseHeaders: true, ResponseBody: true}
	if p.Headers {
		what.ResponseBody = false
	}
	if p.Body {
		what.ResponseHeaders = false
	}
	return what
}

func colorModeFor(mode string) outbuf.ColorMode {
	switch mode {
	case "always":
		return outbuf.Always
	case "never":
		return outbuf.Never
	default:
		return outbuf.Auto
	}
}
