// Package printer renders an HTTP request and/or response to an
// outbuf.Buffer, honoring which of headers/body the caller asked for
// and pretty-printing or highlighting JSON bodies.
package printer

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"

	"github.com/rogpeppe/xhgo/internal/highlight"
	"github.com/rogpeppe/xhgo/internal/jsonfmt"
	"github.com/rogpeppe/xhgo/internal/outbuf"
)

// What selects which parts of a message get printed, matching the
// letters accepted by --print=HBhb (Headers/Body for request/response).
type What struct {
	RequestHeaders  bool
	RequestBody     bool
	ResponseHeaders bool
	ResponseBody    bool
}

// Verbose is the --verbose shorthand: everything.
func Verbose() What {
	return What{true, true, true, true}
}

// Printer writes formatted HTTP traffic to an outbuf.Buffer.
type Printer struct {
	Out    *outbuf.Buffer
	Syntax highlight.Syntax // not consulted: body syntax comes from the Content-Type
}

// PrintRequestLine writes the request line and (optionally) headers.
func (p *Printer) PrintRequestLine(req *http.Request, what What) error {
	if !what.RequestHeaders {
		return nil
	}
	line := fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto)
	if err := p.writeHighlighted(highlight.HTTP, line); err != nil {
		return err
	}
	if _, err := io.WriteString(p.Out, "\n"); err != nil {
		return err
	}
	hostLine := fmt.Sprintf("Host: %s", req.Host)
	if err := p.writeHighlighted(highlight.HTTP, hostLine); err != nil {
		return err
	}
	if _, err := io.WriteString(p.Out, "\n"); err != nil {
		return err
	}
	if err := p.printHeaders(req.Header); err != nil {
		return err
	}
	_, err := io.WriteString(p.Out, "\n")
	return err
}

// PrintRequestBody writes a pre-rendered request body (the raw bytes
// that were actually sent), pretty-printing it if it looks like JSON.
func (p *Printer) PrintRequestBody(body []byte, contentType string, what What) error {
	if !what.RequestBody || len(body) == 0 {
		return nil
	}
	return p.printBody(body, contentType)
}

// PrintResponse writes the status line, headers, and/or body of resp
// according to what. The body is consumed from resp.Body.
func (p *Printer) PrintResponse(resp *http.Response, what What) error {
	if what.ResponseHeaders {
		statusLine := fmt.Sprintf("%s %s", resp.Proto, resp.Status)
		if err := p.writeHighlighted(highlight.HTTP, statusLine); err != nil {
			return err
		}
		if _, err := io.WriteString(p.Out, "\n"); err != nil {
			return err
		}
		if err := p.printHeaders(resp.Header); err != nil {
			return err
		}
		if _, err := io.WriteString(p.Out, "\n"); err != nil {
			return err
		}
	}
	if !what.ResponseBody {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	return p.printBody(data, resp.Header.Get("Content-Type"))
}

func (p *Printer) printBody(data []byte, contentType string) error {
	isJSON := false
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			isJSON = mediaType == "application/json" || len(mediaType) > 5 && mediaType[len(mediaType)-5:] == "+json"
		}
	}
	if !isJSON {
		if p.Out.UseColor() {
			return p.writeHighlighted(p.bodySyntax(contentType), string(data))
		}
		_, err := p.Out.Write(data)
		return err
	}
	var buf bytes.Buffer
	f := jsonfmt.NewPrettyPrinter()
	f.Indent = "    "
	f.EagerRecordSeparators = true
	if err := f.FormatBuf(data, &buf); err != nil {
		_, werr := p.Out.Write(data)
		return werr
	}
	pretty := buf.Bytes()
	if len(pretty) > 0 && pretty[len(pretty)-1] != '\n' {
		pretty = append(pretty, '\n')
	}
	if p.Out.UseColor() {
		return p.writeHighlighted(highlight.JSON, string(pretty))
	}
	_, err := p.Out.Write(pretty)
	return err
}

func (p *Printer) bodySyntax(contentType string) highlight.Syntax {
	switch {
	case contentType == "":
		return highlight.HTTP
	case mimeIs(contentType, "xml"):
		return highlight.XML
	case mimeIs(contentType, "html"):
		return highlight.HTML
	default:
		return highlight.HTTP
	}
}

func mimeIs(contentType, want string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/"+want || mediaType == "application/"+want
}

func (p *Printer) printHeaders(h http.Header) error {
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range h[key] {
			line := fmt.Sprintf("%s: %s", key, highlight.ReplaceNonPrintable(value))
			if err := p.writeHighlighted(highlight.HTTP, line); err != nil {
				return err
			}
			if _, err := io.WriteString(p.Out, "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Printer) writeHighlighted(syntax highlight.Syntax, line string) error {
	if !p.Out.UseColor() {
		_, err := io.WriteString(p.Out, line)
		return err
	}
	for _, run := range highlight.Line(syntax, line) {
		if _, err := io.WriteString(p.Out, ansiEscape(run.Style)); err != nil {
			return err
		}
		if _, err := io.WriteString(p.Out, run.Text); err != nil {
			return err
		}
		if _, err := io.WriteString(p.Out, "\x1b[0m"); err != nil {
			return err
		}
	}
	return nil
}

func ansiEscape(s highlight.Style) string {
	if s.FG.A == 0 {
		switch {
		case s.FG.R == 0x07:
			return ""
		case s.FG.R <= 6:
			return fmt.Sprintf("\x1b[%dm", 30+int(s.FG.R))
		default:
			return fmt.Sprintf("\x1b[38;5;%dm", s.FG.R)
		}
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", s.FG.R, s.FG.G, s.FG.B)
}
