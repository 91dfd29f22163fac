package cli

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rogpeppe/xhgo/internal/download"
)

// downloadTargetPath picks the path PrepareRequest needs before the
// request is even sent, so a --continue resume can inspect an
// existing file's size. It only has the explicit --output and the URL
// to go on; finishDownload re-derives the final name from the
// response's Content-Disposition header when neither --output nor
// --continue was given.
func downloadTargetPath(p *Params) string {
	if p.Output != "" {
		return p.Output
	}
	return download.DeriveFilename("", http.Header{}, p.URL.Path)
}

// finishDownload derives the final filename from the response (now
// that headers are available), saves the body, and reports what
// happened the way the real tool's progress messages do.
func finishDownload(p *Params, resp *http.Response, provisionalPath string, stderr io.Writer) (int, error) {
	path := provisionalPath
	if p.Output == "" && !p.Continue {
		path = download.UniquePath(".", download.DeriveFilename("", resp.Header, p.URL.Path))
	}

	result, err := download.Save(path, resp, download.Options{Continue: p.Continue})
	if err != nil {
		return 1, err
	}
	if result.Complete {
		fmt.Fprintf(stderr, "Download %s is already complete\n", result.Path)
		return 0, nil
	}
	verb := "Downloading"
	if result.Resumed {
		verb = "Resuming download"
	}
	fmt.Fprintf(stderr, "%s to %s\n", verb, result.Path)
	fmt.Fprintf(stderr, "Done. %d bytes\n", result.Bytes)
	return 0, nil
}
