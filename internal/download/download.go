// Package download implements saving a response body to disk:
// deriving a filename when the user didn't give one, avoiding
// clobbering an existing file, and resuming a partial download with
// Range/Content-Range.
package download

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/xhgo/internal/contentdisposition"
)

// DeriveFilename picks a filename for a downloaded response following
// the priority chain: explicit > Content-Disposition filename* >
// Content-Disposition filename > last URL path segment.
func DeriveFilename(explicit string, header http.Header, urlPath string) string {
	if explicit != "" {
		return sanitize(explicit)
	}
	if cd := header.Get("Content-Disposition"); cd != "" {
		if name := contentdisposition.ParseFilename(cd); name != "" {
			return sanitize(name)
		}
	}
	base := path.Base(urlPath)
	if base == "" || base == "/" || base == "." {
		base = "index"
	}
	return sanitize(base)
}

// sanitize replaces path separators so a derived filename can't escape
// the download directory. On Windows both '/' and '\' are separators;
// everywhere else only '/' is.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	if runtime.GOOS == "windows" {
		name = strings.ReplaceAll(name, `\`, "_")
	}
	return name
}

// UniquePath appends "-1", "-2", ... before the extension until it
// finds a path that doesn't already exist.
func UniquePath(dir, name string) string {
	candidate := path.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = path.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// Result reports what a download actually did, for the CLI to log.
type Result struct {
	Path     string
	Bytes    int64
	Resumed  bool
	Complete bool // true when a resume attempt found the file already complete (416)
}

// Options configures Save.
type Options struct {
	// Continue resumes an existing partial download at Path, if any.
	Continue bool
	// UserRange, if non-empty, is a user-supplied Range header that
	// takes precedence over the Continue-derived one.
	UserRange string
}

// Save writes resp's body to path, honoring Options.Continue. The
// caller is responsible for having set the request's Range header
// (see PrepareRequest) before the request was sent.
func Save(path string, resp *http.Response, opts Options) (*Result, error) {
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && opts.Continue {
		return &Result{Path: path, Resumed: true, Complete: true}, nil
	}

	resumed := opts.Continue && resp.StatusCode == http.StatusPartialContent
	if resumed {
		if err := validateContentRange(resp.Header.Get("Content-Range"), path); err != nil {
			return nil, err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return nil, errgo.Notef(err, "error while downloading")
	}
	return &Result{Path: path, Bytes: n, Resumed: resumed}, nil
}

func validateContentRange(headerValue, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errgo.Mask(err)
	}
	var start, end, total int64
	if _, err := fmt.Sscanf(headerValue, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return errgo.Newf("unparseable Content-Range header %q", headerValue)
	}
	if start != fi.Size() {
		return errgo.Newf("server resumed from unexpected offset %d, wanted %d", start, fi.Size())
	}
	return nil
}

// PrepareRequest sets the Range and Accept-Encoding headers download
// mode always wants: Accept-Encoding is forced to identity (so the
// byte offsets we track are accurate), and a Continue resume sets
// Range unless the user already supplied one, in which case the
// user's header wins and the combination is merely worth warning
// about.
func PrepareRequest(req *http.Request, path string, opts Options) (warning string) {
	req.Header.Set("Accept-Encoding", "identity")
	if opts.UserRange != "" {
		req.Header.Set("Range", opts.UserRange)
		if opts.Continue {
			return "--continue given together with a Range header; using the Range header as given"
		}
		return ""
	}
	if !opts.Continue {
		return ""
	}
	fi, err := os.Stat(path)
	if err != nil {
		return ""
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(fi.Size(), 10)+"-")
	return ""
}
