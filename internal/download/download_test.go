package download_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/download"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestDeriveFilenameFromContentDisposition(c *gc.C) {
	h := http.Header{}
	h.Set("Content-Disposition", `attachment; filename="report.pdf"`)
	name := download.DeriveFilename("", h, "/download")
	c.Check(name, gc.Equals, "report.pdf")
}

func (*suite) TestDeriveFilenameFallsBackToURLPath(c *gc.C) {
	name := download.DeriveFilename("", http.Header{}, "/files/data.json")
	c.Check(name, gc.Equals, "data.json")
}

func (*suite) TestDeriveFilenameExplicitWins(c *gc.C) {
	h := http.Header{}
	h.Set("Content-Disposition", `attachment; filename="report.pdf"`)
	name := download.DeriveFilename("mine.bin", h, "/download")
	c.Check(name, gc.Equals, "mine.bin")
}

func (*suite) TestUniquePathAvoidsCollision(c *gc.C) {
	dir := c.MkDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)
	got := download.UniquePath(dir, "a.txt")
	c.Check(got, gc.Equals, filepath.Join(dir, "a-1.txt"))
}

func (*suite) TestSaveWritesBody(c *gc.C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "out.bin")
	rec := httptest.NewRecorder()
	rec.WriteHeader(200)
	rec.Body.WriteString("hello")
	resp := rec.Result()

	result, err := download.Save(path, resp, download.Options{})
	c.Assert(err, gc.IsNil)
	c.Check(result.Bytes, gc.Equals, int64(5))
	data, _ := os.ReadFile(path)
	c.Check(string(data), gc.Equals, "hello")
}

func (*suite) TestSaveResumeValidatesContentRange(c *gc.C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "out.bin")
	os.WriteFile(path, []byte("hello"), 0o644)

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Range", "bytes 5-9/10")
	rec.WriteHeader(206)
	rec.Body.WriteString("world")
	resp := rec.Result()

	result, err := download.Save(path, resp, download.Options{Continue: true})
	c.Assert(err, gc.IsNil)
	c.Check(result.Resumed, gc.Equals, true)
	data, _ := os.ReadFile(path)
	c.Check(string(data), gc.Equals, "helloworld")
}

func (*suite) TestSave416MeansComplete(c *gc.C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "out.bin")
	os.WriteFile(path, []byte("hello"), 0o644)

	rec := httptest.NewRecorder()
	rec.WriteHeader(416)
	resp := rec.Result()

	result, err := download.Save(path, resp, download.Options{Continue: true})
	c.Assert(err, gc.IsNil)
	c.Check(result.Complete, gc.Equals, true)
}

func (*suite) TestPrepareRequestForcesIdentityEncoding(c *gc.C) {
	req := httptest.NewRequest("GET", "http://example.com", nil)
	download.PrepareRequest(req, "/tmp/doesnotexist", download.Options{})
	c.Check(req.Header.Get("Accept-Encoding"), gc.Equals, "identity")
}

func (*suite) TestPrepareRequestUserRangeWinsOverContinue(c *gc.C) {
	req := httptest.NewRequest("GET", "http://example.com", nil)
	warning := download.PrepareRequest(req, "/tmp/doesnotexist", download.Options{Continue: true, UserRange: "bytes=100-200"})
	c.Check(req.Header.Get("Range"), gc.Equals, "bytes=100-200")
	c.Check(strings.Contains(warning, "Range"), gc.Equals, true)
}
