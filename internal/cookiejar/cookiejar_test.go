package cookiejar_test

import (
	"net/url"
	"path/filepath"
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/cookiejar"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestSetAndGetCookies(c *gc.C) {
	path := filepath.Join(c.MkDir(), "cookies.json")
	jar, err := cookiejar.New(path)
	c.Assert(err, gc.IsNil)

	u, err := url.Parse("https://example.com/")
	c.Assert(err, gc.IsNil)

	records := []cookiejar.Record{{Name: "session", Value: "abc123", Secure: true}}
	jar.LoadRecords("example.com", records)

	got := jar.RecordsFor(u)
	c.Assert(got, gc.HasLen, 1)
	c.Check(got[0].Name, gc.Equals, "session")
	c.Check(got[0].Value, gc.Equals, "abc123")
}
