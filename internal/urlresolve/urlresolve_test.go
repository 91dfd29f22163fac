package urlresolve_test

import (
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/urlresolve"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestResolvePlain(c *gc.C) {
	u, err := urlresolve.ResolveURL("example.com/foo")
	c.Assert(err, gc.IsNil)
	c.Check(u.String(), gc.Equals, "http://example.com/foo")
}

func (*suite) TestResolveExplicitScheme(c *gc.C) {
	u, err := urlresolve.ResolveURL("https://example.com")
	c.Assert(err, gc.IsNil)
	c.Check(u.String(), gc.Equals, "https://example.com")
}

func (*suite) TestResolvePortShorthand(c *gc.C) {
	u, err := urlresolve.ResolveURL(":8080/foo")
	c.Assert(err, gc.IsNil)
	c.Check(u.String(), gc.Equals, "http://localhost:8080/foo")
}

func (*suite) TestResolvePathShorthand(c *gc.C) {
	u, err := urlresolve.ResolveURL(":/foo")
	c.Assert(err, gc.IsNil)
	c.Check(u.String(), gc.Equals, "http://localhost/foo")
}

func (*suite) TestResolveBareColon(c *gc.C) {
	u, err := urlresolve.ResolveURL(":")
	c.Assert(err, gc.IsNil)
	c.Check(u.String(), gc.Equals, "http://localhost")
}

func (*suite) TestParseAuthUserPass(c *gc.C) {
	user, pass, ok := urlresolve.ParseAuth("alice:secret")
	c.Check(user, gc.Equals, "alice")
	c.Check(pass, gc.Equals, "secret")
	c.Check(ok, gc.Equals, true)
}

func (*suite) TestParseAuthEmptyPass(c *gc.C) {
	user, pass, ok := urlresolve.ParseAuth("alice:")
	c.Check(user, gc.Equals, "alice")
	c.Check(pass, gc.Equals, "")
	c.Check(ok, gc.Equals, true)
}

func (*suite) TestParseAuthNoColon(c *gc.C) {
	user, _, ok := urlresolve.ParseAuth("alice")
	c.Check(user, gc.Equals, "alice")
	c.Check(ok, gc.Equals, false)
}
