package highlight_test

import (
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/highlight"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestJSONKeyVsStringValue(c *gc.C) {
	runs := highlight.Line(highlight.JSON, `  "name": "value",`)
	c.Assert(len(runs) > 0, gc.Equals, true)
	var sawKey, sawValue bool
	for _, r := range runs {
		if r.Text == `"name"` {
			sawKey = true
		}
		if r.Text == `"value"` {
			sawValue = true
		}
	}
	c.Check(sawKey, gc.Equals, true)
	c.Check(sawValue, gc.Equals, true)
}

func (*suite) TestHTTPHeaderLine(c *gc.C) {
	runs := highlight.Line(highlight.HTTP, "Content-Type: application/json")
	c.Assert(len(runs), gc.Equals, 2)
	c.Check(runs[0].Text, gc.Equals, "Content-Type")
}

func (*suite) TestHTTPStatusLine(c *gc.C) {
	runs := highlight.Line(highlight.HTTP, "HTTP/1.1 404 Not Found")
	c.Assert(len(runs), gc.Equals, 1)
}

func (*suite) TestReplaceNonPrintablePassesCleanText(c *gc.C) {
	c.Check(highlight.ReplaceNonPrintable("hello"), gc.Equals, "hello")
}

func (*suite) TestReplaceNonPrintableMasksControlBytes(c *gc.C) {
	got := highlight.ReplaceNonPrintable("a\x01b")
	c.Check(got, gc.Equals, "a�b")
}
