package decoder_test

import (
	"errors"
	"io"
	"strings"
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/decoder"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestDecodeErrorsPrependedWithCustomMessage(c *gc.C) {
	dec := decoder.Decompress(strings.NewReader("Hello world"), decoder.Gzip)
	_, err := io.ReadAll(dec)
	c.Assert(err, gc.NotNil)
	c.Check(strings.HasPrefix(err.Error(), "error decoding gzip response body:"), gc.Equals, true)
}

type sadReader struct{}

func (sadReader) Read([]byte) (int, error) {
	return 0, errors.New("oh no!")
}

func (*suite) TestUnderlyingReadErrorsNotModified(c *gc.C) {
	dec := decoder.Decompress(sadReader{}, decoder.Gzip)
	_, err := io.ReadAll(dec)
	c.Assert(err, gc.NotNil)
	c.Check(err.Error(), gc.Equals, "oh no!")
}

func (*suite) TestNoCompressionPassesThrough(c *gc.C) {
	dec := decoder.Decompress(strings.NewReader("plain body"), decoder.None)
	data, err := io.ReadAll(dec)
	c.Assert(err, gc.IsNil)
	c.Check(string(data), gc.Equals, "plain body")
}
