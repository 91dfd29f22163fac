package httpsign_test

import (
	"net/http/httptest"
	"strings"
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/httpsign"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestSignRequestHMAC(c *gc.C) {
	req := httptest.NewRequest("POST", "https://example.com/foo", strings.NewReader("data"))

	err := httpsign.Sign(req, "test-key", "secret", "@method,@authority,content-digest")
	c.Assert(err, gc.IsNil)

	c.Check(req.Header.Get("Signature") != "", gc.Equals, true)
	sigInput := req.Header.Get("Signature-Input")
	c.Check(strings.HasPrefix(sigInput, "sig1="), gc.Equals, true)
	c.Check(strings.Contains(sigInput, `keyid="test-key"`), gc.Equals, true)
	c.Check(strings.Contains(sigInput, `alg="hmac-sha256"`), gc.Equals, true)
	c.Check(strings.Contains(sigInput, "content-digest"), gc.Equals, true)
	c.Check(req.Header.Get("Content-Digest") != "", gc.Equals, true)
}

func (*suite) TestSignRequestWithQueryParams(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com/?param=value", nil)

	err := httpsign.Sign(req, "test-key", "secret", "@method,@query-params")
	c.Assert(err, gc.IsNil)

	sigInput := req.Header.Get("Signature-Input")
	c.Check(strings.Contains(sigInput, `"@query-param";name="param"`), gc.Equals, true)
}

func (*suite) TestContentDigestValueMatchesKnownVector(c *gc.C) {
	req := httptest.NewRequest("POST", "http://example.com", strings.NewReader("Hello, World!"))
	err := httpsign.Sign(req, "k", "secret", "content-digest")
	c.Assert(err, gc.IsNil)
	c.Check(req.Header.Get("Content-Digest"), gc.Equals, "sha-256=:3/1gIbsr1bCvZ2KQgJ7DpTGR3YHH9wpLKGiKNiGCmG8=:")
}

func (*suite) TestResolveComponentsDefaults(c *gc.C) {
	req := httptest.NewRequest("GET", "http://a.com", nil)
	err := httpsign.Sign(req, "k", "secret", "")
	c.Assert(err, gc.IsNil)
	sigInput := req.Header.Get("Signature-Input")
	c.Check(strings.Contains(sigInput, `"@method" "@authority" "@target-uri"`), gc.Equals, true)
}

func (*suite) TestBsParameterUnsupported(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com", nil)
	req.Header.Set("x-data", "hello")
	err := httpsign.Sign(req, "k", "secret", `"x-data";bs`)
	c.Assert(err, gc.NotNil)
	c.Check(strings.Contains(err.Error(), "not supported"), gc.Equals, true)
}

func (*suite) TestTrParameterUnsupported(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com", nil)
	req.Header.Set("x-field", "value")
	err := httpsign.Sign(req, "k", "secret", `"x-field";tr`)
	c.Assert(err, gc.NotNil)
}

func (*suite) TestSfAndKeyParametersAreAccepted(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com", nil)
	req.Header.Set("x-struct", "a=1, b=2")
	err := httpsign.Sign(req, "k", "secret", `"x-struct";sf`)
	c.Assert(err, gc.IsNil)

	req2 := httptest.NewRequest("GET", "https://example.com", nil)
	req2.Header.Set("x-dict", "a=1, b=2")
	err = httpsign.Sign(req2, "k", "secret", `"x-dict";key="a"`)
	c.Assert(err, gc.IsNil)
}

func (*suite) TestNameParameterErrorsOnRegularField(c *gc.C) {
	_, err := httpsign.ParseComponentID(`"x-field";name="id"`)
	c.Assert(err, gc.NotNil)
	c.Check(strings.Contains(err.Error(), "name"), gc.Equals, true)
}

func (*suite) TestSetCookieGathering(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com", nil)
	req.Header.Add("set-cookie", "a=1")
	req.Header.Add("set-cookie", "b=2")
	err := httpsign.Sign(req, "k", "secret", "set-cookie")
	c.Assert(err, gc.IsNil)
	// the signature base combines multiple values with ", " per RFC 9421 2.1;
	// a successful sign confirms both values were gathered without error.
}

func (*suite) TestMissingHeaderErrors(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com", nil)
	err := httpsign.Sign(req, "k", "secret", "x-missing")
	c.Assert(err, gc.NotNil)
}

func (*suite) TestContentDigestOmittedForBodylessRequest(c *gc.C) {
	req := httptest.NewRequest("GET", "https://example.com", nil)
	err := httpsign.Sign(req, "k", "secret", "@method,content-digest")
	c.Assert(err, gc.IsNil)
	c.Check(req.Header.Get("Content-Digest"), gc.Equals, "")
	c.Check(strings.Contains(req.Header.Get("Signature-Input"), "content-digest"), gc.Equals, false)
}
