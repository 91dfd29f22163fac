package jsonpath_test

import (
	stdtesting "testing"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/jsonpath"
)

func TestPackage(t *stdtesting.T) { gc.TestingT(t) }

type suite struct{}

var _ = gc.Suite(&suite{})

func (*suite) TestDeeplyNestedObject(c *gc.C) {
	path, err := jsonpath.ParsePath("foo[bar][baz]")
	c.Assert(err, gc.IsNil)
	root, err := jsonpath.SetValue(nil, path, 5.0)
	c.Assert(err, gc.IsNil)
	c.Check(root, jc.DeepEquals, map[string]interface{}{
		"foo": map[string]interface{}{
			"bar": map[string]interface{}{
				"baz": 5.0,
			},
		},
	})
}

func (*suite) TestDeeplyNestedArray(c *gc.C) {
	path, err := jsonpath.ParsePath("[0][0][1]")
	c.Assert(err, gc.IsNil)
	root, err := jsonpath.SetValue(nil, path, 5.0)
	c.Assert(err, gc.IsNil)
	c.Check(root, jc.DeepEquals, []interface{}{
		[]interface{}{
			[]interface{}{nil, 5.0},
		},
	})
}

func (*suite) TestParser(c *gc.C) {
	path, err := jsonpath.ParsePath(`foo\[x\][]`)
	c.Assert(err, gc.IsNil)
	c.Check(path, jc.DeepEquals, []jsonpath.Component{
		{Kind: jsonpath.Key, Key: "foo[x]"},
		{Kind: jsonpath.Index, Index: -1, Span: jsonpath.Span{Start: 8, End: 9, Valid: true}},
	})

	path, err = jsonpath.ParsePath(`foo\\[x]`)
	c.Assert(err, gc.IsNil)
	c.Check(path, jc.DeepEquals, []jsonpath.Component{
		{Kind: jsonpath.Key, Key: `foo\`},
		{Kind: jsonpath.Key, Key: "x", Span: jsonpath.Span{Start: 5, End: 7, Valid: true}},
	})

	path, err = jsonpath.ParsePath(`[x][\0]`)
	c.Assert(err, gc.IsNil)
	c.Check(path, jc.DeepEquals, []jsonpath.Component{
		{Kind: jsonpath.Key, Key: ""},
		{Kind: jsonpath.Key, Key: "x", Span: jsonpath.Span{Start: 0, End: 2, Valid: true}},
		{Kind: jsonpath.Key, Key: "0", Span: jsonpath.Span{Start: 3, End: 6, Valid: true}},
	})

	_, err = jsonpath.ParsePath("x[y]h[z]")
	c.Check(err, gc.NotNil)
	_, err = jsonpath.ParsePath("x[y]h")
	c.Check(err, gc.NotNil)
	_, err = jsonpath.ParsePath(`foo[bar]\[baz]`)
	c.Check(err, gc.NotNil)
}

func (*suite) TestDuplicateKeyFoldsIntoArray(c *gc.C) {
	path, err := jsonpath.ParsePath("x")
	c.Assert(err, gc.IsNil)
	root, err := jsonpath.SetValue(nil, path, "a")
	c.Assert(err, gc.IsNil)
	root, err = jsonpath.SetValue(root, path, "b")
	c.Assert(err, gc.IsNil)
	c.Check(root, jc.DeepEquals, map[string]interface{}{"x": []interface{}{"a", "b"}})
	root, err = jsonpath.SetValue(root, path, "c")
	c.Assert(err, gc.IsNil)
	c.Check(root, jc.DeepEquals, map[string]interface{}{"x": []interface{}{"a", "b", "c"}})
}

func (*suite) TestTypeClash(c *gc.C) {
	path, err := jsonpath.ParsePath("x[0]")
	c.Assert(err, gc.IsNil)
	root, err := jsonpath.SetValue(nil, path, 1.0)
	c.Assert(err, gc.IsNil)
	keyPath, err := jsonpath.ParsePath("x[foo]")
	c.Assert(err, gc.IsNil)
	_, err = jsonpath.SetValue(root, keyPath, "y")
	c.Assert(err, gc.NotNil)
	c.Check(err, gc.FitsTypeOf, &jsonpath.TypeError{})
}
