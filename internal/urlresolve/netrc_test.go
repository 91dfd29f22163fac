package urlresolve_test

import (
	"os"
	"path/filepath"

	gc "gopkg.in/check.v1"

	"github.com/rogpeppe/xhgo/internal/urlresolve"
)

type netrcSuite struct {
	dir string
}

var _ = gc.Suite(&netrcSuite{})

func (s *netrcSuite) writeNetrc(c *gc.C, contents string) {
	s.dir = c.MkDir()
	path := filepath.Join(s.dir, "netrc")
	err := os.WriteFile(path, []byte(contents), 0o600)
	c.Assert(err, gc.IsNil)
	os.Setenv("NETRC", path)
}

func (s *netrcSuite) TearDownTest(c *gc.C) {
	os.Unsetenv("NETRC")
}

func (s *netrcSuite) TestSimple(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com
		login user
		password pass
	`)
	entry, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "user", Password: "pass"})

	_, ok = urlresolve.FindNetrcEntry("example.org")
	c.Check(ok, gc.Equals, false)
}

func (s *netrcSuite) TestOneLine(c *gc.C) {
	s.writeNetrc(c, "machine example.com login user password pass\n")
	entry, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "user", Password: "pass"})
}

func (s *netrcSuite) TestMultipleMachines(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com login user password pass
		machine example.org login foo password bar
	`)
	e1, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*e1, gc.Equals, urlresolve.Entry{Login: "user", Password: "pass"})
	e2, ok := urlresolve.FindNetrcEntry("example.org")
	c.Assert(ok, gc.Equals, true)
	c.Check(*e2, gc.Equals, urlresolve.Entry{Login: "foo", Password: "bar"})
}

func (s *netrcSuite) TestMissingPasswordIgnored(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com login user
	`)
	_, ok := urlresolve.FindNetrcEntry("example.com")
	c.Check(ok, gc.Equals, false)
}

func (s *netrcSuite) TestDefaultFallback(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com login ex password am
		default login def password ault
	`)
	e1, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*e1, gc.Equals, urlresolve.Entry{Login: "ex", Password: "am"})
	e2, ok := urlresolve.FindNetrcEntry("example.org")
	c.Assert(ok, gc.Equals, true)
	c.Check(*e2, gc.Equals, urlresolve.Entry{Login: "def", Password: "ault"})
}

func (s *netrcSuite) TestAccountFallsBackAsLogin(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com account acc password pass
	`)
	entry, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "acc", Password: "pass"})
}

func (s *netrcSuite) TestAccountNotPreferredOverLogin(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com password pass login log account acc
	`)
	entry, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "log", Password: "pass"})
}

func (s *netrcSuite) TestWeirdDecimalIP(c *gc.C) {
	s.writeNetrc(c, `
		machine 16843009 login us password pa
	`)
	entry, ok := urlresolve.FindNetrcEntry("1.1.1.1")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "us", Password: "pa"})

	_, ok = urlresolve.FindNetrcEntry("2.2.2.2")
	c.Check(ok, gc.Equals, false)
}

func (s *netrcSuite) TestCommentLine(c *gc.C) {
	s.writeNetrc(c, `
		# machine example.com login user password pass
		machine example.org login lo password pa
	`)
	_, ok := urlresolve.FindNetrcEntry("example.com")
	c.Check(ok, gc.Equals, false)
	entry, ok := urlresolve.FindNetrcEntry("example.org")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "lo", Password: "pa"})
}

func (s *netrcSuite) TestUnknownTokenInterruptsEntry(c *gc.C) {
	s.writeNetrc(c, `
		machine example.com
		login user
		foo bar
		password pass
	`)
	_, ok := urlresolve.FindNetrcEntry("example.com")
	c.Check(ok, gc.Equals, false)
}

func (s *netrcSuite) TestMacroSkipped(c *gc.C) {
	s.writeNetrc(c, `
		macdef foo
		machine example.com login mac password def
		qux

		machine example.com login user password pass
	`)
	entry, ok := urlresolve.FindNetrcEntry("example.com")
	c.Assert(ok, gc.Equals, true)
	c.Check(*entry, gc.Equals, urlresolve.Entry{Login: "user", Password: "pass"})
}

func (s *netrcSuite) TestMalformedFileIsIgnoredNotFatal(c *gc.C) {
	s.writeNetrc(c, "I'm a malformed netrc!\n")
	_, ok := urlresolve.FindNetrcEntry("example.com")
	c.Check(ok, gc.Equals, false)
}
