// Command xh is a friendly, colorful command-line HTTP client.
package main

import (
	"os"

	"github.com/rogpeppe/xhgo/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
