// Command hostprep prepares fresh Ubuntu servers for production over SSH.
package main

import "github.com/tpodg/hostprep/internal/cli"

func main() {
	cli.Execute()
}
