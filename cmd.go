// Package main is responsible for the main func of frontd.  The actual work
// is done in the cmd package.
package main

import "github.com/frontd/frontd/internal/cmd"

func main() {
	cmd.Main()
}
