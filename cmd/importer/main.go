// Command importer runs a catalog import from the command line. The report
// is written to stdout as JSON; logs go to stderr.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
