// Command kiroproxyctl administers the credential pool of a kiro-bridge
// deployment directly against its SQLite store, per spec §3.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
