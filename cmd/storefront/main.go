// Storefront - cart, wishlist and session sync service with a scripting CLI.
// Designed for Cloud Run deployment; local state lives in SQLite.
package main

import (
	"fmt"
	"os"

	"storefront-sync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
