// Command maremma is the monitor's entrypoint: it starts the
// scheduler, broker, shepherd, and web collaborator together, and
// bundles a handful of standalone operational helpers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
