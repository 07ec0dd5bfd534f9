// Command iapsim drives the purchase engine against the simulated
// marketplace. It replays TOML scenarios, serves the HTTP API over a
// simulated backend and validates catalog files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
