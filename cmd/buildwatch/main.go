// buildwatch tracks which per-revision browser build artifacts have been
// published to a CDN and keeps a per-ecosystem ledger of them.
//
// Usage:
//
//	buildwatch run    [--config=<path>] [--dry-run] [--upper eco=rev]...
//	buildwatch watch  [--config=<path>] [--every=<duration>]
//	buildwatch status [--config=<path>] [--ecosystem=<name>] [--last=N]
//	buildwatch plan   [--config=<path>]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
