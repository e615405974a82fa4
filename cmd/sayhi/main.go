// Command sayhi runs the tutorial server on either routing stack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sayhi",
	Short: "Tutorial HTTP server with a header-stamping middleware.",
	Long: `sayhi serves a handful of tutorial endpoints behind a middleware that
stamps "middleware: before" on every request and "middleware: after" on every
successful response.

The same endpoints can be served by the in-repo router or by chi.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(newServeCmd())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}
