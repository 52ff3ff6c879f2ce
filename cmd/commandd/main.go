// Command commandd runs the instruction command server and its admin surface.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "commandd",
		Short: "Sequential instruction command server",
		Long: `commandd accepts batches of named instructions over HTTP and executes
them strictly in submission order. Handlers are built in or loaded from
Lua scripts and answer the originating request when they are done.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		submitCmd(),
		tokenCmd(),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
