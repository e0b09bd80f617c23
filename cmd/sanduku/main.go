// Sanduku — a confined execution layer for coding agents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sanduku",
	Short: "Sanduku — a confined execution layer for coding agents.",
	Long: `Sanduku confines every file operation to a single project root and runs
untrusted test code inside disposable, network-disabled containers.
It exposes the same tool surface over MCP (stdio) and an HTTP API.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd, runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
