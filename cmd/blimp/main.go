// Blimp — AI-powered automation orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "blimp",
	Short: "Blimp — turn natural-language requests into executable app workflows.",
	Long: `Blimp analyzes natural-language automation requests into typed plans of
third-party app function calls (Gmail, Calendar, Slack, Notion, Discord,
Google Drive) and executes them sequentially with per-user OAuth
credentials. Workflows can be saved, re-run, scheduled with cron
expressions, and exposed to AI assistants over MCP.`,
	RunE:          runServer, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serverCmd, mcpCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
