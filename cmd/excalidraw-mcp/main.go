package main

import (
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
		Use:   "excalidraw-mcp",
		Short: "MCP server for a live Excalidraw canvas",
		Long: `excalidraw-mcp bridges an AI agent and a browser canvas.

It exposes diagram operations as MCP tools over stdio while serving
the canvas page and its WebSocket synchronization channel over HTTP.
Sessions are kept in memory, swept by TTL, and shared live between
every connected browser tab.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
