// Ragstore is a document vector-indexing and retrieval service.
//
// The serve command starts the HTTP API backed by Qdrant and an embedding
// backend. The remaining commands are thin clients against a running server.
//
// Usage:
//
//	# Start the server with defaults
//	ragstore serve
//
//	# Start with a config file
//	ragstore serve --config /etc/ragstore/config.yaml
//
//	# Operate against a running server
//	ragstore health
//	ragstore export --tenant u-1 --node-type document --entity doc-1 -o doc-1.bundle
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:     "ragstore",
	Short:   "Document vector-indexing and retrieval service",
	Version: version + " (" + gitCommit + ")",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/ragstore/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8087", "ragstore server URL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(duplicateCmd)
}
