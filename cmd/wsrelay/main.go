// Wsrelay is a WebSocket chat relay.
//
// Every text message sent by a connected client is timestamped, tagged with
// the sender's connection ID and relayed to all connected clients.
//
// Usage:
//
//	wsrelay server [flags]
//	wsrelay chat [--url ws://host:port/websocket]
//	wsrelay discover
//
// See 'wsrelay --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wsrelay/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wsrelay",
	Short: "WebSocket chat relay",
	Long: `A minimal WebSocket chat relay.

The server upgrades HTTP requests on a single endpoint and relays every text
message to all connected clients, prefixed with a timestamp and the sender's
connection ID. The chat command is a terminal client for it.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Persistent flags
var configPath string

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: user config directory)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wsrelay %s\n", version.Full())
	},
}
