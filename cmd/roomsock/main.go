// File: cmd/roomsock/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// roomsock command line: a chat-room WebSocket server and a small client.

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
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roomsock",
		Short: "WebSocket server with hierarchical rooms",
		Long: `roomsock runs an RFC 6455 WebSocket server whose clients can join
rooms addressed by slash-separated paths and broadcast into them.

Messages understood by the serve command:

  join /lobby/eu
  leave /lobby/eu
  say /lobby hello everyone
  {"op":"say","room":"/lobby","text":"hello"}

Anything else is echoed back to the sender.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCmd(),
		sendCmd(),
		versionCmd(),
	)
	return rootCmd
}
