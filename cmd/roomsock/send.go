// File: cmd/roomsock/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/momentics/roomsock/client"
	"github.com/momentics/roomsock/protocol"
	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		url          string
		texts        []string
		subprotocols []string
		wait         time.Duration
		retries      int
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send text messages and print replies",
		Long: `Dial a WebSocket server, send each --text as one message and print
every message received until nothing arrives for --wait.`,
		Example: `  roomsock send --url ws://localhost:9000/lobby --text "join /lobby" --text "say /lobby hi"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := client.DefaultConfig(url)
			cfg.Subprotocols = subprotocols
			cfg.ReadTimeout = wait
			cfg.ReconnectMax = retries

			c, err := client.Dial(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.CloseGracefully(protocol.CloseNormal, "", time.Second)

			for _, t := range texts {
				if err := c.SendText(t); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for {
				msg, err := c.ReadMessage()
				if err != nil {
					var ne net.Error
					var ce *client.CloseError
					switch {
					case errors.As(err, &ne) && ne.Timeout():
						return nil
					case errors.As(err, &ce):
						fmt.Fprintf(cmd.ErrOrStderr(), "closed by server: %s\n", ce)
						return nil
					}
					return err
				}
				if msg.IsText() {
					fmt.Fprintln(out, msg.Text())
				} else {
					fmt.Fprintf(out, "<%d bytes binary>\n", len(msg.Data))
				}
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", "ws://localhost:9000/", "Server URL")
	f.StringArrayVar(&texts, "text", nil, "Text message to send, repeatable")
	f.StringSliceVar(&subprotocols, "subprotocol", nil, "Offered subprotocols")
	f.DurationVar(&wait, "wait", 2*time.Second, "Stop after this long without a message")
	f.IntVar(&retries, "retries", 0, "Additional dial attempts")

	return cmd
}
