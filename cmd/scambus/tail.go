package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/client"
	"github.com/spf13/cobra"
)

func tailCmd() *cobra.Command {
	var (
		cursor      string
		includeTest bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "tail [consumer-key]",
		Short: "Follow a stream over SSE and print messages as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := c.OpenStream(ctx, args[0], client.StreamOptions{
				Cursor:      cursor,
				IncludeTest: includeTest,
			}, client.StreamHandlers{
				OnConnected: func(meta client.StreamMeta) {
					fmt.Fprintf(os.Stderr, "connected to %s\n", meta.Stream)
				},
				OnMessage: func(msg scambus.Message) {
					printMessage(msg, asJSON)
				},
				OnError: func(err error) {
					fmt.Fprintf(os.Stderr, "stream error: %v\n", err)
				},
				OnStateChange: func(state client.ConnectionState) {
					fmt.Fprintf(os.Stderr, "state: %s\n", state)
				},
			})
			if err != nil {
				return err
			}
			defer session.Close()

			select {
			case <-ctx.Done():
				return nil
			case <-session.Done():
				return session.Err()
			}
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", scambus.CursorLive, "cursor to start from (0, $ or a cursor token)")
	cmd.Flags().BoolVar(&includeTest, "include-test", false, "include test messages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full messages as JSON")
	return cmd
}
