package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func notificationsCmd() *cobra.Command {
	var channels []string

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Subscribe to websocket notifications and print events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := newWSClient()
			if err != nil {
				return err
			}
			defer ws.Close()

			if len(channels) == 0 {
				channels = []string{"*"}
			}
			for _, channel := range channels {
				ws.On(channel, "*", func(payload any) {
					data, err := json.Marshal(payload)
					if err != nil {
						fmt.Fprintf(os.Stderr, "encode event: %v\n", err)
						return
					}
					fmt.Printf("%s  %s\n", channel, data)
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = ws.Listen(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channels to subscribe to (default all)")
	return cmd
}
