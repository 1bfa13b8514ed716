package main

import (
	"context"
	"fmt"
	"time"

	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/client"
	"github.com/spf13/cobra"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [consumer-key]",
		Short: "Show stream metadata and cursor positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			info, err := c.GetStreamInfo(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Name:      %s\n", info.Name)
			fmt.Printf("Data type: %s\n", info.DataType)
			fmt.Printf("Messages:  %d\n", info.MessagesInStream)
			if info.FirstEntry != nil {
				fmt.Printf("First:     %s\n", info.FirstEntry.Format(time.RFC3339))
			}
			if info.LastEntry != nil {
				fmt.Printf("Last:      %s\n", info.LastEntry.Format(time.RFC3339))
			}
			fmt.Printf("Cursors:   earliest=%s latest=%s recommended=%s\n",
				info.Cursors.Earliest, info.Cursors.Latest, info.Cursors.Recommended)
			return nil
		},
	}
}

func recoverCmd() *cobra.Command {
	var (
		ignoreCheckpoint bool
		keepStream       bool
	)

	cmd := &cobra.Command{
		Use:   "recover [stream-id]",
		Short: "Rebuild an export stream from the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			opts := client.RecoverOptions{IgnoreCheckpoint: ignoreCheckpoint}
			if keepStream {
				clear := false
				opts.ClearStream = &clear
			}

			log, err := c.RecoverStream(context.Background(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Printf("recovery started for %s\n", args[0])
			if !log.StartedAt.IsZero() {
				fmt.Printf("started at %s\n", log.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreCheckpoint, "ignore-checkpoint", false, "replay from the beginning of the journal")
	cmd.Flags().BoolVar(&keepStream, "keep-stream", false, "do not clear the stream before replaying")
	return cmd
}

func backfillCmd() *cobra.Command {
	var (
		fromDate    string
		consumerKey string
		dataType    string
	)

	cmd := &cobra.Command{
		Use:   "backfill [stream-id]",
		Short: "Backfill an identifier stream with current identifier state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			var from *time.Time
			if fromDate != "" {
				parsed, err := time.Parse(time.RFC3339, fromDate)
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
				from = &parsed
			}

			ctx := context.Background()
			switch {
			case consumerKey != "":
				_, err = c.BackfillStreamByKey(ctx, args[0], consumerKey, from)
			case dataType != "":
				_, err = c.BackfillStream(ctx, args[0], scambus.DataType(dataType), from)
			default:
				return fmt.Errorf("either --consumer-key or --data-type is required")
			}
			if err != nil {
				return err
			}
			fmt.Printf("backfill started for %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&fromDate, "from", "", "only backfill identifiers modified after this RFC3339 time")
	cmd.Flags().StringVar(&consumerKey, "consumer-key", "", "consumer key used to look up the stream's data type")
	cmd.Flags().StringVar(&dataType, "data-type", "", "the stream's data type (identifier or journal_entry)")
	return cmd
}

func recoveryStatusCmd() *cobra.Command {
	var (
		limit    int
		offset   int
		streamID string
	)

	cmd := &cobra.Command{
		Use:   "recovery-status",
		Short: "List recent recovery runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			status, err := c.GetRecoveryStatus(context.Background(), client.RecoveryStatusOptions{
				Limit:    limit,
				Offset:   offset,
				StreamID: streamID,
			})
			if err != nil {
				return err
			}

			if len(status.Logs) == 0 {
				fmt.Println("No recovery runs recorded.")
				return nil
			}
			for _, log := range status.Logs {
				state := "running"
				if log.Completed() {
					state = log.Outcome
				}
				fmt.Printf("%s  %s  started %s  %s\n",
					log.StreamID, log.StreamName, log.StartedAt.Format(time.RFC3339), state)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	cmd.Flags().StringVar(&streamID, "stream", "", "only show runs for this stream id")
	return cmd
}
