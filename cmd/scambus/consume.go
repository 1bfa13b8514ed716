package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/checkpoint"
	"github.com/scambus/scambus-go/client"
	"github.com/spf13/cobra"
)

func consumeCmd() *cobra.Command {
	var (
		cursor       string
		limit        int
		includeTest  bool
		once         bool
		interval     time.Duration
		asJSON       bool
		storeKind    string
		storeDir     string
		redisAddr    string
		memcacheAddr string
		postgresDSN  string
	)

	cmd := &cobra.Command{
		Use:   "consume [consumer-key]",
		Short: "Poll a stream and print its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			consumerKey := args[0]

			c, err := newClient()
			if err != nil {
				return err
			}

			store, err := openStore(storeKind, storeDir, redisAddr, memcacheAddr, postgresDSN)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if store != nil {
				saved, err := store.Load(ctx, consumerKey)
				if err == nil {
					cursor = saved
				} else if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
					return fmt.Errorf("load checkpoint: %w", err)
				}
			}

			for {
				result, err := c.Poll(ctx, consumerKey, client.PollOptions{
					Cursor:      cursor,
					Limit:       limit,
					IncludeTest: includeTest,
				})
				if err != nil {
					cursor, err = handlePollError(ctx, err, cursor)
					if err != nil {
						return err
					}
					continue
				}

				for _, msg := range result.Messages {
					printMessage(msg, asJSON)
				}
				for _, decodeErr := range result.DecodeErrors {
					fmt.Fprintf(os.Stderr, "skipped malformed message: %v\n", decodeErr)
				}

				cursor = result.NextCursor
				if store != nil {
					if err := store.Save(ctx, consumerKey, cursor); err != nil {
						return fmt.Errorf("save checkpoint: %w", err)
					}
				}

				if result.HasMore {
					continue
				}
				if once {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", scambus.CursorBeginning, "cursor to start from (0, $ or a cursor token)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "messages per poll")
	cmd.Flags().BoolVar(&includeTest, "include-test", false, "include test messages")
	cmd.Flags().BoolVar(&once, "once", false, "stop when the stream is drained")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "wait between polls when caught up")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full messages as JSON")
	cmd.Flags().StringVar(&storeKind, "checkpoint", "file", "checkpoint store: file, redis, memcached, postgres or none")
	cmd.Flags().StringVar(&storeDir, "checkpoint-dir", "", "directory for the file checkpoint store")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis address for the redis checkpoint store")
	cmd.Flags().StringVar(&memcacheAddr, "memcached-addr", "localhost:11211", "memcached address for the memcached checkpoint store")
	cmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "postgres DSN for the postgres checkpoint store")
	return cmd
}

func openStore(kind, dir, redisAddr, memcacheAddr, postgresDSN string) (checkpoint.Store, error) {
	switch kind {
	case "none":
		return nil, nil
	case "file":
		return checkpoint.NewFileStore(dir)
	case "redis":
		return checkpoint.NewRedisStore(checkpoint.NewRedis(redisAddr, "", 0)), nil
	case "memcached":
		return checkpoint.NewMemcachedStore(checkpoint.NewMemcached(memcacheAddr)), nil
	case "postgres":
		if postgresDSN == "" {
			return nil, fmt.Errorf("postgres checkpoint store needs --postgres-dsn")
		}
		db, err := checkpoint.NewPostgres(postgresDSN)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown checkpoint store: %s", kind)
	}
}

// handlePollError decides how the consume loop reacts to an API error:
// out-of-range cursors reset, rate limits and rebuilds wait, anything
// else aborts.
func handlePollError(ctx context.Context, err error, cursor string) (string, error) {
	var outOfRange scambus.CursorOutOfRangeError
	if errors.As(err, &outOfRange) {
		next := outOfRange.RecoverTo()
		fmt.Fprintf(os.Stderr, "cursor %s out of range, resetting to %s\n", cursor, next)
		return next, nil
	}

	if errors.Is(err, scambus.ErrRateLimited) {
		fmt.Fprintln(os.Stderr, "rate limited, waiting 60s")
		return cursor, sleep(ctx, 60*time.Second)
	}

	var rebuilding scambus.StreamRebuildingError
	if errors.As(err, &rebuilding) {
		wait := rebuilding.RetryAfter
		if wait <= 0 {
			wait = 10 * time.Second
		}
		fmt.Fprintf(os.Stderr, "stream rebuilding, waiting %s\n", wait)
		return cursor, sleep(ctx, wait)
	}

	return cursor, err
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func printMessage(msg scambus.Message, asJSON bool) {
	if asJSON {
		data, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode message: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	switch m := msg.(type) {
	case scambus.JournalEntryMessage:
		fmt.Printf("%s  journal_entry  %s  %s\n", m.StreamCursor, m.Type, m.Description)
	case scambus.IdentifierMessage:
		fmt.Printf("%s  identifier  %s  %s\n", m.StreamCursor, m.Type, m.DisplayValue)
	}
}
