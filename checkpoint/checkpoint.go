// Package checkpoint persists the last-consumed cursor of a stream so a
// consumer can resume where it left off after a restart. The server does
// not track consumer positions for polling clients; the cursor is owned
// entirely by the caller.
package checkpoint

import "context"

// ErrNoCheckpoint is returned by Load when no cursor has been saved for
// the consumer key yet.
var ErrNoCheckpoint = noCheckpointError{}

type noCheckpointError struct{}

func (noCheckpointError) Error() string { return "no checkpoint" }

// Store saves and loads cursors keyed by consumer key.
type Store interface {
	Load(ctx context.Context, consumerKey string) (string, error)
	Save(ctx context.Context, consumerKey string, cursor string) error
}
