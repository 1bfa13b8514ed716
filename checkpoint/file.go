package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one cursor file per consumer key under a directory,
// by default ~/.scambus/cursors. Suitable for single-process consumers.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".scambus", "cursors")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(consumerKey string) string {
	// consumer keys are UUIDs, but don't trust that
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, consumerKey)
	return filepath.Join(s.dir, safe+".cursor")
}

func (s *FileStore) Load(_ context.Context, consumerKey string) (string, error) {
	data, err := os.ReadFile(s.path(consumerKey))
	if os.IsNotExist(err) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Save(_ context.Context, consumerKey string, cursor string) error {
	return os.WriteFile(s.path(consumerKey), []byte(cursor+"\n"), 0o600)
}
