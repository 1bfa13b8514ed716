package checkpoint

import (
	"context"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore keeps cursors in memcached. Note memcached may evict
// under memory pressure; a lost checkpoint just means resuming from the
// recommended cursor, so this is acceptable for near-real-time consumers.
type MemcachedStore struct {
	mc     *memcache.Client
	prefix string
}

func NewMemcached(server string) *memcache.Client {
	return memcache.New(server)
}

func NewMemcachedStore(mc *memcache.Client) *MemcachedStore {
	return &MemcachedStore{mc: mc, prefix: "scambus:cursor:"}
}

func (s *MemcachedStore) Load(_ context.Context, consumerKey string) (string, error) {
	item, err := s.mc.Get(s.prefix + consumerKey)
	if err == memcache.ErrCacheMiss {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", err
	}
	return string(item.Value), nil
}

func (s *MemcachedStore) Save(_ context.Context, consumerKey string, cursor string) error {
	return s.mc.Set(&memcache.Item{Key: s.prefix + consumerKey, Value: []byte(cursor)})
}
