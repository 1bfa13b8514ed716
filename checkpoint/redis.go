package checkpoint

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cursors in Redis, for consumers that already run a
// Redis and want checkpoints shared across workers.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "scambus:cursor:"}
}

func (s *RedisStore) Load(ctx context.Context, consumerKey string) (string, error) {
	cursor, err := s.rdb.Get(ctx, s.prefix+consumerKey).Result()
	if err == redis.Nil {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", err
	}
	return cursor, nil
}

func (s *RedisStore) Save(ctx context.Context, consumerKey string, cursor string) error {
	return s.rdb.Set(ctx, s.prefix+consumerKey, cursor, 0).Err()
}
