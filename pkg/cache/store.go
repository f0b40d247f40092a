package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// keyStore is the subset of Redis commands eviction relies on. All calls go
// to the same server connection, so a selected database stays selected.
type keyStore interface {
	Ping(ctx context.Context) error
	Select(ctx context.Context, index int) error
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Close() error
}

// redisStore pins a single connection taken from a go-redis client
type redisStore struct {
	client *redis.Client
	conn   *redis.Conn
}

func newRedisStore(cfg *Config) *redisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ConnectTimeout,
		WriteTimeout: cfg.ConnectTimeout,
		PoolSize:     1,
		MaxRetries:   -1,
	})

	return &redisStore{
		client: client,
		conn:   client.Conn(),
	}
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx).Err()
}

func (s *redisStore) Select(ctx context.Context, index int) error {
	return s.conn.Select(ctx, index).Err()
}

func (s *redisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return s.conn.Scan(ctx, cursor, match, count).Result()
}

func (s *redisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return s.conn.Del(ctx, keys...).Result()
}

func (s *redisStore) Close() error {
	connErr := s.conn.Close()
	clientErr := s.client.Close()

	if connErr != nil {
		return connErr
	}

	return clientErr
}

// Verify interface compliance at compile time
var _ keyStore = (*redisStore)(nil)
