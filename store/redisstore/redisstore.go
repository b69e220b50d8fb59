// Package redisstore implements the state store on a Redis-compatible
// server via go-redis.
//
// Connection errors are wrapped with store.ErrUnavailable so callers
// can classify outages with errors.Is.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dife-bioinformatics/mekewe/store"
)

// Store is a redis-backed store.Store.
type Store struct {
	client *goredis.Client
}

// New creates a redis store from a connection URL.
// Format: redis://[:password@]host:port[/db]
func New(url string) (*Store, error) {
	if url == "" {
		return nil, errors.New("redis store requires a URL")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	return &Store{client: goredis.NewClient(opts)}, nil
}

// NewFromClient wraps an existing client. Used by tests with miniredis.
func NewFromClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}

// HashSet sets a hash field.
func (s *Store) HashSet(ctx context.Context, key, field, value string) error {
	return wrap("hset", s.client.HSet(ctx, key, field, value).Err())
}

// HashGet reads a hash field.
func (s *Store) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("hget", err)
	}
	return val, true, nil
}

// HashGetAll reads all fields of a hash.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	all, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("hgetall", err)
	}
	return all, nil
}

// HashDelete removes a hash field.
func (s *Store) HashDelete(ctx context.Context, key, field string) error {
	return wrap("hdel", s.client.HDel(ctx, key, field).Err())
}

// ListPushLeft prepends a value.
func (s *Store) ListPushLeft(ctx context.Context, key, value string) error {
	return wrap("lpush", s.client.LPush(ctx, key, value).Err())
}

// ListPushRight appends a value.
func (s *Store) ListPushRight(ctx context.Context, key, value string) error {
	return wrap("rpush", s.client.RPush(ctx, key, value).Err())
}

// ListPopRight pops from the right end.
func (s *Store) ListPopRight(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.RPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("rpop", err)
	}
	return val, true, nil
}

// ListPosition finds the index of a value.
func (s *Store) ListPosition(ctx context.Context, key, value string) (int64, bool, error) {
	pos, err := s.client.LPos(ctx, key, value, goredis.LPosArgs{}).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("lpos", err)
	}
	return pos, true, nil
}

// ListLength returns the list length.
func (s *Store) ListLength(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, wrap("llen", err)
	}
	return n, nil
}

// ListRange returns elements start..stop inclusive.
func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap("lrange", err)
	}
	return vals, nil
}

// ListRemove removes occurrences of value per LREM semantics and
// returns the number of removed elements.
func (s *Store) ListRemove(ctx context.Context, key string, count int64, value string) (int64, error) {
	n, err := s.client.LRem(ctx, key, count, value).Result()
	if err != nil {
		return 0, wrap("lrem", err)
	}
	return n, nil
}

// CounterSet sets a counter.
func (s *Store) CounterSet(ctx context.Context, key string, value int64) error {
	return wrap("set", s.client.Set(ctx, key, value, 0).Err())
}

// CounterGet reads a counter; unset counters read as zero.
func (s *Store) CounterGet(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("get", err)
	}
	return val, nil
}

// CounterIncr increments a counter and returns the new value.
func (s *Store) CounterIncr(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap("incr", err)
	}
	return val, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx).Err())
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Verify Store implements the store interface.
var _ store.Store = (*Store)(nil)
