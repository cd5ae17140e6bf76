package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and HGet when the key or field is absent.
var ErrNotFound = errors.New("store: not found")

// Store is the shared room store every coordinator operation goes through.
// All cross-connection state lives here; the store is the synchronization
// point. SetNX with a TTL doubles as the mutual-exclusion lease primitive,
// and Expirations delivers the names of keys removed by TTL expiry, which
// drives disconnect-grace cleanup.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	HSet(ctx context.Context, key, field, value string) error
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HKeys(ctx context.Context, key string) ([]string, error)
	HLen(ctx context.Context, key string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Expirations streams the names of keys that reached their TTL.
	Expirations() <-chan string

	Close() error
}
