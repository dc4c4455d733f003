// Package cache memoizes data-access reads under (entity, parameters) keys.
// Nothing expires on writes by itself: every mutation must call Invalidate for the keys it affects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")
	// ErrStale is returned by SetIfVersion when the key was invalidated after the version was read.
	ErrStale = errors.New("cache: stale write")
)

// Store keeps a generation per key. Invalidate bumps it, so a value loaded before an
// invalidation can be rejected by SetIfVersion instead of resurrecting old data.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Version(ctx context.Context, key string) (uint64, error)
	SetIfVersion(ctx context.Context, key string, version uint64, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Key joins an entity name and its parameters, e.g. Key("user", "7", "attempts") = "user:7:attempts".
func Key(entity string, params ...string) string {
	if len(params) == 0 {
		return entity
	}
	return entity + ":" + strings.Join(params, ":")
}

// Remember returns the cached value for key, or calls load and stores its result.
// The result is only stored when key was not invalidated while load ran.
// A broken cache never fails the read; it only costs a round trip.
func Remember[T any](ctx context.Context, store Store, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var out T
	var version uint64
	cacheable := store != nil
	if cacheable {
		if raw, err := store.Get(ctx, key); err == nil {
			if err := json.Unmarshal(raw, &out); err == nil {
				return out, nil
			}
		}
		v, err := store.Version(ctx, key)
		version, cacheable = v, err == nil
	}

	out, err := load()
	if err != nil {
		return out, err
	}

	if cacheable {
		if raw, err := json.Marshal(out); err == nil {
			_ = store.SetIfVersion(ctx, key, version, raw, ttl)
		}
	}
	return out, nil
}
