package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisPrefix        = "exam_prep:"
	redisVersionPrefix = "exam_prep:ver:"
	// Outlives any load; an expired version counter only makes a later write look current.
	versionTTL = 24 * time.Hour
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, redisPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisPrefix+key, value, ttl).Err()
}

func (r *RedisStore) Version(ctx context.Context, key string) (uint64, error) {
	return readVersion(ctx, r.client, key)
}

type versionReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, c versionReader, key string) (uint64, error) {
	v, err := c.Get(ctx, redisVersionPrefix+key).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// SetIfVersion watches the version counter so an Invalidate racing the write aborts it.
func (r *RedisStore) SetIfVersion(ctx context.Context, key string, version uint64, value []byte, ttl time.Duration) error {
	verKey := redisVersionPrefix + key
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisPrefix+key, value, ttl)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

func (r *RedisStore) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, redisPrefix+k)
			pipe.Incr(ctx, redisVersionPrefix+k)
			pipe.Expire(ctx, redisVersionPrefix+k, versionTTL)
		}
		return nil
	})
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
