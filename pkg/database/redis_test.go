package database

import (
	"exam_prep_backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisOptionsFromConfig(t *testing.T) {
	opts := redisOptions(&config.RedisConfig{
		Host:               "cache.internal",
		Port:               6380,
		DB:                 2,
		PoolSize:           20,
		MinIdleConns:       3,
		DialTimeoutSeconds: 2,
	})
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 3, opts.MinIdleConns)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts = redisOptions(&config.RedisConfig{Host: "localhost", Port: 6379})
	assert.Zero(t, opts.DialTimeout)
}
