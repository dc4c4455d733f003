package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "exams:active", Key("exams", "active"))
	assert.Equal(t, "user:7:attempts", Key("user", "7", "attempts"))
	assert.Equal(t, "exams", Key("exams"))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, m.Len())
}

func TestRememberLoadsOnceUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Remember(ctx, m, "exams:active", 0, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, v)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Invalidate(ctx, "exams:active"))
	_, err := Remember(ctx, m, "exams:active", 0, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRememberDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := errors.New("boom")

	_, err := Remember(ctx, m, "k", 0, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
}

func TestRememberWithNilStore(t *testing.T) {
	v, err := Remember(context.Background(), nil, "k", 0, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRememberSkipsWriteWhenInvalidatedDuringLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	key := Key("user", "1", "attempts")

	// A submit lands between the read of the old rows and the cache write.
	v, err := Remember(ctx, m, key, time.Minute, func() (int, error) {
		require.NoError(t, m.Invalidate(ctx, key))
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 0, m.Len())

	v, err = Remember(ctx, m, key, time.Minute, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = Remember(ctx, m, key, time.Minute, func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v, "value loaded after the invalidation is cached")
}

func TestMemoryStoreSetIfVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	v, err := m.Version(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(ctx, "k"))

	assert.ErrorIs(t, m.SetIfVersion(ctx, "k", v, []byte("old"), 0), ErrStale)

	v, err = m.Version(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, m.SetIfVersion(ctx, "k", v, []byte("new"), 0))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}
