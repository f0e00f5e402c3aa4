package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...Option) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisSessionStore(client, "app:", opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("records are json under the prefixed key", func(t *testing.T) {
		s, mr := newTestRedisStore(t)

		key, err := s.Save(ctx, State{"flash": `"hello"`}, time.Hour)
		require.NoError(t, err)

		raw, err := mr.Get("app:session:" + key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"flash":"\"hello\""}`, raw)
		assert.Equal(t, time.Hour, mr.TTL("app:session:"+key))
	})

	t.Run("redis expiry drops the record", func(t *testing.T) {
		s, mr := newTestRedisStore(t)

		key, err := s.Save(ctx, State{"a": "1"}, time.Minute)
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		_, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
		assert.ErrorIs(t, s.UpdateTTL(ctx, key, time.Minute), ErrNotFound)
	})

	t.Run("update ttl extends expiry", func(t *testing.T) {
		s, mr := newTestRedisStore(t)

		key, err := s.Save(ctx, State{"a": "1"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.UpdateTTL(ctx, key, time.Hour))
		assert.Equal(t, time.Hour, mr.TTL("app:session:"+key))
	})

	t.Run("non-positive ttl keeps the record without expiry", func(t *testing.T) {
		s, mr := newTestRedisStore(t)

		key, err := s.Save(ctx, State{"a": "1"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.UpdateTTL(ctx, key, 0))

		assert.True(t, mr.Exists("app:session:"+key))
		assert.Equal(t, time.Duration(0), mr.TTL("app:session:"+key))
		assert.ErrorIs(t, s.UpdateTTL(ctx, "missing", 0), ErrNotFound)
	})

	t.Run("save never overwrites an existing record", func(t *testing.T) {
		s, _ := newTestRedisStore(t, WithKeyGenerator(&collidingKeys{keys: []string{"k1", "k1", "k2"}}))

		first, err := s.Save(ctx, State{"n": "1"}, time.Hour)
		require.NoError(t, err)
		second, err := s.Save(ctx, State{"n": "2"}, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, "k1", first)
		assert.Equal(t, "k2", second)

		got, _, err := s.Load(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, State{"n": "1"}, got)
	})

	t.Run("corrupt record is an error", func(t *testing.T) {
		s, mr := newTestRedisStore(t)
		require.NoError(t, mr.Set("app:session:bad", "{not json"))

		_, _, err := s.Load(ctx, "bad")
		assert.Error(t, err)
	})

	t.Run("backend failure is wrapped", func(t *testing.T) {
		s, mr := newTestRedisStore(t)
		mr.SetError("READONLY")

		_, _, err := s.Load(ctx, "any")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load session any")
	})
}

func TestConnectRedis(t *testing.T) {
	ctx := context.Background()

	_, err := ConnectRedis(ctx, nil, "", 0)
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := ConnectRedis(ctx, []string{mr.Addr()}, "", 0)
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}
