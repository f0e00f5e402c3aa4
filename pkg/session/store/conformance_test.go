package store_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/traego/oncesession/internal/storetest"
	"github.com/traego/oncesession/pkg/session/store"
)

func TestMemorySessionStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.SessionStore {
		s := store.NewMemorySessionStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisSessionStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.SessionStore {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s := store.NewRedisSessionStore(client, "test:")
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
