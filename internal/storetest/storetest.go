// Package storetest runs the behaviour every store.SessionStore must share
// against a concrete backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/traego/oncesession/pkg/session/store"
)

const ttl = time.Hour

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) store.SessionStore

// Run exercises the store contract
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("load missing key", func(t *testing.T) {
		s := newStore(t)

		state, found, err := s.Load(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, state)
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)
		want := store.State{"name": `"alice"`, "count": "3"}

		key, err := s.Save(ctx, want, ttl)
		require.NoError(t, err)
		require.NotEmpty(t, key)

		got, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, got)
	})

	t.Run("save empty state", func(t *testing.T) {
		s := newStore(t)

		key, err := s.Save(ctx, nil, ttl)
		require.NoError(t, err)

		got, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, got)
	})

	t.Run("update is idempotent", func(t *testing.T) {
		s := newStore(t)
		key, err := s.Save(ctx, store.State{"a": "1"}, ttl)
		require.NoError(t, err)

		next := store.State{"a": "2", "b": "3"}
		for i := 0; i < 2; i++ {
			got, err := s.Update(ctx, key, next, ttl)
			require.NoError(t, err)
			assert.Equal(t, key, got)
		}

		loaded, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, next, loaded)
	})

	t.Run("update creates missing record", func(t *testing.T) {
		s := newStore(t)

		key, err := s.Update(ctx, "fresh", store.State{"x": "1"}, ttl)
		require.NoError(t, err)
		assert.Equal(t, "fresh", key)

		loaded, found, err := s.Load(ctx, "fresh")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, store.State{"x": "1"}, loaded)
	})

	t.Run("update ttl on missing key", func(t *testing.T) {
		s := newStore(t)

		err := s.UpdateTTL(ctx, "ghost", ttl)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, found, err := s.Load(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("update ttl keeps state", func(t *testing.T) {
		s := newStore(t)
		key, err := s.Save(ctx, store.State{"a": "1"}, ttl)
		require.NoError(t, err)

		require.NoError(t, s.UpdateTTL(ctx, key, 2*ttl))

		loaded, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, store.State{"a": "1"}, loaded)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		key, err := s.Save(ctx, store.State{"a": "1"}, ttl)
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, "never-existed"))

		_, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("caller maps are not shared", func(t *testing.T) {
		s := newStore(t)
		in := store.State{"a": "1"}
		key, err := s.Save(ctx, in, ttl)
		require.NoError(t, err)
		in["a"] = "changed"

		out, _, err := s.Load(ctx, key)
		require.NoError(t, err)
		out["b"] = "added"

		again, _, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, store.State{"a": "1"}, again)
	})

	t.Run("concurrent saves yield distinct keys", func(t *testing.T) {
		s := newStore(t)
		const n = 64

		var (
			mu   sync.Mutex
			keys = make(map[string]struct{}, n)
		)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				key, err := s.Save(gctx, store.State{}, ttl)
				if err != nil {
					return err
				}
				mu.Lock()
				keys[key] = struct{}{}
				mu.Unlock()
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Len(t, keys, n)
	})

	t.Run("concurrent updates on distinct keys", func(t *testing.T) {
		s := newStore(t)
		const n = 32

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			key := string(rune('a' + i%26)) + string(rune('0'+i/26))
			g.Go(func() error {
				_, err := s.Update(gctx, key, store.State{"k": key}, ttl)
				return err
			})
		}
		require.NoError(t, g.Wait())

		loaded, found, err := s.Load(ctx, "a0")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, store.State{"k": "a0"}, loaded)
	})
}
