package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traego/oncesession/pkg/session/store"
)

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestGetInsert(t *testing.T) {
	s := New("k", nil)

	require.NoError(t, Insert(s, "profile", profile{Name: "ann", Age: 7}))
	require.NoError(t, Insert(s, "count", 3))

	got, ok, err := Get[profile](s, "profile")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, profile{Name: "ann", Age: 7}, got)

	n, ok, err := Get[int](s, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	raw, ok := s.GetRaw("count")
	assert.True(t, ok)
	assert.Equal(t, "3", raw)

	t.Run("missing field", func(t *testing.T) {
		v, ok, err := Get[string](s, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("mismatched type names the field", func(t *testing.T) {
		_, _, err := Get[int](s, "profile")
		var serr *SerializationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "profile", serr.Field)

		other, ok, err := Get[int](s, "count")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, other)
	})

	t.Run("unencodable value", func(t *testing.T) {
		err := Insert(s, "ch", make(chan int))
		var serr *SerializationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "ch", serr.Field)
		_, ok := s.GetRaw("ch")
		assert.False(t, ok)
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, Insert(s, "count", 4))
		n, _, err := Get[int](s, "count")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestStatus(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(s *Session)
		want   Status
	}{
		{name: "untouched", mutate: func(s *Session) {}, want: Unchanged},
		{name: "read only", mutate: func(s *Session) { _, _ = s.GetRaw("a") }, want: Unchanged},
		{name: "insert", mutate: func(s *Session) { s.InsertRaw("b", "1") }, want: Changed},
		{name: "remove present", mutate: func(s *Session) { s.Remove("a") }, want: Changed},
		{name: "remove absent", mutate: func(s *Session) { s.Remove("zzz") }, want: Unchanged},
		{name: "take absent", mutate: func(s *Session) { s.Take("x", "y") }, want: Unchanged},
		{name: "clear", mutate: func(s *Session) { s.Clear() }, want: Changed},
		{name: "purge", mutate: func(s *Session) { s.Purge() }, want: Purged},
		{name: "purge then insert", mutate: func(s *Session) { s.Purge(); s.InsertRaw("b", "1") }, want: Purged},
		{name: "renew", mutate: func(s *Session) { s.Renew() }, want: Renewed},
		{name: "renew then insert", mutate: func(s *Session) { s.Renew(); s.InsertRaw("b", "1") }, want: Renewed},
		{name: "purge then renew", mutate: func(s *Session) { s.Purge(); s.Renew() }, want: Purged},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New("k", store.State{"a": "1"})
			tc.mutate(s)
			assert.Equal(t, tc.want, s.Status())
		})
	}
}

func TestRemoveAndTake(t *testing.T) {
	s := New("k", store.State{"a": "1", "b": "2", "c": "3"})

	v, ok := s.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = s.Remove("a")
	assert.False(t, ok)

	taken := s.Take("b", "c", "d")
	assert.Equal(t, map[string]string{"b": "2", "c": "3"}, taken)
	assert.Equal(t, 0, s.Len())
}

func TestStateIsCopied(t *testing.T) {
	loaded := store.State{"a": "1"}
	s := New("k", loaded)
	loaded["a"] = "changed"

	out := s.State()
	out["b"] = "2"

	assert.Equal(t, store.State{"a": "1"}, s.State())
}

func TestPurgeClearsFields(t *testing.T) {
	s := New("k", store.State{"a": "1"})
	s.Purge()
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentInserts(t *testing.T) {
	s := New("", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, Insert(s, string(rune('A'+i%26))+string(rune('a'+i/26)), i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, uint64(50), s.Revision())
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := New("k", nil)
	got, ok := FromContext(WithSession(context.Background(), s))
	assert.True(t, ok)
	assert.Same(t, s, got)
}
