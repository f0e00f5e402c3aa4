package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/traego/oncesession/internal/metrics"
	"github.com/traego/oncesession/pkg/session/keygen"
)

// MemorySessionStore implements SessionStore using an in-memory map.
//
// A write that does not run to completion (a panic unwinding through the
// critical section) poisons the store. The next caller to take the lock,
// reader or writer, replaces the map with an empty one and carries on; the
// fault is logged and counted but never returned.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]record
	poisoned bool

	keys keygen.Generator
	now  func() time.Time
}

// record is a stored state with its ttl and last write time
type record struct {
	state     State
	ttl       time.Duration
	updatedAt time.Time
}

func (r record) expiredBefore(t time.Time) bool {
	return r.ttl > 0 && !r.updatedAt.Add(r.ttl).After(t)
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore(opts ...Option) *MemorySessionStore {
	o := newOptions(opts)
	slog.Info("Created in-memory session store")
	return &MemorySessionStore{
		sessions: make(map[string]record),
		keys:     o.keys,
		now:      o.now,
	}
}

// resetIfPoisoned must be called with the write lock held
func (s *MemorySessionStore) resetIfPoisoned() {
	if !s.poisoned {
		return
	}
	dropped := len(s.sessions)
	s.sessions = make(map[string]record)
	s.poisoned = false
	metrics.LockFaults.Inc()
	metrics.LiveSessions.WithLabelValues(metrics.BackendMemory).Set(0)
	slog.Error("lock fault on session store, sessions reset", "dropped", dropped)
}

// read runs fn under the read lock
func (s *MemorySessionStore) read(fn func(sessions map[string]record)) {
	s.mu.RLock()
	for s.poisoned {
		s.mu.RUnlock()
		s.mu.Lock()
		s.resetIfPoisoned()
		s.mu.Unlock()
		s.mu.RLock()
	}
	defer s.mu.RUnlock()
	fn(s.sessions)
}

// write runs fn under the write lock. If fn does not return normally the
// store is poisoned before the lock is released.
func (s *MemorySessionStore) write(fn func(sessions map[string]record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfPoisoned()

	completed := false
	defer func() {
		if !completed {
			s.poisoned = true
		}
	}()
	fn(s.sessions)
	completed = true
	metrics.LiveSessions.WithLabelValues(metrics.BackendMemory).Set(float64(len(s.sessions)))
}

// Load retrieves the state stored under key
func (s *MemorySessionStore) Load(ctx context.Context, key string) (State, bool, error) {
	var (
		state State
		found bool
	)
	s.read(func(sessions map[string]record) {
		var rec record
		if rec, found = sessions[key]; found {
			state = rec.state.Clone()
		}
	})
	metrics.ObserveStore("load", metrics.BackendMemory, nil)
	return state, found, nil
}

// Save stores state under a new key
func (s *MemorySessionStore) Save(ctx context.Context, state State, ttl time.Duration) (string, error) {
	rec := record{state: state.Clone(), ttl: ttl, updatedAt: s.now()}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.keys.NewKey()
		if err != nil {
			metrics.ObserveStore("save", metrics.BackendMemory, err)
			return "", err
		}

		inserted := false
		s.write(func(sessions map[string]record) {
			if _, exists := sessions[key]; exists {
				return
			}
			sessions[key] = rec
			inserted = true
		})
		if inserted {
			metrics.ObserveStore("save", metrics.BackendMemory, nil)
			slog.Debug("Saved session", "session_id", key, "ttl", ttl)
			return key, nil
		}
		slog.Warn("Session key collision", "attempt", attempt)
	}

	metrics.ObserveStore("save", metrics.BackendMemory, ErrKeyExhausted)
	return "", ErrKeyExhausted
}

// Update upserts the state under key
func (s *MemorySessionStore) Update(ctx context.Context, key string, state State, ttl time.Duration) (string, error) {
	rec := record{state: state.Clone(), ttl: ttl, updatedAt: s.now()}
	s.write(func(sessions map[string]record) {
		sessions[key] = rec
	})
	metrics.ObserveStore("update", metrics.BackendMemory, nil)
	slog.Debug("Updated session", "session_id", key, "ttl", ttl)
	return key, nil
}

// UpdateTTL refreshes the ttl for a session
func (s *MemorySessionStore) UpdateTTL(ctx context.Context, key string, ttl time.Duration) error {
	found := false
	now := s.now()
	s.write(func(sessions map[string]record) {
		var rec record
		if rec, found = sessions[key]; !found {
			return
		}
		rec.ttl = ttl
		rec.updatedAt = now
		sessions[key] = rec
	})
	if !found {
		err := fmt.Errorf("failed to refresh session %s: %w", key, ErrNotFound)
		metrics.ObserveStore("update_ttl", metrics.BackendMemory, err)
		return err
	}
	metrics.ObserveStore("update_ttl", metrics.BackendMemory, nil)
	slog.Debug("Refreshed session", "session_id", key, "ttl", ttl)
	return nil
}

// Delete removes a session
func (s *MemorySessionStore) Delete(ctx context.Context, key string) error {
	s.write(func(sessions map[string]record) {
		delete(sessions, key)
	})
	metrics.ObserveStore("delete", metrics.BackendMemory, nil)
	slog.Debug("Removed session", "session_id", key)
	return nil
}

// Purge removes every record whose ttl elapsed before the given instant
func (s *MemorySessionStore) Purge(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	s.write(func(sessions map[string]record) {
		for key, rec := range sessions {
			if rec.expiredBefore(before) {
				delete(sessions, key)
				removed++
			}
		}
	})
	metrics.ObserveStore("purge", metrics.BackendMemory, nil)
	if removed > 0 {
		slog.Debug("Purged expired sessions", "count", removed)
	}
	return removed, nil
}

// Len returns the number of stored records
func (s *MemorySessionStore) Len() int {
	n := 0
	s.read(func(sessions map[string]record) {
		n = len(sessions)
	})
	return n
}

// Close is a no-op; the map is released with the store
func (s *MemorySessionStore) Close() error {
	return nil
}

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ Purger       = (*MemorySessionStore)(nil)
)
