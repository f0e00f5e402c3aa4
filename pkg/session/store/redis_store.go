package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traego/oncesession/internal/metrics"
	"github.com/traego/oncesession/pkg/session/keygen"
)

// RedisSessionStore implements SessionStore using Redis. Record expiry is
// left to Redis key expiration, so the store does not implement Purger.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	keys   keygen.Generator
}

// ConnectRedis opens a client for the given addresses and checks it can
// reach the server
func ConnectRedis(ctx context.Context, addresses []string, password string, db int) (redis.UniversalClient, error) {
	if len(addresses) == 0 {
		return nil, errors.New("at least one Redis address is required")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addresses,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %v: %w", addresses, err)
	}

	slog.Info("Connected to Redis", "addresses", addresses)
	return client, nil
}

// NewRedisSessionStore creates a new Redis session store
func NewRedisSessionStore(client redis.UniversalClient, prefix string, opts ...Option) *RedisSessionStore {
	o := newOptions(opts)
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		keys:   o.keys,
	}
}

// sessionKey returns the Redis key for a session
func (s *RedisSessionStore) sessionKey(key string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, key)
}

// Load retrieves the state stored under key
func (s *RedisSessionStore) Load(ctx context.Context, key string) (State, bool, error) {
	data, err := s.client.Get(ctx, s.sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveStore("load", metrics.BackendRedis, nil)
		return nil, false, nil
	} else if err != nil {
		err = fmt.Errorf("failed to load session %s: %w", key, err)
		metrics.ObserveStore("load", metrics.BackendRedis, err)
		return nil, false, err
	}

	state := State{}
	if err := json.Unmarshal(data, &state); err != nil {
		err = fmt.Errorf("failed to deserialize session %s: %w", key, err)
		metrics.ObserveStore("load", metrics.BackendRedis, err)
		return nil, false, err
	}

	metrics.ObserveStore("load", metrics.BackendRedis, nil)
	return state, true, nil
}

// Save stores state under a new key. SET NX guarantees an existing record is
// never overwritten.
func (s *RedisSessionStore) Save(ctx context.Context, state State, ttl time.Duration) (string, error) {
	data, err := encodeState(state)
	if err != nil {
		metrics.ObserveStore("save", metrics.BackendRedis, err)
		return "", err
	}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.keys.NewKey()
		if err != nil {
			metrics.ObserveStore("save", metrics.BackendRedis, err)
			return "", err
		}

		ok, err := s.client.SetNX(ctx, s.sessionKey(key), data, expiry(ttl)).Result()
		if err != nil {
			err = fmt.Errorf("failed to save session %s: %w", key, err)
			metrics.ObserveStore("save", metrics.BackendRedis, err)
			return "", err
		}
		if ok {
			metrics.ObserveStore("save", metrics.BackendRedis, nil)
			slog.Debug("Saved session", "session_id", key, "ttl", ttl)
			return key, nil
		}
		slog.Warn("Session key collision", "attempt", attempt)
	}

	metrics.ObserveStore("save", metrics.BackendRedis, ErrKeyExhausted)
	return "", ErrKeyExhausted
}

// Update upserts the state under key
func (s *RedisSessionStore) Update(ctx context.Context, key string, state State, ttl time.Duration) (string, error) {
	data, err := encodeState(state)
	if err != nil {
		metrics.ObserveStore("update", metrics.BackendRedis, err)
		return "", err
	}

	if err := s.client.Set(ctx, s.sessionKey(key), data, expiry(ttl)).Err(); err != nil {
		err = fmt.Errorf("failed to update session %s: %w", key, err)
		metrics.ObserveStore("update", metrics.BackendRedis, err)
		return "", err
	}

	metrics.ObserveStore("update", metrics.BackendRedis, nil)
	slog.Debug("Updated session", "session_id", key, "ttl", ttl)
	return key, nil
}

// UpdateTTL refreshes the ttl for a session
func (s *RedisSessionStore) UpdateTTL(ctx context.Context, key string, ttl time.Duration) error {
	var (
		ok  bool
		err error
	)
	if ttl > 0 {
		ok, err = s.client.Expire(ctx, s.sessionKey(key), ttl).Result()
	} else {
		// EXPIRE with a non-positive ttl deletes the key, so drop the expiry instead
		var n int64
		n, err = s.client.Exists(ctx, s.sessionKey(key)).Result()
		if err == nil && n > 0 {
			ok = true
			err = s.client.Persist(ctx, s.sessionKey(key)).Err()
		}
	}

	if err != nil {
		err = fmt.Errorf("failed to refresh session %s: %w", key, err)
		metrics.ObserveStore("update_ttl", metrics.BackendRedis, err)
		return err
	}
	if !ok {
		err = fmt.Errorf("failed to refresh session %s: %w", key, ErrNotFound)
		metrics.ObserveStore("update_ttl", metrics.BackendRedis, err)
		return err
	}

	metrics.ObserveStore("update_ttl", metrics.BackendRedis, nil)
	slog.Debug("Refreshed session", "session_id", key, "ttl", ttl)
	return nil
}

// Delete removes a session
func (s *RedisSessionStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.sessionKey(key)).Err(); err != nil {
		err = fmt.Errorf("failed to remove session %s: %w", key, err)
		metrics.ObserveStore("delete", metrics.BackendRedis, err)
		return err
	}

	metrics.ObserveStore("delete", metrics.BackendRedis, nil)
	slog.Debug("Removed session", "session_id", key)
	return nil
}

// Close closes the Redis client
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func encodeState(state State) ([]byte, error) {
	if state == nil {
		state = State{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session: %w", err)
	}
	return data, nil
}

// expiry maps a non-positive ttl to "no expiry"
func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

var _ SessionStore = (*RedisSessionStore)(nil)
