package store

import (
	"context"
	"errors"
	"time"

	"github.com/traego/oncesession/pkg/session/keygen"
)

// State maps field names to serialized values. The store never interprets
// the values.
type State map[string]string

// Clone returns a copy of s. A nil State clones to an empty one.
func (s State) Clone() State {
	c := make(State, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

var (
	// ErrNotFound is returned by UpdateTTL when the key has no record
	ErrNotFound = errors.New("session does not exist")

	// ErrKeyExhausted is returned by Save when no unused key could be minted
	ErrKeyExhausted = errors.New("could not allocate an unused session key")
)

// maxKeyAttempts bounds the collision retry in Save
const maxKeyAttempts = 5

// SessionStore defines the interface for session storage
type SessionStore interface {
	// Load returns the state stored under key. A missing key is not an error.
	Load(ctx context.Context, key string) (State, bool, error)

	// Save stores state under a freshly minted key and returns the key
	Save(ctx context.Context, state State, ttl time.Duration) (string, error)

	// Update replaces the state under key, creating the record if needed
	Update(ctx context.Context, key string, state State, ttl time.Duration) (string, error)

	// UpdateTTL refreshes the ttl of an existing record
	UpdateTTL(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes the record under key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Close closes the session store
	Close() error
}

// Purger is implemented by stores that rely on an external reaper to drop
// expired records
type Purger interface {
	// Purge removes records whose ttl elapsed before the given instant and
	// returns how many were removed
	Purge(ctx context.Context, before time.Time) (int, error)
}

type options struct {
	keys keygen.Generator
	now  func() time.Time
}

// Option configures a store
type Option func(*options)

// WithKeyGenerator sets the generator used by Save
func WithKeyGenerator(g keygen.Generator) Option {
	return func(o *options) {
		o.keys = g
	}
}

// WithTimeNow replaces the clock used to stamp records
func WithTimeNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		keys: keygen.Default,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
