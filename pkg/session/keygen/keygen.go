// Package keygen mints session keys. Keys are opaque, cookie-safe strings
// drawn from a cryptographically secure source with no shared counter.
package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

const (
	KindUUID   = "uuid"
	KindRandom = "random"

	// DefaultRandomSize is the number of random bytes in a Random key.
	DefaultRandomSize = 32
)

// Generator mints new session keys and recognizes keys it could have minted
type Generator interface {
	// NewKey returns a fresh key
	NewKey() (string, error)

	// Valid reports whether key has the shape of a key from this generator
	Valid(key string) bool
}

// Default is the generator used when none is configured
var Default Generator = UUID{}

// randRead is stubbed in tests
var randRead = rand.Read

// UUID mints random (version 4) UUIDs in canonical form
type UUID struct{}

func (UUID) NewKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}
	return id.String(), nil
}

func (UUID) Valid(key string) bool {
	if len(key) != 36 {
		return false
	}
	id, err := uuid.Parse(key)
	return err == nil && id.Version() == 4
}

// Random mints Size random bytes encoded as unpadded URL-safe base64
type Random struct {
	Size int
}

func (r Random) size() int {
	if r.Size <= 0 {
		return DefaultRandomSize
	}
	return r.Size
}

func (r Random) NewKey() (string, error) {
	b := make([]byte, r.size())
	if _, err := randRead(b); err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (r Random) Valid(key string) bool {
	b, err := base64.RawURLEncoding.DecodeString(key)
	return err == nil && len(b) == r.size()
}

// FromKind returns the generator configured by name
func FromKind(kind string) (Generator, error) {
	switch kind {
	case "", KindUUID:
		return UUID{}, nil
	case KindRandom:
		return Random{}, nil
	default:
		return nil, fmt.Errorf("unknown key generator %q", kind)
	}
}
