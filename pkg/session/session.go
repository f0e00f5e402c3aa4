// Package session provides the per-request view of a stored session record
// and the HTTP middleware that loads and writes it back.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/traego/oncesession/pkg/session/store"
)

// Status tracks what the request did to its session
type Status int

const (
	Unchanged Status = iota
	Changed
	Purged
	Renewed
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Purged:
		return "purged"
	case Renewed:
		return "renewed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// SerializationError reports a field whose value could not be encoded or
// decoded
type SerializationError struct {
	Field string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("session field %q: %v", e.Field, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Session is a request-scoped handle on one session record. It is safe for
// use by the goroutines of a single request.
type Session struct {
	mu       sync.Mutex
	key      string
	state    store.State
	status   Status
	revision uint64
}

// New wraps a loaded state. An empty key marks a session that has not been
// stored yet.
func New(key string, state store.State) *Session {
	return &Session{
		key:   key,
		state: state.Clone(),
	}
}

// Key returns the session key, or "" before the session is first stored
func (s *Session) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// IsNew reports whether the session has not been stored yet
func (s *Session) IsNew() bool {
	return s.Key() == ""
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Revision increases with every mutation
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// State returns a copy of the current fields
func (s *Session) State() store.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Len returns the number of fields
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state)
}

// touch must be called with mu held
func (s *Session) touch() {
	s.revision++
	if s.status == Unchanged {
		s.status = Changed
	}
}

// GetRaw returns the serialized value of field
func (s *Session) GetRaw(field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[field]
	return v, ok
}

// InsertRaw stores an already serialized value
func (s *Session) InsertRaw(field, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[field] = raw
	s.touch()
}

// Remove deletes field and returns its serialized value
func (s *Session) Remove(field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[field]
	if ok {
		delete(s.state, field)
		s.touch()
	}
	return v, ok
}

// Take removes every listed field in one step and returns those present
func (s *Session) Take(fields ...string) map[string]string {
	taken := make(map[string]string, len(fields))
	s.Modify(func(state store.State) bool {
		for _, f := range fields {
			if v, ok := state[f]; ok {
				taken[f] = v
				delete(state, f)
			}
		}
		return len(taken) > 0
	})
	return taken
}

// Modify runs fn with exclusive access to the fields. fn reports whether it
// changed anything.
func (s *Session) Modify(fn func(state store.State) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn(s.state) {
		s.touch()
	}
}

// Clear removes every field
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state) == 0 {
		return
	}
	s.state = store.State{}
	s.touch()
}

// Purge clears the session and asks for the record and cookie to be removed
func (s *Session) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = store.State{}
	s.status = Purged
	s.revision++
}

// Renew keeps the fields but moves them to a fresh key when written back
func (s *Session) Renew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Purged {
		return
	}
	s.status = Renewed
	s.revision++
}

// stored records a successful write-back of the given revision
func (s *Session) stored(key string, revision uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	if s.revision == revision {
		s.status = Unchanged
	} else if s.status != Purged {
		s.status = Changed
	}
}

// snapshot returns the fields to write back along with the revision they
// belong to
func (s *Session) snapshot() (string, store.State, Status, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.state.Clone(), s.status, s.revision
}

// Get decodes field into a T. A missing field yields the zero value and false.
func Get[T any](s *Session, field string) (T, bool, error) {
	var v T
	raw, ok := s.GetRaw(field)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false, &SerializationError{Field: field, Err: err}
	}
	return v, true, nil
}

// Insert encodes value and stores it under field, replacing any previous value
func Insert[T any](s *Session, field string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &SerializationError{Field: field, Err: err}
	}
	s.InsertRaw(field, string(raw))
	return nil
}
