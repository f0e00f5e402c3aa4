// Package flash implements one-shot messages carried in a session across a
// redirect. Messages written during one request are flushed by the next one
// and are gone afterwards unless the handler forwards them again.
package flash

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/traego/oncesession/internal/metrics"
	"github.com/traego/oncesession/pkg/session"
	"github.com/traego/oncesession/pkg/session/store"
	"github.com/traego/oncesession/pkg/utils"
)

// Reserved session fields
const (
	FlashField   = "flash"
	ErrorsField  = "errors"
	PrevURLField = "_prev_req_url"
	CurrURLField = "_curr_req_url"
)

// DefaultURL stands in for a previous URL that was never recorded
const DefaultURL = "/"

// Envelope is the snapshot produced by a flush. A nil slot is absent.
type Envelope struct {
	Flash   json.RawMessage
	Errors  json.RawMessage
	PrevURL string
}

func (e Envelope) HasFlash() bool  { return e.Flash != nil }
func (e Envelope) HasErrors() bool { return e.Errors != nil }

// IsEmpty reports whether both slots are absent
func (e Envelope) IsEmpty() bool { return !e.HasFlash() && !e.HasErrors() }

// InsertFlash stores value in the flash slot for the next request
func InsertFlash[T any](s *session.Session, value T) error {
	return insert(s, FlashField, value)
}

// InsertErrors stores value in the errors slot for the next request
func InsertErrors[T any](s *session.Session, value T) error {
	return insert(s, ErrorsField, value)
}

func insert[T any](s *session.Session, field string, value T) error {
	if err := session.Insert(s, field, value); err != nil {
		return err
	}
	metrics.FlashMessages.WithLabelValues("inserted", field).Inc()
	return nil
}

// Flush removes the flash, errors and URL tracking fields in one step and
// returns them. PrevURL is the URL recorded by the previous request.
func Flush(s *session.Session) Envelope {
	return envelopeFrom(s.Take(FlashField, ErrorsField, PrevURLField, CurrURLField))
}

// TrackURL records url as the current request URL, moving the last one to
// the previous slot
func TrackURL(s *session.Session, url string) {
	s.Modify(func(state store.State) bool {
		state[PrevURLField] = encodeURL(decodeURL(state[CurrURLField]))
		state[CurrURLField] = encodeURL(url)
		return true
	})
}

// Begin is the per-request step: it flushes the session and records url,
// under one lock of the session.
func Begin(s *session.Session, url string) Envelope {
	var env Envelope
	s.Modify(func(state store.State) bool {
		taken := make(map[string]string, 4)
		for _, f := range []string{FlashField, ErrorsField, PrevURLField, CurrURLField} {
			if v, ok := state[f]; ok {
				taken[f] = v
				delete(state, f)
			}
		}
		env = envelopeFrom(taken)
		state[PrevURLField] = encodeURL(env.PrevURL)
		state[CurrURLField] = encodeURL(url)
		return true
	})
	return env
}

func envelopeFrom(taken map[string]string) Envelope {
	env := Envelope{PrevURL: decodeURL(taken[CurrURLField])}
	if v, ok := taken[FlashField]; ok {
		env.Flash = json.RawMessage(v)
		metrics.FlashMessages.WithLabelValues("flushed", FlashField).Inc()
	}
	if v, ok := taken[ErrorsField]; ok {
		env.Errors = json.RawMessage(v)
		metrics.FlashMessages.WithLabelValues("flushed", ErrorsField).Inc()
	}
	return env
}

// Forward writes the slots of env back into s so the next request sees them
// again. Each present slot must decode as F (flash) or E (errors); on failure
// nothing is written. Absent slots leave the live session untouched.
func Forward[F, E any](s *session.Session, env Envelope) error {
	view, err := Decode[F, E](env)
	if err != nil {
		return err
	}
	if view.Flash != nil {
		if err := session.Insert(s, FlashField, *view.Flash); err != nil {
			return err
		}
		metrics.FlashMessages.WithLabelValues("forwarded", FlashField).Inc()
	}
	if view.Errors != nil {
		if err := session.Insert(s, ErrorsField, *view.Errors); err != nil {
			return err
		}
		metrics.FlashMessages.WithLabelValues("forwarded", ErrorsField).Inc()
	}
	return nil
}

// View is the typed form of an Envelope. A nil slot is absent.
type View[F, E any] struct {
	Flash   *F
	Errors  *E
	PrevURL string
}

// Decode parses the slots of env as F and E
func Decode[F, E any](env Envelope) (View[F, E], error) {
	view := View[F, E]{PrevURL: env.PrevURL}
	if env.Flash != nil {
		var f F
		if err := json.Unmarshal(env.Flash, &f); err != nil {
			return View[F, E]{}, &session.SerializationError{Field: FlashField, Err: err}
		}
		view.Flash = &f
	}
	if env.Errors != nil {
		var e E
		if err := json.Unmarshal(env.Errors, &e); err != nil {
			return View[F, E]{}, &session.SerializationError{Field: ErrorsField, Err: err}
		}
		view.Errors = &e
	}
	return view, nil
}

// DecodeLenient is Decode with malformed slots treated as absent
func DecodeLenient[F, E any](ctx context.Context, env Envelope) View[F, E] {
	view := View[F, E]{PrevURL: env.PrevURL}
	if env.Flash != nil {
		var f F
		if err := json.Unmarshal(env.Flash, &f); err != nil {
			slog.WarnContext(ctx, "Dropping malformed flash slot", "slot", FlashField, "error", err)
		} else {
			view.Flash = &f
		}
	}
	if env.Errors != nil {
		var e E
		if err := json.Unmarshal(env.Errors, &e); err != nil {
			slog.WarnContext(ctx, "Dropping malformed flash slot", "slot", ErrorsField, "error", err)
		} else {
			view.Errors = &e
		}
	}
	return view
}

// URL values are stored as JSON strings like every other field
func encodeURL(url string) string {
	b, _ := json.Marshal(url)
	return string(b)
}

func decodeURL(raw string) string {
	var url string
	if raw == "" || json.Unmarshal([]byte(raw), &url) != nil || url == "" {
		return DefaultURL
	}
	return url
}

// WithEnvelope attaches env to ctx
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, utils.FlashCtx, env)
}

// FromContext returns the envelope flushed for this request. Without one it
// returns an empty envelope pointing at DefaultURL.
func FromContext(ctx context.Context) Envelope {
	if env, ok := ctx.Value(utils.FlashCtx).(Envelope); ok {
		return env
	}
	return Envelope{PrevURL: DefaultURL}
}
