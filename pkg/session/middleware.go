package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/securecookie"

	"github.com/traego/oncesession/pkg/session/keygen"
	"github.com/traego/oncesession/pkg/session/store"
)

const (
	DefaultCookieName = "_SESSION_ID"
	DefaultTTL        = 24 * time.Hour
)

// MiddlewareConfig controls how the session cookie is read and written
type MiddlewareConfig struct {
	// Name of the session cookie
	CookieName string

	// Lifetime of the record and the cookie
	TTL time.Duration

	// Mark the cookie Secure
	Secure bool

	// Signs the cookie value when set
	Codec *securecookie.SecureCookie

	// Rejects cookie values that could not have been minted
	Keys keygen.Generator
}

// NewCookieCodec returns a codec that signs cookie values with hashKey
func NewCookieCodec(hashKey []byte) *securecookie.SecureCookie {
	return securecookie.New(hashKey, nil).SetSerializer(securecookie.JSONEncoder{})
}

func (cfg MiddlewareConfig) withDefaults() MiddlewareConfig {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Keys == nil {
		cfg.Keys = keygen.Default
	}
	return cfg
}

// keyFromRequest returns the session key carried by the request, or "" when
// the cookie is missing or does not verify
func (cfg MiddlewareConfig) keyFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(cfg.CookieName)
	if err != nil {
		return ""
	}

	key := cookie.Value
	if cfg.Codec != nil {
		var decoded string
		if err := cfg.Codec.Decode(cfg.CookieName, cookie.Value, &decoded); err != nil {
			slog.DebugContext(r.Context(), "Rejected session cookie", "error", err)
			return ""
		}
		key = decoded
	}

	if !cfg.Keys.Valid(key) {
		slog.DebugContext(r.Context(), "Rejected malformed session key")
		return ""
	}
	return key
}

func (cfg MiddlewareConfig) cookie(value string, maxAge int) (*http.Cookie, error) {
	if cfg.Codec != nil && value != "" {
		encoded, err := cfg.Codec.Encode(cfg.CookieName, value)
		if err != nil {
			return nil, err
		}
		value = encoded
	}
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// Middleware loads the session named by the request cookie, attaches it to
// the request context and writes it back before the response header is sent.
// An unknown or invalid cookie starts a new, empty session.
func Middleware(st store.SessionStore, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, err := load(ctx, st, cfg, r)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to load session", "error", err)
				http.Error(w, "failed to load session", http.StatusInternalServerError)
				return
			}

			c := &committer{store: st, cfg: cfg, session: sess, w: w, ctx: ctx}
			hooked := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						c.beforeHeader()
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						c.beforeHeader()
						return next(b)
					}
				},
				ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
					return func(src io.Reader) (int64, error) {
						c.beforeHeader()
						return next(src)
					}
				},
				Flush: func(next httpsnoop.FlushFunc) httpsnoop.FlushFunc {
					return func() {
						c.beforeHeader()
						next()
					}
				},
			})

			next.ServeHTTP(hooked, r.WithContext(WithSession(ctx, sess)))
			c.finish()
		})
	}
}

func load(ctx context.Context, st store.SessionStore, cfg MiddlewareConfig, r *http.Request) (*Session, error) {
	key := cfg.keyFromRequest(r)
	if key == "" {
		return New("", nil), nil
	}

	state, found, err := st.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.DebugContext(ctx, "Unknown session key, starting a new session")
		return New("", nil), nil
	}
	return New(key, state), nil
}

// committer writes the session back exactly once before the header goes
// out, and again after the handler if it changed the session afterwards
type committer struct {
	store   store.SessionStore
	cfg     MiddlewareConfig
	session *Session
	w       http.ResponseWriter
	ctx     context.Context

	mu         sync.Mutex
	headerSent bool
	revision   uint64
}

func (c *committer) beforeHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerSent {
		return
	}
	c.headerSent = true
	c.persist(true)
}

func (c *committer) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.headerSent {
		c.headerSent = true
		c.persist(true)
		return
	}
	if c.session.Revision() != c.revision && !c.session.IsNew() {
		c.persist(false)
	}
}

// persist must be called with mu held
func (c *committer) persist(setCookie bool) {
	ctx := c.ctx
	if ctx.Err() != nil {
		slog.DebugContext(ctx, "Request cancelled, session not written back")
		return
	}

	key, state, status, revision := c.session.snapshot()
	c.revision = revision
	ttl := c.cfg.TTL

	var err error
	switch status {
	case Purged:
		if key != "" {
			err = c.store.Delete(ctx, key)
		}
		if err == nil {
			c.session.stored("", revision)
			if setCookie {
				c.setCookie("", -1)
			}
		}

	case Renewed:
		var newKey string
		if newKey, err = c.store.Save(ctx, state, ttl); err != nil {
			break
		}
		if key != "" {
			if delErr := c.store.Delete(ctx, key); delErr != nil {
				slog.WarnContext(ctx, "Failed to remove renewed session", "error", delErr)
			}
		}
		c.session.stored(newKey, revision)
		if setCookie {
			c.setCookie(newKey, int(ttl.Seconds()))
		}

	case Changed:
		if key == "" {
			key, err = c.store.Save(ctx, state, ttl)
		} else {
			_, err = c.store.Update(ctx, key, state, ttl)
		}
		if err == nil {
			c.session.stored(key, revision)
			if setCookie {
				c.setCookie(key, int(ttl.Seconds()))
			}
		}

	default:
		if key == "" {
			return
		}
		err = c.store.UpdateTTL(ctx, key, ttl)
		if errors.Is(err, store.ErrNotFound) {
			_, err = c.store.Update(ctx, key, state, ttl)
		}
		if err == nil && setCookie {
			c.setCookie(key, int(ttl.Seconds()))
		}
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to write back session",
			"status", status.String(),
			"error", err)
	}
}

func (c *committer) setCookie(value string, maxAge int) {
	cookie, err := c.cfg.cookie(value, maxAge)
	if err != nil {
		slog.ErrorContext(c.ctx, "Failed to encode session cookie", "error", err)
		return
	}
	http.SetCookie(c.w, cookie)
}
