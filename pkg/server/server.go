package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/traego/oncesession/internal/logger"
	"github.com/traego/oncesession/internal/metrics"
	"github.com/traego/oncesession/pkg/config"
	"github.com/traego/oncesession/pkg/flash"
	"github.com/traego/oncesession/pkg/reaper"
	"github.com/traego/oncesession/pkg/server/httphandlers"
	"github.com/traego/oncesession/pkg/session"
	"github.com/traego/oncesession/pkg/session/keygen"
	"github.com/traego/oncesession/pkg/session/store"
	"github.com/traego/oncesession/pkg/utils"
)

// Server serves the session-backed demo application
type Server struct {
	config     *config.ServerConfig
	store      store.SessionStore
	keys       keygen.Generator
	httpServer *http.Server
	reaper     *reaper.System
	mu         sync.Mutex
	serveErr   chan error

	// User-provided router (optional)
	userRouter chi.Router

	// Registers application routes behind the session middleware
	routes func(r chi.Router)

	// Store the handler for reuse
	internalHandler http.Handler
}

// ServerOption represents an option for the server
type ServerOption func(*Server)

// WithStore sets the session store instead of building one from the config
func WithStore(st store.SessionStore) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// WithKeyGenerator overrides the configured key generator
func WithKeyGenerator(g keygen.Generator) ServerOption {
	return func(s *Server) {
		s.keys = g
	}
}

// WithRouter allows the user to provide a chi router for handler registration
// When a router is provided, the server mounts its routes on it and leaves
// the middleware stack to the caller
func WithRouter(router chi.Router) ServerOption {
	return func(s *Server) {
		s.userRouter = router
	}
}

// WithRoutes replaces the demo routes with the given registration func. The
// routes run behind the session and flash middleware.
func WithRoutes(fn func(r chi.Router)) ServerOption {
	return func(s *Server) {
		s.routes = fn
	}
}

// NewServer creates a new server
func NewServer(ctx context.Context, cfg *config.ServerConfig, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	server := &Server{
		config:   cfg,
		routes:   httphandlers.RegisterDemo,
		serveErr: make(chan error, 1),
	}

	for _, opt := range options {
		opt(server)
	}

	if server.keys == nil {
		keys, err := keygen.FromKind(cfg.Session.KeyGenerator)
		if err != nil {
			return nil, err
		}
		server.keys = keys
	}

	if server.store == nil {
		st, err := newStore(ctx, cfg, server.keys)
		if err != nil {
			return nil, err
		}
		server.store = st
	}

	server.internalHandler = server.createHTTPHandler()
	return server, nil
}

func newStore(ctx context.Context, cfg *config.ServerConfig, keys keygen.Generator) (store.SessionStore, error) {
	if cfg.Session.UseInMemory || cfg.Redis == nil {
		return store.NewMemorySessionStore(store.WithKeyGenerator(keys)), nil
	}

	client, err := store.ConnectRedis(ctx, cfg.Redis.Addresses, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	return store.NewRedisSessionStore(client, cfg.Session.KeyPrefix, store.WithKeyGenerator(keys)), nil
}

// Store returns the session store in use
func (s *Server) Store() store.SessionStore {
	return s.store
}

// Start starts the reaper, if the store needs one, and the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purger, ok := s.store.(store.Purger); ok && s.config.Reaper.Enable {
		log := logger.NewSlog(slog.Default().Handler().WithGroup("reaper"))
		sys, err := reaper.Start(ctx, purger, s.config.Reaper.Interval, log)
		if err != nil {
			return fmt.Errorf("failed to start session reaper: %w", err)
		}
		s.reaper = sys
	}

	if s.userRouter != nil {
		slog.InfoContext(ctx, "HTTP server will be started externally")
		return nil
	}

	addr := s.config.HTTP.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.internalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpServer

	slog.InfoContext(ctx, "Starting HTTP server", "addr", addr)
	go func() {
		var err error
		if s.config.HTTP.TLS.Enable {
			err = httpServer.ListenAndServeTLS(s.config.HTTP.TLS.CertFile, s.config.HTTP.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "HTTP server error", "error", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	return nil
}

// Err reports a failure of the HTTP server. It is closed once the server
// stops.
func (s *Server) Err() <-chan error {
	return s.serveErr
}

// Stop stops the HTTP server, the reaper and the store
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		slog.InfoContext(ctx, "Stopping HTTP Server")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown HTTP server", "err", err)
		}
		s.httpServer = nil
	}

	if s.reaper != nil {
		slog.InfoContext(ctx, "Stopping session reaper")
		if err := s.reaper.Stop(ctx); err != nil {
			slog.Error("Failed to shutdown session reaper", "err", err)
		}
		s.reaper = nil
	}

	if err := s.store.Close(); err != nil {
		slog.Error("Failed to close session store", "err", err)
	}
}

// ServeHTTP implements http.Handler, allowing the server to be used directly as a handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.internalHandler.ServeHTTP(w, r)
}

func (s *Server) sessionConfig() session.MiddlewareConfig {
	mc := session.MiddlewareConfig{
		CookieName: s.config.Session.CookieName,
		TTL:        s.config.Session.TTL,
		Secure:     s.config.Session.Secure,
		Keys:       s.keys,
	}
	if s.config.Session.HashKey != "" {
		mc.Codec = session.NewCookieCodec([]byte(s.config.Session.HashKey))
	}
	return mc
}

// createHTTPHandler creates the HTTP handler for the server
func (s *Server) createHTTPHandler() http.Handler {
	var r chi.Router

	if s.userRouter != nil {
		r = s.userRouter
		slog.Info("Using user-provided chi router")
	} else {
		r = chi.NewRouter()

		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(loggingMiddleware)
		r.Use(middleware.Recoverer)
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}

		if s.config.HTTP.CORS.Enable {
			corsOptions := cors.Options{
				AllowedOrigins:   s.config.HTTP.CORS.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   s.config.HTTP.CORS.AllowedHeaders,
				ExposedHeaders:   s.config.HTTP.CORS.ExposedHeaders,
				AllowCredentials: s.config.HTTP.CORS.AllowCredentials,
				MaxAge:           int(s.config.HTTP.CORS.MaxAge.Seconds()),
			}
			r.Use(cors.Handler(corsOptions))
		}

		r.NotFound(httphandlers.HandleNotFound)
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.config.Metrics.Enable {
		r.Method(http.MethodGet, s.config.Metrics.Path, metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(s.store, s.sessionConfig()))
		r.Use(flash.Middleware)
		s.routes(r)
	})

	return r
}

// loggingMiddleware logs HTTP requests under the chi request id
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := utils.SetTraceId(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		slog.InfoContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"latency", time.Since(start).String(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}
