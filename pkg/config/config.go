package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/traego/oncesession/internal/logger"
	"github.com/traego/oncesession/pkg/session/keygen"
)

// ServerConfig holds the configuration for the session server
type ServerConfig struct {
	// HTTP server configuration
	HTTP HTTPConfig `json:"http"`

	// Redis configuration for a shared session store (optional)
	Redis *RedisConfig `json:"redis,omitempty"`

	// Session configuration
	Session SessionConfig `json:"session"`

	// Expiry reaper configuration
	Reaper ReaperConfig `json:"reaper"`

	// Metrics endpoint configuration
	Metrics MetricsConfig `json:"metrics"`

	// Logging configuration
	Log logger.Config `json:"log"`

	RequestTimeout time.Duration `json:"request_timeout"`
}

// HTTPConfig holds the HTTP server configuration
type HTTPConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// Addr returns the listen address
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSConfig holds the TLS configuration
type TLSConfig struct {
	// Whether to enable TLS
	Enable bool `json:"enable"`

	// Path to the certificate file
	CertFile string `json:"cert_file"`

	// Path to the key file
	KeyFile string `json:"key_file"`
}

// CORSConfig holds the CORS configuration
type CORSConfig struct {
	// Whether to enable CORS
	Enable bool `json:"enable"`

	// Allowed origins
	AllowedOrigins []string `json:"allowed_origins"`

	// Allowed headers
	AllowedHeaders []string `json:"allowed_headers"`

	// Exposed headers
	ExposedHeaders []string `json:"exposed_headers"`

	// Allow credentials
	AllowCredentials bool `json:"allow_credentials"`

	// Max age
	MaxAge time.Duration `json:"max_age"`
}

// SessionConfig holds the session configuration
type SessionConfig struct {
	// Name of the cookie carrying the session key
	CookieName string `json:"cookie_name"`

	// Session TTL (time to live), also used as the cookie max age
	TTL time.Duration `json:"ttl"`

	// Mark the session cookie Secure
	Secure bool `json:"secure"`

	// Key used to sign the session cookie; unsigned when empty
	HashKey string `json:"hash_key,omitempty"`

	// Key generator: "uuid" or "random"
	KeyGenerator string `json:"key_generator"`

	// Whether to use in-memory session store
	UseInMemory bool `json:"use_in_memory"`

	// Key prefix for session storage
	KeyPrefix string `json:"key_prefix"`
}

// RedisConfig holds the Redis configuration
type RedisConfig struct {
	// Redis addresses (can be multiple for cluster)
	Addresses []string `json:"addresses"`

	// Redis password
	Password string `json:"password"`

	// Redis database
	DB int `json:"db"`
}

// ReaperConfig holds the expiry reaper configuration
type ReaperConfig struct {
	// Whether to run the reaper for stores that need one
	Enable bool `json:"enable"`

	// Interval between purges
	Interval time.Duration `json:"interval"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	// Whether to expose metrics
	Enable bool `json:"enable"`

	// Path for the metrics endpoint
	Path string `json:"path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		RequestTimeout: 30 * time.Second,
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
			TLS: TLSConfig{
				Enable: false,
			},
			CORS: CORSConfig{
				Enable:           false,
				AllowedOrigins:   []string{"*"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
				ExposedHeaders:   []string{},
				AllowCredentials: false,
				MaxAge:           300 * time.Second,
			},
		},
		Session: SessionConfig{
			CookieName:   "_SESSION_ID",
			TTL:          24 * time.Hour,
			Secure:       false,
			KeyGenerator: keygen.KindUUID,
			UseInMemory:  true,
			KeyPrefix:    "oncesession:",
		},
		Reaper: ReaperConfig{
			Enable:   true,
			Interval: time.Minute,
		},
		Metrics: MetricsConfig{
			Enable: true,
			Path:   "/metrics",
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *ServerConfig {
	config := DefaultConfig()
	config.Redis = nil // No Redis for testing
	config.Session.UseInMemory = true
	config.Reaper.Enable = false
	config.Log.Level = "error"
	return config
}

// Validate reports settings that cannot work together
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session cookie name must not be empty"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL))
	}
	if _, err := keygen.FromKind(c.Session.KeyGenerator); err != nil {
		errs = append(errs, err)
	}
	if n := len(c.Session.HashKey); n > 0 && n < 32 {
		errs = append(errs, fmt.Errorf("session hash key must be at least 32 bytes, got %d", n))
	}
	if !c.Session.UseInMemory && (c.Redis == nil || len(c.Redis.Addresses) == 0) {
		errs = append(errs, errors.New("redis addresses are required when the in-memory store is disabled"))
	}
	if c.Reaper.Enable && c.Reaper.Interval <= 0 {
		errs = append(errs, fmt.Errorf("reaper interval must be positive, got %s", c.Reaper.Interval))
	}
	if c.HTTP.TLS.Enable && (c.HTTP.TLS.CertFile == "" || c.HTTP.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls requires both a certificate and a key file"))
	}
	if c.Metrics.Enable && c.Metrics.Path == "" {
		errs = append(errs, errors.New("metrics path must not be empty"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
