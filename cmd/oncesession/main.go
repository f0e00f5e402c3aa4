package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/traego/oncesession/internal/logger"
	"github.com/traego/oncesession/pkg/config"
	"github.com/traego/oncesession/pkg/server"
	"github.com/traego/oncesession/pkg/utils"
)

func main() {
	// Configure ^C to terminate program
	ctx, cancel := context.WithCancel(context.Background())
	CatchCtrlC(cancel)

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd := &cobra.Command{
		Use:           "oncesession",
		Short:         "session and flash message server",
		Long:          "oncesession serves the cookie session and flash message demo routes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Define run func in order to enable cobra's default help functionality
		Run: func(cmd *cobra.Command, args []string) {},
	}
	cmd.SetOut(out)

	var help bool
	cmd.Flags().BoolVarP(&help, "help", "h", false, "Print usage information")

	cfg := config.DefaultConfig()
	redisCfg := newRedisFlags(cmd.Flags())
	bindFlags(cmd.Flags(), cfg)

	if err := SetFlagsFromEnvVariables(cmd.Flags()); err != nil {
		return err
	}
	if err := cmd.ParseFlags(args); err != nil {
		return err
	}

	if help {
		return cmd.Help()
	}

	if len(redisCfg.Addresses) > 0 {
		cfg.Redis = redisCfg
		cfg.Session.UseInMemory = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	handler, err := logger.NewHandler(out, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(utils.NewTraceHandler(handler)))

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	slog.Info("started server", "addr", cfg.HTTP.Addr(), "in_memory", cfg.Session.UseInMemory)

	// Terminate on ^C or when the listener fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err, ok := <-srv.Err():
			if ok {
				return err
			}
			return nil
		}
	})
	err = g.Wait()

	slog.Info("stopping server")
	srv.Stop(context.Background())
	return err
}

// newRedisFlags registers the redis flags. They only take effect when at
// least one address is given.
func newRedisFlags(fs *pflag.FlagSet) *config.RedisConfig {
	cfg := &config.RedisConfig{}
	fs.StringSliceVar(&cfg.Addresses, "redis-addresses", nil, "Redis addresses; the in-memory store is used when empty")
	fs.StringVar(&cfg.Password, "redis-password", "", "Redis password")
	fs.IntVar(&cfg.DB, "redis-db", 0, "Redis database")
	return cfg
}

func bindFlags(fs *pflag.FlagSet, cfg *config.ServerConfig) {
	fs.StringVar(&cfg.HTTP.Host, "host", cfg.HTTP.Host, "Host to listen on")
	fs.IntVarP(&cfg.HTTP.Port, "port", "p", cfg.HTTP.Port, "Port to listen on")
	fs.BoolVar(&cfg.HTTP.TLS.Enable, "tls", cfg.HTTP.TLS.Enable, "Serve over TLS")
	fs.StringVar(&cfg.HTTP.TLS.CertFile, "cert-file", "", "Path to TLS certificate")
	fs.StringVar(&cfg.HTTP.TLS.KeyFile, "key-file", "", "Path to TLS key")
	fs.BoolVar(&cfg.HTTP.CORS.Enable, "cors", cfg.HTTP.CORS.Enable, "Enable CORS")
	fs.StringSliceVar(&cfg.HTTP.CORS.AllowedOrigins, "cors-allowed-origins", cfg.HTTP.CORS.AllowedOrigins, "Origins allowed by CORS")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per request timeout; zero disables it")

	fs.StringVar(&cfg.Session.CookieName, "cookie-name", cfg.Session.CookieName, "Name of the session cookie")
	fs.DurationVar(&cfg.Session.TTL, "session-ttl", cfg.Session.TTL, "Session time to live")
	fs.BoolVar(&cfg.Session.Secure, "secure-cookie", cfg.Session.Secure, "Mark the session cookie Secure")
	fs.StringVar(&cfg.Session.HashKey, "hash-key", "", "Secret of at least 32 bytes used to sign the session cookie")
	fs.StringVar(&cfg.Session.KeyGenerator, "key-generator", cfg.Session.KeyGenerator, "Session key generator: uuid or random")
	fs.StringVar(&cfg.Session.KeyPrefix, "key-prefix", cfg.Session.KeyPrefix, "Prefix for session keys in redis")

	fs.BoolVar(&cfg.Reaper.Enable, "reaper", cfg.Reaper.Enable, "Purge expired sessions from the in-memory store")
	fs.DurationVar(&cfg.Reaper.Interval, "reaper-interval", cfg.Reaper.Interval, "Interval between purges")

	fs.BoolVar(&cfg.Metrics.Enable, "metrics", cfg.Metrics.Enable, "Expose prometheus metrics")
	fs.StringVar(&cfg.Metrics.Path, "metrics-path", cfg.Metrics.Path, "Path of the metrics endpoint")

	fs.StringVarP(&cfg.Log.Level, "log-level", "l", cfg.Log.Level, "Logging level: trace, debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Logging format: json or text")
}
