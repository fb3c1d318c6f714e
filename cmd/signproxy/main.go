package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/moddyapp/signproxy/canonical"
	"github.com/moddyapp/signproxy/debug"
	"github.com/moddyapp/signproxy/internal/config"
	"github.com/moddyapp/signproxy/internal/logger"
	"github.com/moddyapp/signproxy/internal/metrics"
	"github.com/moddyapp/signproxy/internal/server"
	"github.com/moddyapp/signproxy/logbuffer"
	"github.com/moddyapp/signproxy/maintenance"
	"github.com/moddyapp/signproxy/middleware"
	"github.com/moddyapp/signproxy/proxy"
	"github.com/moddyapp/signproxy/signing"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("SIGNPROXY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logs := logbuffer.New(cfg.Logging.BufferSize)

	lg, closeLog, err := logger.Init(cfg.Logging, os.Stdout, logs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise logging")
	}
	defer closeLog()

	handler, err := build(cfg, logs, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info().
		Str("version", version).
		Str("backend", cfg.Backend.URL).
		Bool("maintenance", cfg.Maintenance.Enabled).
		Bool("debug", cfg.Debug.Enabled).
		Msg("signproxy configured")

	if err := server.New(cfg.Server, handler, lg).Run(ctx); err != nil {
		lg.Error().Err(err).Msg("server failed")
		closeLog()
		os.Exit(1)
	}
}

// build wires the signer, forwarder and optional features into the
// router.
func build(cfg *config.Config, logs *logbuffer.Buffer, lg zerolog.Logger) (http.Handler, error) {
	signer, err := signing.NewSigner([]byte(cfg.Backend.Secret), canonical.Options{ASCII: cfg.Backend.ASCIIEscape})
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()

	fwd, err := proxy.NewForwarder(proxy.Config{
		BackendURL: cfg.Backend.URL,
		Signer:     signer,
		Timeout:    cfg.Backend.Timeout,
		Recorder:   metrics.NewProxyMetrics(reg),
		Logger:     &lg,
	})
	if err != nil {
		return nil, err
	}

	deps := &server.Dependencies{
		Config:      cfg,
		Proxy:       proxy.NewHandler(fwd, &lg),
		Registry:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Logger:      &lg,
	}

	if cfg.RateLimit.Enabled() {
		rl, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		if err != nil {
			return nil, err
		}
		deps.RateLimiter = rl
	}

	if cfg.Maintenance.Enabled {
		index := cfg.Maintenance.IndexPath
		deps.Maintenance = maintenance.NewHandler(os.DirFS(filepath.Dir(index)), filepath.Base(index), &lg)
	}

	if cfg.Debug.Enabled {
		deps.Debug = debug.New(debug.Config{
			Version:        version,
			Settings:       cfg.Redacted(),
			Logs:           logs,
			Forwarder:      fwd,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Clock:          clockwork.NewRealClock(),
			Logger:         &lg,
		})
	}

	return server.NewRouter(deps)
}
