// Package main is the entry point for the Hermes API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/prn-tf/hermes/internal/app"
	"github.com/prn-tf/hermes/internal/auth"
	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/handler"
	"github.com/prn-tf/hermes/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config file")
	showVersion := flag.BoolP("version", "v", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hermes-server %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("database", cfg.Database.Driver).
		Msg("starting Hermes server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	authConfig := auth.DefaultConfig()
	authConfig.Realm = cfg.Auth.Realm
	authConfig.Logger = logger.With().Str("component", "auth").Logger()

	router := handler.NewRouter(handler.RouterConfig{
		UserHandler:         handler.NewUserHandler(a.Users, a.Relationships, logger),
		RelationshipHandler: handler.NewRelationshipHandler(a.Relationships, logger),
		MicropostHandler:    handler.NewMicropostHandler(a.Microposts, a.Feed, logger),
		Authenticator:       handler.NewUserAuthenticator(a.Users),
		AuthConfig:          authConfig,
		Database:            a.Database,
		Metrics:             a.Metrics,
		MaxBodySize:         cfg.Server.MaxBodySize,
		Logger:              logger,
	})

	servers := []*http.Server{{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}}
	if a.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, a.Metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	return serve(ctx, servers, cfg.Server.ShutdownTimeout, logger)
}

// serve runs every server until ctx ends or one listener fails, then shuts
// all of them down. A listener failure is returned along with any shutdown error.
func serve(ctx context.Context, servers []*http.Server, timeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listener %s failed: %w", srv.Addr, err)
			}
		}(srv)
	}

	var failed error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	case failed = <-errCh:
		logger.Error().Err(failed).Msg("shutting down after listener failure")
	}

	return errors.Join(failed, shutdown(servers, timeout, logger))
}

func shutdown(servers []*http.Server, timeout time.Duration, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down %s: %w", srv.Addr, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
