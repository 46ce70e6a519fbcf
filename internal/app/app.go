// Package app assembles the Hermes services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/cache/memory"
	rediscache "github.com/prn-tf/hermes/internal/cache/redis"
	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/credential"
	"github.com/prn-tf/hermes/internal/database"
	"github.com/prn-tf/hermes/internal/lock"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/repository"
	"github.com/prn-tf/hermes/internal/service"
)

// App holds the connected store and the services built on it.
type App struct {
	Database      repository.Database
	Repos         *repository.Repositories
	Metrics       *metrics.Metrics
	Users         *service.UserService
	Relationships *service.RelationshipService
	Feed          *service.FeedService
	Microposts    *service.MicropostService

	closers []func() error
	logger  zerolog.Logger
}

// New opens the database and, when enabled, Redis, then builds every service.
// Without Redis the user cache and the upgrade lock live in process memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{logger: logger}

	result, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Database = result.Database
	a.Repos = result.Repos
	a.closers = append(a.closers, result.Database.Close)

	var (
		cache  repository.Cache
		locker lock.Locker
	)
	if cfg.Redis.Enabled {
		client, err := rediscache.NewClient(ctx, cfg.Redis)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)

		cache = rediscache.NewCache(client, cfg.Redis.KeyPrefix+"cache:")
		locker = lock.NewRedisLocker(client, cfg.Redis.KeyPrefix+"lock:")
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("using redis for cache and locks")
	} else {
		mem := memory.NewCache(memory.WithMaxEntries(cfg.Cache.MaxEntries))
		memLocker := lock.NewMemoryLocker()
		a.closers = append(a.closers, stopper(mem.Stop), stopper(memLocker.Stop))

		cache = mem
		locker = memLocker
		logger.Info().Msg("using in-process cache and locks")
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	userConfig := service.UserConfig{
		UpgradeLegacy:  cfg.Auth.UpgradeLegacy,
		UpgradeLockTTL: cfg.Auth.UpgradeLockTTL,
	}
	if cfg.Cache.Enabled {
		userConfig.CacheTTL = cfg.Cache.UserTTL
	}
	feedConfig := service.FeedConfig{
		DefaultPageSize: cfg.Feed.DefaultPageSize,
		MaxPageSize:     cfg.Feed.MaxPageSize,
	}

	creds := credential.NewStore(cfg.Auth.BcryptCost)
	a.Users = service.NewUserService(a.Repos, creds, locker, cache, a.Metrics, logger, userConfig)
	a.Relationships = service.NewRelationshipService(a.Repos, a.Metrics, logger)
	a.Feed = service.NewFeedService(a.Repos.Micropost, a.Metrics, logger, feedConfig)
	a.Microposts = service.NewMicropostService(a.Repos, a.Metrics, logger, feedConfig)

	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, goredis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close app: %w", err)
	}
	return nil
}

func stopper(stop func()) func() error {
	return func() error {
		stop()
		return nil
	}
}
