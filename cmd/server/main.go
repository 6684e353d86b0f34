package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/cache"
	"github.com/nickmous/beanstash/internal/config"
	"github.com/nickmous/beanstash/internal/database"
	"github.com/nickmous/beanstash/internal/handler"
	"github.com/nickmous/beanstash/internal/logging"
	"github.com/nickmous/beanstash/internal/queue"
	"github.com/nickmous/beanstash/internal/repository"
	"github.com/nickmous/beanstash/internal/router"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, database.DSN(cfg))
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
			return err
		}
	}

	repo := repository.NewAccountRepo(db)
	live := repository.NewLiveAccounts(repo)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	signing, err := auth.NewSigningConfig(cfg.JWTSecret, cfg.AccessTTL(), cfg.JWTIssuer)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenService(signing, auth.WithTokenLogger(logger))

	var identities auth.IdentityResolver = auth.NewAccountIdentities(live)
	if cfg.Cache.Enabled {
		rdb := config.NewRedisClient(cfg.Redis)
		if rdb == nil {
			logger.Warn("redis unreachable; identity cache disabled", "addr", cfg.Redis.Address())
		} else {
			defer rdb.Close()
			identities = cache.NewIdentityCache(cfg.Cache, rdb, identities, live, logger)
			if cfg.EventsEnabled {
				startEventConsumer(ctx, cfg, cache.NewInvalidator(cfg.Cache, rdb), logger)
			}
		}
	}

	e := router.New(router.Deps{
		Auth:       handler.NewAuthHandler(auth.NewAuthenticator(live, hasher, tokens, logger), logger),
		DB:         db,
		Tokens:     tokens,
		Identities: identities,
		Logger:     logger,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// startEventConsumer evicts cached identities when another process reports
// an account change.
func startEventConsumer(ctx context.Context, cfg config.Config, inv cache.Invalidator, logger *slog.Logger) {
	c := queue.NewConsumer(cfg.RabbitMQURL, func(ctx context.Context, ev queue.AccountEvent) error {
		return inv.Invalidate(ctx, ev.Username)
	}, logger)
	go func() {
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event consumer stopped", "err", err)
		}
	}()
}
