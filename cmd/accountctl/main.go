// Command accountctl provisions accounts directly against the database.
//
//	accountctl create -username alice -email alice@example.com [-inactive] [-password-stdin]
//	accountctl activate|deactivate|delete -username alice
//	accountctl purge -id <uuid>
//	accountctl list [-all]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/nickmous/beanstash/internal/account"
	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/cache"
	"github.com/nickmous/beanstash/internal/config"
	"github.com/nickmous/beanstash/internal/database"
	"github.com/nickmous/beanstash/internal/logging"
	"github.com/nickmous/beanstash/internal/queue"
	"github.com/nickmous/beanstash/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "accountctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

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

	opts := []account.Option{account.WithLogger(logger)}
	if cfg.Cache.Enabled {
		if rdb := config.NewRedisClient(cfg.Redis); rdb != nil {
			defer rdb.Close()
			opts = append(opts, account.WithInvalidator(cache.NewInvalidator(cfg.Cache, rdb)))
		}
	}
	if cfg.EventsEnabled {
		opts = append(opts, account.WithPublisher(queue.NewAMQPPublisher(cfg.RabbitMQURL, logger)))
	}

	svc := account.NewService(repository.NewAccountRepo(db), auth.NewBcryptHasher(cfg.BcryptCost), opts...)
	cli := &CLI{
		Accounts: svc,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Password: terminalPassword,
	}
	return cli.Run(ctx, os.Args[1:])
}
