// Package app holds the startup wiring shared by the api and worker binaries.
package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/chat-api/config"
	"github.com/jwalitptl/chat-api/internal/handler/health"
	"github.com/jwalitptl/chat-api/internal/repository/postgres"
	"github.com/jwalitptl/chat-api/pkg/logger"
	"github.com/jwalitptl/chat-api/pkg/messaging/redis"
)

const connectTimeout = time.Minute

// SetupLogger builds the service logger and installs it as the global
// zerolog logger used by request-path code.
func SetupLogger(cfg config.LogConfig, service string) *logger.Logger {
	l := logger.NewLogger(cfg.ToLoggerConfig())
	l = l.WithFields(map[string]interface{}{"service": service})
	log.Logger = l.ZL
	return l
}

func retry(ctx context.Context, l *logger.Logger, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		l.Warn("Connection attempt failed", "target", what, "retry_in", wait.String(), "error", err.Error())
	})
}

// ConnectDB opens the database, retrying while it comes up, and applies
// the schema when configured to.
func ConnectDB(ctx context.Context, cfg config.DatabaseConfig, l *logger.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB
	err := retry(ctx, l, "postgres", func() error {
		var err error
		db, err = postgres.NewDB(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func ConnectRedis(ctx context.Context, cfg config.RedisConfig, l *logger.Logger) (*goredis.Client, error) {
	var client *goredis.Client
	err := retry(ctx, l, "redis", func() error {
		var err error
		client, err = redis.NewClient(ctx, cfg.ToBrokerConfig())
		return err
	})
	return client, err
}

func HealthChecks(db *sqlx.DB, client goredis.UniversalClient) map[string]health.Pinger {
	return map[string]health.Pinger{
		"database": health.PingFunc(db.PingContext),
		"redis": health.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}),
	}
}
