package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/noces-app/backend/internal/config"
	"github.com/noces-app/backend/internal/db"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/redis"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {

	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(cfg.DatabaseDSN); err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("database ready", nil)

	redisClient, err := redis.New(ctx, redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info("redis ready", map[string]any{
		"addr": cfg.RedisAddr,
	})

	return &Infra{
		DB:    database,
		Redis: redisClient,
	}, nil

}

func (i *Infra) Close() error {
	return errors.Join(i.Redis.Close(), i.DB.Close())
}

// Migrate applies pending migrations, or rolls back the given number of
// steps when rollback is positive.
func Migrate(cfg config.Config, rollback int) error {

	if rollback > 0 {
		if err := db.RollbackMigrations(cfg.DatabaseDSN, rollback); err != nil {
			return err
		}
		logger.Info("migrations rolled back", map[string]any{
			"steps": rollback,
		})
		return nil
	}

	if err := db.RunMigrations(cfg.DatabaseDSN); err != nil {
		return err
	}

	logger.Info("migrations applied", nil)

	return nil

}
