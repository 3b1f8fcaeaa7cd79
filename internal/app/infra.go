package app

import (
	"context"
	"errors"
	"fmt"

	"participant-auth/internal/config"
	"participant-auth/internal/db"
	"participant-auth/internal/logger"
	"participant-auth/internal/participant"
	"participant-auth/internal/redis"
)

type Infra struct {
	DB           *db.DB
	Redis        *redis.Client
	Participants participant.Store
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	switch cfg.ParticipantBackend {
	case config.BackendPostgres:
		database, err := db.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}

		if err := database.Migrate(ctx); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("db: migrate: %w", err)
		}

		logger.Info("database ready", nil)

		return &Infra{
			DB:           database,
			Participants: participant.NewPostgresStore(database),
		}, nil

	case config.BackendRedis:
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}

		logger.Info("redis ready", map[string]any{
			"addr": cfg.RedisAddr,
		})

		return &Infra{
			Redis:        redisClient,
			Participants: participant.NewRedisStore(redisClient.Client),
		}, nil
	}

	return nil, fmt.Errorf("unknown participant backend %q", cfg.ParticipantBackend)
}

func (i *Infra) Close() error {
	var errs []error
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	return errors.Join(errs...)
}
