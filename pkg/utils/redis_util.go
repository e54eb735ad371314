package utils

import (
	"context"
	"fmt"

	"bidding-engine/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitializeRedis builds a client and checks it with a ping.
func InitializeRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}
