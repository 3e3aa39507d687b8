package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gil0mendes/Stellar/internal/config"
)

// Open builds a client for cfg and pings it.
func Open(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}
	return client, nil
}
