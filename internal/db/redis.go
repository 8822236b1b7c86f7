package db

import (
	"github.com/real-kijmoshi/Skiing-v2/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured; the cross-instance
// bridge is disabled in that case.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
