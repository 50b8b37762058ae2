package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/config"
)

// Startup waits this long for Redis to answer; compose brings it up alongside the api.
const (
	connectDeadline = 15 * time.Second
	connectRetry    = 500 * time.Millisecond
)

// Options maps the Redis section of the config onto go-redis options.
// The relay holds one long-lived PubSub connection, so the pool keeps one spare.
func Options(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MinIdleConns: 1,
	}
}

// ConnectRedis dials Redis and pings until it answers or ctx expires.
func ConnectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(ctx, connectDeadline)
	defer cancel()

	attempt := 0
	for {
		attempt++
		err := rdb.Ping(ctx).Err()
		if err == nil {
			break
		}
		log.Debug("redis not ready", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s unreachable after %d attempts: %w", cfg.RedisAddr, attempt, err)
		case <-time.After(connectRetry):
		}
	}

	log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB), zap.Int("attempts", attempt))
	return rdb, nil
}

// DisconnectRedis closes the client; a nil client is a no-op.
func DisconnectRedis(client *redis.Client, log *zap.Logger) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	log.Info("Redis connection closed")
	return nil
}
