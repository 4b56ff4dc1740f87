// Package bootstrap wires the shared runtime pieces of the API binary:
// Redis, the change-event broker and the availability store.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/opdstack/clinic-platform/internal/availability"
	appconfig "github.com/opdstack/clinic-platform/internal/config"
	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildBroker selects the change-event broker. Redis fans events out across
// instances; without it (or with USE_MEMORY_BUS) events stay in-process.
func BuildBroker(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) events.Broker {
	if redisClient == nil || (cfg != nil && cfg.UseMemoryBus) {
		logger.Info("using in-memory change-event broker")
		return events.NewMemoryBroker()
	}
	return events.NewRedisBroker(redisClient, logger)
}

// BuildAvailabilityStore returns the Redis-backed store, falling back to
// memory when Redis is absent.
func BuildAvailabilityStore(redisClient *redis.Client, logger *logging.Logger) availability.Store {
	if redisClient == nil {
		logger.Info("using in-memory availability store")
		return availability.NewMemoryStore()
	}
	return availability.NewRedisStore(redisClient)
}
