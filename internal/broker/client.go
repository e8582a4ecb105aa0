// Package broker implements the Queue Registry (C1) and the broker-facing
// operations C2-C6 depend on, built directly on the Redis primitives the
// core assumes its broker exposes: atomic list/hash operations, pub/sub
// for event notification, and a hash per schedule plus a set indexing
// them for the scheduler primitive.
// This package does not re-implement a broker; it is the thin client
// that drives one, the same relationship BullMQ itself has to ioredis.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/common"
)

// NewClient builds a pooled Redis client from the broker configuration.
func NewClient(cfg *common.BrokerConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping verifies the broker connection is reachable within timeout.
func Ping(ctx context.Context, rdb *redis.Client, timeout time.Duration, logger arbor.ILogger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker ping failed: %w", err)
	}
	logger.Info().Msg("broker connection established")
	return nil
}
