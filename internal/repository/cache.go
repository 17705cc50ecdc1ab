package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const (
	orderKeyPrefix  = "checkout:order:"
	defaultCacheTTL = 5 * time.Minute
)

// RedisOrderCache implements OrderCache using Redis.
type RedisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.LoggerV2
}

// NewRedisClient opens a client for the configured Redis instance.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisOrderCache creates a new Redis-based order cache.
func NewRedisOrderCache(client *redis.Client, ttl time.Duration) *RedisOrderCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}

	return &RedisOrderCache{
		client: client,
		ttl:    ttl,
		logger: logging.NewLoggerV2("order-cache"),
	}
}

func orderKey(id string) string {
	return orderKeyPrefix + id
}

// Get retrieves an order from cache.
func (c *RedisOrderCache) Get(ctx context.Context, id string) (*models.Order, error) {
	data, err := c.client.Get(ctx, orderKey(id)).Bytes()
	if err == redis.Nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Error("Cache get error", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		// Undecodable entries are evicted and reported as a miss.
		metrics.CacheLookups.WithLabelValues("error").Inc()
		_ = c.client.Del(ctx, orderKey(id)).Err()
		return nil, nil
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &order, nil
}

// Set stores an order in cache.
func (c *RedisOrderCache) Set(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, orderKey(order.ID), data, c.ttl).Err(); err != nil {
		c.logger.Error("Cache set error", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return err
	}
	return nil
}

// Delete removes an order from cache.
func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, orderKey(id)).Err(); err != nil {
		c.logger.Error("Cache delete error", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return err
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (c *RedisOrderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
