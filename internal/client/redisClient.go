package client

import (
	"context"
	"fmt"
	"time"

	"storefront-checkout/internal/config"

	"github.com/go-redis/redis/v8"
)

// PriceCache is the time-boxed cache in front of the plan catalog's processor
// price lookups. A miss returns ("", false, nil).
type PriceCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type redisPriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPriceCache(redisCfg *config.Redis) (PriceCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisPriceCache{
		rdb: rdb,
		ttl: redisCfg.PriceTTL,
	}, nil
}

func (c *redisPriceCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, "price:"+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisPriceCache) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, "price:"+key, value, c.ttl).Err()
}
