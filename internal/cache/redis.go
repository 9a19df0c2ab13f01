package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/slotcart/config"
	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client    *redis.Client
	couponTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, couponTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), couponTTL)
}

func NewRedisCacheWithClient(client *redis.Client, couponTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, couponTTL: couponTTL}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetCouponPolicy returns nil without error on a cache miss.
func (c *RedisCache) GetCouponPolicy(ctx context.Context, code string, productTypeID int64) (*domain.CouponPolicy, error) {
	data, err := c.client.Get(ctx, couponKey(code, productTypeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var policy domain.CouponPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (c *RedisCache) SetCouponPolicy(ctx context.Context, policy domain.CouponPolicy) error {
	if c.couponTTL <= 0 {
		return nil
	}
	payload, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, couponKey(policy.Code, policy.ProductTypeID), payload, c.couponTTL).Err()
}

// AcquireCheckoutLock holds the owner's checkout slot until released or ttl elapses.
func (c *RedisCache) AcquireCheckoutLock(ctx context.Context, owner domain.OwnerKey, token string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, checkoutLockKey(owner), token, ttl).Result()
}

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (c *RedisCache) ReleaseCheckoutLock(ctx context.Context, owner domain.OwnerKey, token string) error {
	return releaseScript.Run(ctx, c.client, []string{checkoutLockKey(owner)}, token).Err()
}

func couponKey(code string, productTypeID int64) string {
	return fmt.Sprintf("cache:coupon:%s:type:%d", code, productTypeID)
}

func checkoutLockKey(owner domain.OwnerKey) string {
	return fmt.Sprintf("lock:checkout:user:%s:org:%s", owner.UserID, owner.OrganizationID)
}
