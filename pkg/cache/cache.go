// Package cache wraps redis for short lived lookups. A Cache without a client is valid and
// behaves as an always-missing cache, so callers never branch on whether redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

var ErrMiss = errors.New("cache miss")

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

var (
	once     sync.Once
	instance *Cache
)

func GetCache() *Cache {
	once.Do(func() {
		cfg := config.GetConfig().Redis
		ttl := time.Duration(cfg.TTL) * time.Second
		if cfg.Addr == "" {
			instance = &Cache{ttl: ttl}
			return
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logutils.Log.Warnf("redis %s unreachable, cache disabled: %v", cfg.Addr, err)
			instance = &Cache{ttl: ttl}
			return
		}
		logutils.Log.Info("Redis init success!")
		instance = &Cache{rdb: rdb, ttl: ttl}
	})
	return instance
}

// New builds a cache on an existing client, nil for a disabled cache.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetJSON decodes the value at key into v, ErrMiss when absent.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) error {
	if !c.Enabled() {
		return ErrMiss
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

// SetJSON stores v for the default TTL. Failures are logged and ignored.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logutils.Log.Warnf("redis set %s: %v", key, err)
	}
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logutils.Log.Warnf("redis del %v: %v", keys, err)
	}
}

func ProfileKey(profileID uint) string {
	return fmt.Sprintf("edilcloud:profile:%d", profileID)
}

func UnreadKey(profileID uint) string {
	return fmt.Sprintf("edilcloud:unread:%d", profileID)
}
