package config

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache of decoded group configs. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, groupID string) (*GuildConfig, error)
	Set(ctx context.Context, groupID string, c *GuildConfig) error
	Purge(ctx context.Context, groupID string) error
}

type MemCache struct {
	Data *expirable.LRU[string, *GuildConfig]
}

var _ Cache = (*MemCache)(nil)

func NewMemCache(capacity int, ttl time.Duration) *MemCache {
	return &MemCache{
		Data: expirable.NewLRU[string, *GuildConfig](capacity, nil, ttl),
	}
}

func (s *MemCache) Get(ctx context.Context, groupID string) (*GuildConfig, error) {
	v, ok := s.Data.Get(groupID)
	if !ok {
		return nil, nil
	}
	return v.Clone(), nil
}

func (s *MemCache) Set(ctx context.Context, groupID string, c *GuildConfig) error {
	s.Data.Add(groupID, c.Clone())
	return nil
}

func (s *MemCache) Purge(ctx context.Context, groupID string) error {
	s.Data.Remove(groupID)
	return nil
}

// Two-level cache: a small in-process TinyLFU in front of redis, shared by all daemon replicas.
type RedisCache struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, ttl),
	})
	return &RedisCache{
		Data: data,
		TTL:  ttl,
	}
}

func redisCacheKey(groupID string) string {
	return "automod/config/" + groupID
}

func (s *RedisCache) Get(ctx context.Context, groupID string) (*GuildConfig, error) {
	var c GuildConfig
	err := s.Data.Get(ctx, redisCacheKey(groupID), &c)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisCache) Set(ctx context.Context, groupID string, c *GuildConfig) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCacheKey(groupID),
		Value: c,
		TTL:   s.TTL,
	})
}

func (s *RedisCache) Purge(ctx context.Context, groupID string) error {
	err := s.Data.Delete(ctx, redisCacheKey(groupID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
