package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Returned (wrapped) when configuration for a group could not be loaded. Callers are expected to fall back to Default().
var ErrConfigUnavailable = errors.New("moderation config unavailable")

// Source of per-group configuration. Groups without any stored configuration get Default(), not an error.
type Provider interface {
	GetConfig(ctx context.Context, groupID string) (*GuildConfig, error)
}

// Provider backed by a plain map. Mostly useful in tests and for static deployments.
type MemStore struct {
	mu      sync.RWMutex
	configs map[string]*GuildConfig
}

var _ Provider = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		configs: make(map[string]*GuildConfig),
	}
}

func (s *MemStore) GetConfig(ctx context.Context, groupID string) (*GuildConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[groupID]
	if !ok {
		return Default(), nil
	}
	return c.Clone(), nil
}

func (s *MemStore) Put(groupID string, c *GuildConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[groupID] = c.Clone()
}

// Wraps another Provider with a cache. Entries stay until they expire or are invalidated through Invalidate.
type CachedProvider struct {
	Store  Provider
	Cache  Cache
	Logger *slog.Logger
}

var _ Provider = (*CachedProvider)(nil)

func NewCachedProvider(store Provider, cache Cache, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{
		Store:  store,
		Cache:  cache,
		Logger: logger.With("component", "config-cache"),
	}
}

func (p *CachedProvider) GetConfig(ctx context.Context, groupID string) (*GuildConfig, error) {
	cached, err := p.Cache.Get(ctx, groupID)
	if err != nil {
		// a broken cache should not take moderation down; go to the store
		p.Logger.Warn("config cache read failed", "group", groupID, "err", err)
	} else if cached != nil {
		return cached, nil
	}

	c, err := p.Store.GetConfig(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: group %s: %w", ErrConfigUnavailable, groupID, err)
	}
	if err := p.Cache.Set(ctx, groupID, c); err != nil {
		p.Logger.Warn("config cache write failed", "group", groupID, "err", err)
	}
	return c, nil
}

// Drops any cached config for the group, so the next read goes to the store.
func (p *CachedProvider) Invalidate(ctx context.Context, groupID string) error {
	return p.Cache.Purge(ctx, groupID)
}
