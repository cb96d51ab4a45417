package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehs-platform/services/noncompliance/internal/model"
)

// CacheConfig holds cache configuration.
type CacheConfig struct {
	CaseTTL time.Duration
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{CaseTTL: 5 * time.Minute}
}

// CachedStore wraps a CaseStore with a redis read-through cache for
// get-by-id. Every write goes to the underlying store first and then
// invalidates the cached aggregate, so the version guard always runs
// against authoritative state.
type CachedStore struct {
	store  CaseStore
	client redis.UniversalClient
	config CacheConfig
}

// NewCachedStore creates a new cached store.
func NewCachedStore(store CaseStore, client redis.UniversalClient, config CacheConfig) *CachedStore {
	return &CachedStore{
		store:  store,
		client: client,
		config: config,
	}
}

func (s *CachedStore) key(id string) string {
	return "nc:case:" + id
}

// Create creates the case and warms the cache.
func (s *CachedStore) Create(ctx context.Context, c *model.Case) error {
	if err := s.store.Create(ctx, c); err != nil {
		return err
	}
	s.set(ctx, c)
	return nil
}

// Get retrieves a case, checking the cache first.
func (s *CachedStore) Get(ctx context.Context, id string) (*model.Case, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == nil {
		var c model.Case
		if err := json.Unmarshal(data, &c); err == nil {
			return &c, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		s.client.Del(ctx, s.key(id))
	}

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.set(ctx, c)
	return c, nil
}

// Update commits through the underlying store and refreshes the cache on
// success, invalidating on any failure path.
func (s *CachedStore) Update(ctx context.Context, c *model.Case) error {
	if err := s.store.Update(ctx, c); err != nil {
		s.client.Del(ctx, s.key(c.ID))
		return err
	}
	s.set(ctx, c)
	return nil
}

// Delete removes the case and its cache entry.
func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.client.Del(ctx, s.key(id))
	return nil
}

// List is not cached; filters vary too much to be worth the invalidation.
func (s *CachedStore) List(ctx context.Context, filter *model.CaseFilter) (*model.CaseListResult, error) {
	return s.store.List(ctx, filter)
}

func (s *CachedStore) set(ctx context.Context, c *model.Case) {
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	s.client.Set(ctx, s.key(c.ID), data, s.config.CaseTTL)
}
