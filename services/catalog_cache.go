// services/catalog_cache.go - Catalogue cache in front of the achievement store
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	goredis "github.com/redis/go-redis/v9"

	"quizhub/achievements"
	"quizhub/logger"
)

// catalogBackend stores catalogue slices under short filter keys.
type catalogBackend interface {
	get(ctx context.Context, key string) ([]achievements.Definition, bool)
	set(ctx context.Context, key string, defs []achievements.Definition)
	purge(ctx context.Context)
}

// CachedCatalog serves ListAchievements from a cache and delegates everything else to the
// wrapped repository. Catalogue writes must call Invalidate.
type CachedCatalog struct {
	achievements.Repository
	backend catalogBackend
	log     *logger.Logger
}

// NewLRUCatalog caches in process. size bounds the number of filter variants kept.
func NewLRUCatalog(repo achievements.Repository, size int, ttl time.Duration, log *logger.Logger) (*CachedCatalog, error) {
	if size <= 0 {
		size = 16
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create catalogue cache: %w", err)
	}
	return &CachedCatalog{
		Repository: repo,
		backend:    &lruBackend{cache: cache, ttl: ttl, now: time.Now},
		log:        log.With("service", "CachedCatalog"),
	}, nil
}

// NewRedisCatalog shares the cache between instances through Redis.
func NewRedisCatalog(repo achievements.Repository, rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *CachedCatalog {
	l := log.With("service", "CachedCatalog")
	return &CachedCatalog{
		Repository: repo,
		backend:    &redisBackend{rdb: rdb, ttl: ttl, prefix: "quizhub:catalog:", log: l},
		log:        l,
	}
}

// NewRedisClient connects to addr and fails unless the server answers a ping.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (c *CachedCatalog) ListAchievements(ctx context.Context, filter achievements.AchievementFilter) ([]achievements.Definition, error) {
	key := filterKey(filter)
	if defs, ok := c.backend.get(ctx, key); ok {
		return defs, nil
	}
	defs, err := c.Repository.ListAchievements(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.backend.set(ctx, key, defs)
	return defs, nil
}

// Invalidate drops every cached variant.
func (c *CachedCatalog) Invalidate(ctx context.Context) {
	c.backend.purge(ctx)
	c.log.Debug("Catalogue cache invalidated")
}

func filterKey(f achievements.AchievementFilter) string {
	switch {
	case f.PremiumOnly == nil:
		return "all"
	case *f.PremiumOnly:
		return "premium"
	default:
		return "free"
	}
}

// ================== LRU ==================

type lruEntry struct {
	defs    []achievements.Definition
	expires time.Time
}

type lruBackend struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func (b *lruBackend) get(_ context.Context, key string) ([]achievements.Definition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(lruEntry)
	if b.ttl > 0 && !b.now().Before(entry.expires) {
		b.cache.Remove(key)
		return nil, false
	}
	return entry.defs, true
}

func (b *lruBackend) set(_ context.Context, key string, defs []achievements.Definition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Add(key, lruEntry{defs: defs, expires: b.now().Add(b.ttl)})
}

func (b *lruBackend) purge(_ context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Purge()
}

// ================== REDIS ==================

type redisBackend struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

var catalogKeys = []string{"all", "premium", "free"}

func (b *redisBackend) get(ctx context.Context, key string) ([]achievements.Definition, bool) {
	raw, err := b.rdb.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		b.log.Warn("Catalogue cache read failed", "key", key, "error", err)
		return nil, false
	}
	var defs []achievements.Definition
	if err := json.Unmarshal(raw, &defs); err != nil {
		b.log.Warn("Catalogue cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return defs, true
}

func (b *redisBackend) set(ctx context.Context, key string, defs []achievements.Definition) {
	raw, err := json.Marshal(defs)
	if err != nil {
		b.log.Warn("Catalogue cache encode failed", "key", key, "error", err)
		return
	}
	if err := b.rdb.Set(ctx, b.prefix+key, raw, b.ttl).Err(); err != nil {
		b.log.Warn("Catalogue cache write failed", "key", key, "error", err)
	}
}

func (b *redisBackend) purge(ctx context.Context) {
	keys := make([]string, 0, len(catalogKeys))
	for _, k := range catalogKeys {
		keys = append(keys, b.prefix+k)
	}
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		b.log.Warn("Catalogue cache invalidation failed", "error", err)
	}
}
