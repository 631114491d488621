package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/exportd/internal/platform/logger"
)

// cachedStore wraps a Store and memoizes GetPublicURL in Redis, since
// computing a public/presigned URL can mean a signed-URL round trip to the
// object storage provider and the per-(bucket,key) result is safe to reuse
// until it's close to expiring.
type cachedStore struct {
	Store
	rdb   *redis.Client
	log   *logger.Logger
	ttl   time.Duration
	grace time.Duration
}

// NewCachedStore wraps inner with a Redis-backed cache for GetPublicURL.
// ttl is how long an entry is considered fresh; grace shaves time off the
// front of the ttl so a URL is never served right up to its own expiry.
func NewCachedStore(inner Store, rdb *redis.Client, log *logger.Logger, ttl, grace time.Duration) Store {
	return &cachedStore{
		Store: inner,
		rdb:   rdb,
		log:   log.With("component", "blob.cachedStore"),
		ttl:   ttl,
		grace: grace,
	}
}

func (c *cachedStore) cacheKey(category Category, key string) string {
	return fmt.Sprintf("exportd:blob:public_url:%s:%s", category, key)
}

func (c *cachedStore) GetPublicURL(ctx context.Context, category Category, key string) (string, error) {
	cacheKey := c.cacheKey(category, key)
	if cached, err := c.rdb.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
		return cached, nil
	} else if err != nil && err != redis.Nil {
		c.log.Warn("public url cache read failed, falling through", "error", err)
	}

	url, err := c.Store.GetPublicURL(ctx, category, key)
	if err != nil {
		return "", err
	}

	effectiveTTL := c.ttl - c.grace
	if effectiveTTL > 0 {
		if err := c.rdb.Set(ctx, cacheKey, url, effectiveTTL).Err(); err != nil {
			c.log.Warn("public url cache write failed", "error", err)
		}
	}
	return url, nil
}
