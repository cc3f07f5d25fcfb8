package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/store"
)

// Entity cache TTLs. Schedule turns over fastest because reservation counts
// change availability.
const (
	scheduleCacheTTL = 15 * time.Minute
	groupsCacheTTL   = time.Hour
	defaultCacheTTL  = time.Hour
)

// Cache is the read-through cache for CRM list results, keyed
// crm:cache:{entity}:{paramsKey}.
type Cache struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewCache returns a Cache on the given store.
func NewCache(st *store.Store, logger zerolog.Logger) *Cache {
	return &Cache{store: st, logger: logger}
}

func cacheKey(entity, paramsKey string) string {
	return fmt.Sprintf("crm:cache:%s:%s", entity, paramsKey)
}

func cacheTTL(entity string) time.Duration {
	switch entity {
	case "schedule":
		return scheduleCacheTTL
	case "group", "groups", "teacher", "teachers":
		return groupsCacheTTL
	default:
		return defaultCacheTTL
	}
}

// Get loads a cached result into out. Returns false on a miss; cache read
// failures count as misses so a flaky cache never fails a read path.
func (c *Cache) Get(ctx context.Context, entity, paramsKey string, out any) bool {
	err := c.store.GetJSON(ctx, cacheKey(entity, paramsKey), out)
	if err == nil {
		return true
	}
	if !errors.Is(err, store.ErrNotFound) {
		c.logger.Warn().Err(err).Str("entity", entity).Msg("crm cache read failed")
	}
	return false
}

// Set stores a result with the entity's TTL. Failures are logged and
// swallowed; the caller already has the fresh data.
func (c *Cache) Set(ctx context.Context, entity, paramsKey string, value any) {
	if err := c.store.SetJSON(ctx, cacheKey(entity, paramsKey), value, cacheTTL(entity)); err != nil {
		c.logger.Warn().Err(err).Str("entity", entity).Msg("crm cache write failed")
	}
}

// InvalidateEntity removes every cached result for an entity.
func (c *Cache) InvalidateEntity(ctx context.Context, entity string) {
	n, err := c.store.ScanDelete(ctx, cacheKey(entity, "*"))
	if err != nil {
		c.logger.Warn().Err(err).Str("entity", entity).Msg("crm cache invalidation failed")
		return
	}
	c.logger.Debug().Str("entity", entity).Int64("deleted", n).Msg("crm cache invalidated")
}
