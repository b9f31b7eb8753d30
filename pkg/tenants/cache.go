package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "tenanttags:principal:"

type cachedDirectory struct {
	inner Directory
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.SugaredLogger
}

// NewCachedDirectory fronts inner with a redis read-through cache. Cache failures are
// logged and fall back to inner; they never fail a lookup on their own. A nil client
// returns inner unchanged.
func NewCachedDirectory(inner Directory, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Directory {
	if rdb == nil || ttl <= 0 {
		return inner
	}
	return &cachedDirectory{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *cachedDirectory) TenantsForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	key := cacheKeyPrefix + principalID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ts []string
		if jerr := json.Unmarshal(raw, &ts); jerr == nil && len(ts) > 0 {
			return ts, nil
		}
		c.log.Warnw("discarding corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		c.log.Warnw("lookup cache read failed", "err", err)
	}

	ts, err := c.inner.TenantsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(ts); jerr == nil {
		if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			c.log.Warnw("lookup cache write failed", "err", serr)
		}
	}
	return ts, nil
}
