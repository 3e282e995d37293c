// Package fetch executes resolved queries end to end: cache lookup,
// catalog availability checks, the rate-limited provider call with
// retries, the fallback chain with relevance gating, and value
// validation. It owns the two-tier result cache.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/telemetry"
	"github.com/econoflow/econoflow/pkg/series"
)

const defaultMemoryEntries = 512

// Cache is the two-tier result cache: Redis first, then an in-process
// LRU. Both tiers store the serialized series list under the same key;
// writes go to both, reads stop at the first hit. Redis being down
// degrades silently to memory-only.
type Cache struct {
	redis    *redis.Client
	memory   *lru.Cache[string, memEntry]
	ttls     map[provider.Name]time.Duration
	def      time.Duration
	metrics  *telemetry.Metrics
	disabled bool
}

type memEntry struct {
	payload []byte
	expires time.Time
}

// NewCache builds the cache from configuration. ttls carries the
// per-provider expiry; providers absent from the map use the default.
// metrics may be nil.
func NewCache(cfg config.CacheConfig, ttls map[provider.Name]time.Duration, metrics *telemetry.Metrics) (*Cache, error) {
	if cfg.Disabled {
		return &Cache{disabled: true}, nil
	}

	entries := cfg.MemoryEntries
	if entries <= 0 {
		entries = defaultMemoryEntries
	}
	memory, err := lru.New[string, memEntry](entries)
	if err != nil {
		return nil, err
	}

	def := time.Duration(cfg.DefaultTTL) * time.Second
	if def <= 0 {
		def = 6 * time.Hour
	}

	c := &Cache{
		memory:  memory,
		ttls:    ttls,
		def:     def,
		metrics: metrics,
	}
	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return c, nil
}

// TTLsFromConfig maps every provider section's cache_ttl into durations.
func TTLsFromConfig(pc config.ProvidersConfig) map[provider.Name]time.Duration {
	out := make(map[provider.Name]time.Duration, len(provider.All))
	for _, name := range provider.All {
		if section, ok := pc.ByName(string(name)); ok && section.CacheTTL > 0 {
			out[name] = time.Duration(section.CacheTTL) * time.Second
		}
	}
	return out
}

// TTLFor returns the expiry for one provider's results.
func (c *Cache) TTLFor(p provider.Name) time.Duration {
	if d, ok := c.ttls[p]; ok && d > 0 {
		return d
	}
	return c.def
}

// Key derives the cache key for a request: the provider tag plus a
// digest of the normalized parameters. The display-only indicator name
// is excluded so differently phrased queries that resolve to the same
// parameters share an entry.
func Key(req provider.Request) string {
	norm := req
	norm.IndicatorName = ""

	// Request is a flat struct, so field order in the encoding is fixed
	// and the digest is deterministic.
	payload, err := json.Marshal(norm)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", norm))
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%x", strings.ToLower(string(req.Provider)), sum)
}

// Get looks a request up in both tiers. A Redis hit backfills nothing;
// a memory hit after a Redis miss is served as-is. Expired memory
// entries count as misses.
func (c *Cache) Get(ctx context.Context, req provider.Request) ([]*series.Series, bool) {
	if c.disabled {
		return nil, false
	}
	key := Key(req)

	if c.redis != nil {
		payload, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var out []*series.Series
			if jsonErr := json.Unmarshal(payload, &out); jsonErr == nil {
				c.hit(telemetry.TierRedis)
				return out, true
			}
			log.Debug().Str("key", key).Msg("cache: undecodable redis entry dropped")
			c.redis.Del(ctx, key)
		case err == redis.Nil:
			c.miss(telemetry.TierRedis)
		default:
			// Redis being unreachable is a degradation, not a failure.
			log.Debug().Err(err).Msg("cache: redis get failed")
		}
	}

	if entry, ok := c.memory.Get(key); ok {
		if time.Now().After(entry.expires) {
			c.memory.Remove(key)
			c.miss(telemetry.TierMemory)
			return nil, false
		}
		var out []*series.Series
		if err := json.Unmarshal(entry.payload, &out); err == nil {
			c.hit(telemetry.TierMemory)
			return out, true
		}
		c.memory.Remove(key)
	}
	c.miss(telemetry.TierMemory)
	return nil, false
}

// Put stores a result in both tiers with the provider's TTL. Cache
// writes are best-effort; last writer wins per key.
func (c *Cache) Put(ctx context.Context, req provider.Request, result []*series.Series) {
	if c.disabled || len(result) == 0 {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Msg("cache: encode failed, result not cached")
		return
	}
	key := Key(req)
	ttl := c.TTLFor(req.Provider)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, payload, ttl).Err(); err != nil {
			log.Debug().Err(err).Msg("cache: redis set failed")
		}
	}
	c.memory.Add(key, memEntry{payload: payload, expires: time.Now().Add(ttl)})
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (c *Cache) hit(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tier)
	}
}

func (c *Cache) miss(tier string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(tier)
	}
}
