package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tidebook/booking-engine/internal/observability/metrics"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// Cache is a read-through cache for computed availability, keyed by
// (provider, date). A nil *Cache or an unreachable backend degrades to
// direct computation; cache trouble never fails a request.
type Cache struct {
	redis   *redis.Client
	ttl     time.Duration
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

type cachedDay struct {
	Query SlotQuery `json:"query"`
	Slots []Slot    `json:"slots"`
}

// NewCache creates an availability cache. TTL is a backstop only; mutations
// invalidate keys eagerly.
func NewCache(client *redis.Client, ttl time.Duration, logger *logging.Logger, m *metrics.BookingMetrics) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{redis: client, ttl: ttl, logger: logger, metrics: m}
}

func (c *Cache) key(providerID uuid.UUID, date string) string {
	return fmt.Sprintf("availability:%s:%s", providerID, date)
}

// Get returns the cached slots for a key, or ok=false on miss, query
// mismatch, or any backend error. The whole query shapes the computed slots
// (duration, granularity, buffers, timezone), so an entry computed for a
// different query never serves.
func (c *Cache) Get(ctx context.Context, providerID uuid.UUID, date string, q SlotQuery) ([]Slot, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.key(providerID, date)).Bytes()
	if err == redis.Nil {
		c.metrics.ObserveCache("miss")
		return nil, false
	}
	if err != nil {
		c.metrics.ObserveCache("error")
		c.logger.Warn("availability cache: get failed", "error", err, "provider_id", providerID, "date", date)
		return nil, false
	}
	var day cachedDay
	if err := json.Unmarshal(data, &day); err != nil {
		c.metrics.ObserveCache("error")
		c.logger.Warn("availability cache: corrupt entry", "error", err, "provider_id", providerID, "date", date)
		return nil, false
	}
	if day.Query != q {
		c.metrics.ObserveCache("miss")
		return nil, false
	}
	c.metrics.ObserveCache("hit")
	return day.Slots, true
}

// Set stores the computed slots for a key alongside the query that produced
// them.
func (c *Cache) Set(ctx context.Context, providerID uuid.UUID, date string, q SlotQuery, slots []Slot) {
	if c == nil || c.redis == nil {
		return
	}
	data, err := json.Marshal(cachedDay{Query: q, Slots: slots})
	if err != nil {
		c.logger.Warn("availability cache: marshal failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, c.key(providerID, date), data, c.ttl).Err(); err != nil {
		c.metrics.ObserveCache("error")
		c.logger.Warn("availability cache: set failed", "error", err, "provider_id", providerID, "date", date)
	}
}

// Invalidate drops the entry for a (provider, date) key. Called on every
// occupancy mutation for that key.
func (c *Cache) Invalidate(ctx context.Context, providerID uuid.UUID, date string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(providerID, date)).Err(); err != nil {
		c.metrics.ObserveCache("error")
		c.logger.Warn("availability cache: invalidate failed", "error", err, "provider_id", providerID, "date", date)
	}
}
