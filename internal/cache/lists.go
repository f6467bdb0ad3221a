package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/logger"
)

// LoadFunc reads a list from the store.
type LoadFunc func(ctx context.Context, list models.ListType) ([]models.Level, error)

// ListCache is a read-through cache of the ordered lists. It holds one
// snapshot per list and is dropped wholesale on every mutation.
type ListCache struct {
	backend Backend
	ttl     time.Duration
	log     *logger.Logger
}

// NewListCache creates a list cache over backend.
func NewListCache(backend Backend, ttl time.Duration, log *logger.Logger) *ListCache {
	return &ListCache{backend: backend, ttl: ttl, log: log}
}

// Key returns the backend key of a list snapshot.
func Key(list models.ListType) string {
	return "levels:" + string(list)
}

// Get returns the list snapshot, loading and storing it on a miss.
// Backend failures fall back to load and are never returned.
func (c *ListCache) Get(ctx context.Context, list models.ListType, load LoadFunc) ([]models.Level, error) {
	key := Key(list)

	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheError(string(list))
		c.log.Warn().Err(err).Str("list", string(list)).Msg("Cache read failed, reading store")
		return load(ctx, list)
	}
	if ok {
		var levels []models.Level
		if err := json.Unmarshal(raw, &levels); err == nil {
			metrics.RecordCacheHit(string(list))
			return levels, nil
		}
		c.log.Warn().Str("list", string(list)).Msg("Discarding unreadable cache snapshot")
	}

	metrics.RecordCacheMiss(string(list))
	levels, err := load(ctx, list)
	if err != nil {
		return nil, err
	}

	raw, err = json.Marshal(levels)
	if err != nil {
		return levels, nil
	}
	if err := c.backend.Set(ctx, key, raw, c.ttl); err != nil {
		metrics.RecordCacheError(string(list))
		c.log.Warn().Err(err).Str("list", string(list)).Msg("Failed to store list snapshot")
	}
	return levels, nil
}

// Invalidate drops every list snapshot.
func (c *ListCache) Invalidate(ctx context.Context) {
	keys := make([]string, 0, len(models.Lists))
	for _, l := range models.Lists {
		keys = append(keys, Key(l))
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.log.Error().Err(err).Msg("Failed to invalidate list cache")
	}
}
