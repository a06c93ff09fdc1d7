package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

const keyPrefix = "profile:"

// Source is the backing profile store the cache reads through to.
type Source interface {
	FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error)
}

// ProfileCache is a read-through cache in front of a profile Source.
// Hits come from a single MGET; misses go to the source in one batch and are
// written back with one pipeline. Redis errors degrade to the source.
type ProfileCache struct {
	source Source
	rdb    *redis.Client
	ttl    time.Duration

	hits       atomic.Int64
	misses     atomic.Int64
	sourceLoad atomic.Int64
}

func NewProfileCache(source Source, rdb *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProfileCache{source: source, rdb: rdb, ttl: ttl}
}

func (c *ProfileCache) FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	if vals, err := c.rdb.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var p model.Profile
			if uErr := json.Unmarshal([]byte(str), &p); uErr == nil {
				out[ids[i]] = p
			}
		}
	} else {
		logger.Warn("profile cache read failed", zap.Error(err))
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	c.hits.Add(int64(len(ids) - len(missing)))
	c.misses.Add(int64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	c.sourceLoad.Add(1)
	loaded, err := c.source.FetchProfiles(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for id, p := range loaded {
		out[id] = p
		if payload, mErr := json.Marshal(p); mErr == nil {
			pipe.Set(ctx, keyPrefix+id, payload, c.ttl)
		}
	}
	if len(loaded) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("profile cache write-back failed", zap.Int("profiles", len(loaded)), zap.Error(err))
		}
	}
	return out, nil
}

// Invalidate drops cached profiles, e.g. after a profile edit.
func (c *ProfileCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Counters reports cache hits/misses and how many batches reached the source.
func (c *ProfileCache) Counters() Counters {
	return Counters{Hits: c.hits.Load(), Misses: c.misses.Load(), SourceLoads: c.sourceLoad.Load()}
}

// ResetCounters clears recorded counters.
func (c *ProfileCache) ResetCounters() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sourceLoad.Store(0)
}

type Counters struct {
	Hits        int64
	Misses      int64
	SourceLoads int64
}
