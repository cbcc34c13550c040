package web

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/maremma/maremma/internal/store"
)

// sessionCache fronts store.Store's session rows with a faster lookup
// layer: an in-memory LRU always, and a shared Redis instance as well
// when sessionCacheRedisAddr is configured. The database row remains
// authoritative — SessionCleanTask reaps expired sessions there
// regardless of what either cache layer holds.
type sessionCache struct {
	store store.Store
	lru   *lru.Cache[uuid.UUID, store.Session]
	redis *redis.Client
}

// newSessionCache builds a cache fronting s. redisAddr may be empty,
// in which case only the in-memory LRU layer is used.
func newSessionCache(s store.Store, redisAddr string) *sessionCache {
	cache, _ := lru.New[uuid.UUID, store.Session](1024)
	sc := &sessionCache{store: s, lru: cache}
	if redisAddr != "" {
		sc.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return sc
}

// Get reads through the LRU, then Redis, then the database, populating
// the faster layers on a miss.
func (c *sessionCache) Get(ctx context.Context, id uuid.UUID) (store.Session, error) {
	if s, ok := c.lru.Get(id); ok {
		return s, nil
	}

	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, sessionRedisKey(id)).Bytes(); err == nil {
			s := store.Session{ID: id, Data: raw}
			c.lru.Add(id, s)
			return s, nil
		}
	}

	s, err := c.store.GetSession(ctx, id)
	if err != nil {
		return store.Session{}, err
	}
	c.populate(ctx, s)
	return s, nil
}

// Put writes s to the database, then both cache layers (write-through).
func (c *sessionCache) Put(ctx context.Context, s store.Session) error {
	if err := c.store.CreateSession(ctx, s); err != nil {
		return err
	}
	c.populate(ctx, s)
	return nil
}

func (c *sessionCache) populate(ctx context.Context, s store.Session) {
	c.lru.Add(s.ID, s)
	if c.redis != nil {
		ttl := time.Until(s.ExpiresAt)
		if ttl <= 0 {
			return
		}
		c.redis.Set(ctx, sessionRedisKey(s.ID), s.Data, ttl)
	}
}

// Delete evicts id from both cache layers and the database
// synchronously, so a logged-out session is never served stale from
// either layer while waiting for background eviction.
func (c *sessionCache) Delete(ctx context.Context, id uuid.UUID) error {
	c.lru.Remove(id)
	if c.redis != nil {
		c.redis.Del(ctx, sessionRedisKey(id))
	}
	return c.store.DeleteSession(ctx, id)
}

func sessionRedisKey(id uuid.UUID) string {
	return "maremma:session:" + id.String()
}
