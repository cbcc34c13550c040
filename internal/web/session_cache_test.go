package web

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/memory"
)

func TestSessionCacheLRUOnlyReadThrough(t *testing.T) {
	s := memory.New()
	cache := newSessionCache(s, "")
	ctx := context.Background()

	session := store.Session{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Put(ctx, session))

	got, err := cache.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
}

func TestSessionCacheDeleteEvictsBothLayers(t *testing.T) {
	s := memory.New()
	cache := newSessionCache(s, "")
	ctx := context.Background()

	session := store.Session{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Put(ctx, session))
	require.NoError(t, cache.Delete(ctx, session.ID))

	_, ok := cache.lru.Get(session.ID)
	assert.False(t, ok, "session must be evicted from the LRU on delete")

	_, err := s.GetSession(ctx, session.ID)
	assert.Error(t, err, "session must be gone from the database too")
}

func TestSessionCacheRedisReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := memory.New()
	cache := newSessionCache(s, mr.Addr())
	ctx := context.Background()

	session := store.Session{ID: uuid.New(), UserID: uuid.New(), Data: []byte("payload"), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Put(ctx, session))

	// Clear the LRU so the Redis layer must serve the next Get.
	cache.lru.Remove(session.ID)

	got, err := cache.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Data, got.Data)
}

func TestSessionCacheRedisDeleteEvictsRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := memory.New()
	cache := newSessionCache(s, mr.Addr())
	ctx := context.Background()

	session := store.Session{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Put(ctx, session))
	require.NoError(t, cache.Delete(ctx, session.ID))

	assert.False(t, mr.Exists(sessionRedisKey(session.ID)))
}
