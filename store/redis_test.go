package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStore(t *testing.T) {
	st, _ := newTestRedis(t)
	exerciseStore(t, st)
}

func TestRedisStoreLayout(t *testing.T) {
	ctx := context.Background()
	st, mr := newTestRedis(t)

	require.NoError(t, st.Create(ctx, "rooms", "R1", Document{
		"status":  "waiting",
		"players": map[string]any{"a": map[string]any{"score": 0}},
	}))

	assert.Equal(t, `"waiting"`, mr.HGet("rooms:R1", "status"))
	assert.Equal(t, "0", mr.HGet("rooms:R1", "players.a.score"))
	assert.Equal(t, time.Hour, mr.TTL("rooms:R1"))

	// replacing a subtree drops its stale leaves
	require.NoError(t, st.WritePartial(ctx, "rooms", "R1", Fields{"players.a": nil}))
	assert.Empty(t, mr.HGet("rooms:R1", "players.a.score"))
	assert.Equal(t, "null", mr.HGet("rooms:R1", "players.a"))
}

func TestRedisStoreEmptyDocumentExists(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestRedis(t)

	require.NoError(t, st.Create(ctx, "rooms", "EMPTY1", Document{}))
	doc, err := st.ReadOnce(ctx, "rooms", "EMPTY1")
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestRedisStoreExpiredDocument(t *testing.T) {
	ctx := context.Background()
	st, mr := newTestRedis(t)

	require.NoError(t, st.Create(ctx, "rooms", "OLD111", Document{"status": "waiting"}))
	mr.FastForward(2 * time.Hour)

	_, err := st.ReadOnce(ctx, "rooms", "OLD111")
	assert.ErrorIs(t, err, ErrNotFound)
}
