package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor   = 2 * time.Second
	pollEvery = 5 * time.Millisecond
)

type collector struct {
	mu   sync.Mutex
	docs []Document
	errs []error
}

func (c *collector) onChange(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) latest() Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.docs) == 0 {
		return nil
	}
	return c.docs[len(c.docs)-1]
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *collector) errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// exerciseStore runs the shared DocumentStore contract against an implementation.
func exerciseStore(t *testing.T, st DocumentStore) {
	ctx := context.Background()

	t.Run("read missing", func(t *testing.T) {
		_, err := st.ReadOnce(ctx, "rooms", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("write missing", func(t *testing.T) {
		err := st.WritePartial(ctx, "rooms", "missing", Fields{"status": "playing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partial writes touch only their fields", func(t *testing.T) {
		require.NoError(t, st.Create(ctx, "rooms", "R1", Document{
			"status":    "waiting",
			"startTime": nil,
			"players": map[string]any{
				"a": map[string]any{"score": 0, "status": "ready"},
				"b": map[string]any{"score": 0, "status": "ready"},
			},
		}))

		require.NoError(t, st.WritePartial(ctx, "rooms", "R1", Fields{"players.a.score": 30}))
		require.NoError(t, st.WritePartial(ctx, "rooms", "R1", Fields{"players.b.status": "crashed"}))
		require.NoError(t, st.WritePartial(ctx, "rooms", "R1", Fields{"status": "playing", "startTime": 1234}))

		doc, err := st.ReadOnce(ctx, "rooms", "R1")
		require.NoError(t, err)
		assert.Equal(t, Document{
			"status":    "playing",
			"startTime": float64(1234),
			"players": map[string]any{
				"a": map[string]any{"score": float64(30), "status": "ready"},
				"b": map[string]any{"score": float64(0), "status": "crashed"},
			},
		}, doc)
	})

	t.Run("map values replace the subtree", func(t *testing.T) {
		require.NoError(t, st.WritePartial(ctx, "rooms", "R1", Fields{
			"players.a": map[string]any{"status": "ready"},
		}))
		doc, err := st.ReadOnce(ctx, "rooms", "R1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"status": "ready"}, doc["players"].(map[string]any)["a"])
	})

	t.Run("create overwrites", func(t *testing.T) {
		require.NoError(t, st.Create(ctx, "rooms", "R1", Document{"status": "waiting"}))
		doc, err := st.ReadOnce(ctx, "rooms", "R1")
		require.NoError(t, err)
		assert.Equal(t, Document{"status": "waiting"}, doc)
	})

	t.Run("subscribe delivers current then latest", func(t *testing.T) {
		require.NoError(t, st.Create(ctx, "rooms", "R2", Document{"status": "waiting"}))
		c := &collector{}
		unsubscribe, err := st.Subscribe(ctx, "rooms", "R2", c.onChange, c.onError)
		require.NoError(t, err)
		defer unsubscribe()

		require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, pollEvery)

		for i := 1; i <= 5; i++ {
			require.NoError(t, st.WritePartial(ctx, "rooms", "R2", Fields{"round": i}))
		}
		require.Eventually(t, func() bool {
			doc := c.latest()
			return doc != nil && doc["round"] == float64(5)
		}, waitFor, pollEvery)
		assert.Empty(t, c.errors())
	})

	t.Run("no deliveries after unsubscribe", func(t *testing.T) {
		require.NoError(t, st.Create(ctx, "rooms", "R3", Document{"status": "waiting"}))
		c := &collector{}
		unsubscribe, err := st.Subscribe(ctx, "rooms", "R3", c.onChange, c.onError)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, pollEvery)

		unsubscribe()
		unsubscribe()
		seen := c.count()
		require.NoError(t, st.WritePartial(ctx, "rooms", "R3", Fields{"status": "playing"}))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, seen, c.count())
		assert.Empty(t, c.errors())
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreDisconnect(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "rooms", "R1", Document{"status": "waiting"}))

	c := &collector{}
	unsubscribe, err := st.Subscribe(ctx, "rooms", "R1", c.onChange, c.onError)
	require.NoError(t, err)
	defer unsubscribe()

	boom := errors.New("stream closed")
	st.Disconnect("rooms", "R1", boom)
	require.Eventually(t, func() bool { return len(c.errors()) == 1 }, waitFor, pollEvery)
	assert.ErrorIs(t, c.errors()[0], boom)

	seen := c.count()
	require.NoError(t, st.WritePartial(ctx, "rooms", "R1", Fields{"status": "playing"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, c.count())
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "rooms", "R1", Document{"players": map[string]any{}}))

	doc, err := st.ReadOnce(ctx, "rooms", "R1")
	require.NoError(t, err)
	doc["players"].(map[string]any)["x"] = "mutated"

	again, err := st.ReadOnce(ctx, "rooms", "R1")
	require.NoError(t, err)
	assert.Empty(t, again["players"])
}
