package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomDocumentRoundTrip(t *testing.T) {
	start := int64(1_700_000_000_123)
	rec := RoomRecord{
		ID:        "ABC234",
		CreatedAt: 1_700_000_000_000,
		Status:    RoomPlaying,
		StartTime: &start,
		Players: map[string]PlayerEntry{
			"a": {UID: "a", DisplayName: "Ada", Score: 40, IsHost: true, Status: PlayerPlaying},
		},
	}

	doc, err := rec.ToDocument()
	require.NoError(t, err)
	assert.Equal(t, "playing", doc["status"])

	back, err := RoomFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestRoomFromSparseDocument(t *testing.T) {
	rec, err := RoomFromDocument(map[string]any{"status": "waiting", "startTime": nil})
	require.NoError(t, err)
	assert.Nil(t, rec.StartTime)
	assert.NotNil(t, rec.Players)
	assert.True(t, rec.StartedAt().IsZero())
}

func TestRoomQueries(t *testing.T) {
	rec := RoomRecord{Players: map[string]PlayerEntry{
		"a": {UID: "a", DisplayName: "Ada", Score: 10, IsHost: true, Status: PlayerCrashed},
		"b": {UID: "b", DisplayName: "Bob", Score: 30, Status: PlayerPlaying},
		"c": {UID: "c", DisplayName: "Ada", Score: 10, Status: PlayerFinished},
	}}

	host, ok := rec.Host()
	require.True(t, ok)
	assert.Equal(t, "a", host.UID)
	assert.Equal(t, 1, rec.ActiveCount())
	assert.True(t, rec.IsFull(3))
	assert.False(t, rec.IsFull(4))

	var order []string
	for _, p := range rec.Standings() {
		order = append(order, p.UID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, order)

	assert.True(t, PlayerCrashed.Done())
	assert.True(t, PlayerFinished.Done())
	assert.False(t, PlayerPlaying.Done())
}
