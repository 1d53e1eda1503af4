package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPath(t *testing.T) {
	doc := Document{"players": map[string]any{"a": "oops"}}

	require.NoError(t, setPath(doc, "players.a.score", 3))
	require.NoError(t, setPath(doc, "status", "playing"))

	assert.Equal(t, Document{
		"players": map[string]any{"a": map[string]any{"score": 3}},
		"status":  "playing",
	}, doc)

	assert.Error(t, setPath(doc, "players..score", 1))
	assert.Error(t, setPath(doc, "", 1))
}

func TestFlattenUnflatten(t *testing.T) {
	doc, err := normalizeDocument(Document{
		"status":    "waiting",
		"startTime": nil,
		"players": map[string]any{
			"a": map[string]any{"score": 10, "isHost": true},
		},
		"tags": map[string]any{},
	})
	require.NoError(t, err)

	leaves := map[string]string{}
	for k, v := range doc {
		require.NoError(t, flatten(k, v, leaves))
	}
	assert.Equal(t, map[string]string{
		"status":           `"waiting"`,
		"startTime":        "null",
		"players.a.score":  "10",
		"players.a.isHost": "true",
		"tags":             "{}",
	}, leaves)

	back, err := unflatten(leaves)
	require.NoError(t, err)
	assert.Equal(t, doc, back)
}

func TestFlattenRejectsDottedKeys(t *testing.T) {
	err := flatten("players", map[string]any{"a.b": 1}, map[string]string{})
	assert.Error(t, err)
}

func TestCloneDocumentIsDeep(t *testing.T) {
	doc := Document{"players": map[string]any{"a": map[string]any{"score": 1.0}}}
	clone := cloneDocument(doc)
	clone["players"].(map[string]any)["a"].(map[string]any)["score"] = 2.0

	assert.Equal(t, 1.0, doc["players"].(map[string]any)["a"].(map[string]any)["score"])
}
