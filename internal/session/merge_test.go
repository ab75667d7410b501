package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMerge_RecursiveObjects(t *testing.T) {
	dst := map[string]any{
		"player": map[string]any{"x": 1, "y": 2},
		"score":  100,
	}
	src := map[string]any{
		"player": map[string]any{"y": 5, "z": 9},
	}

	out := DeepMerge(dst, src)

	player := out["player"].(map[string]any)
	assert.Equal(t, 1, player["x"])
	assert.Equal(t, 5, player["y"]) // src overwrites
	assert.Equal(t, 9, player["z"])
	assert.Equal(t, 100, out["score"])
}

func TestDeepMerge_ScalarsAndArraysOverwriteWholesale(t *testing.T) {
	dst := map[string]any{
		"items": []any{"a", "b"},
		"level": 3,
	}
	src := map[string]any{
		"items": []any{"c"},
		"level": map[string]any{"current": 4},
	}

	out := DeepMerge(dst, src)

	// Arrays are not merged element-wise
	assert.Equal(t, []any{"c"}, out["items"])
	// A scalar/object type mismatch overwrites too
	assert.Equal(t, map[string]any{"current": 4}, out["level"])
}

func TestDeepMerge_DoesNotMutateInputs(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"b": 1}}
	src := map[string]any{"a": map[string]any{"c": 2}}

	_ = DeepMerge(dst, src)

	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}}, dst)
	assert.Equal(t, map[string]any{"a": map[string]any{"c": 2}}, src)
}

func TestDeepMerge_NilInputs(t *testing.T) {
	out := DeepMerge(nil, map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, out)

	out = DeepMerge(map[string]any{"b": 2}, nil)
	assert.Equal(t, map[string]any{"b": 2}, out)

	out = DeepMerge(nil, nil)
	assert.Empty(t, out)
}

func TestPatchAt(t *testing.T) {
	changes := map[string]any{"hp": 10}

	assert.Equal(t, changes, PatchAt("", changes))
	assert.Equal(t, map[string]any{"player": changes}, PatchAt("player", changes))
	assert.Equal(t,
		map[string]any{"world": map[string]any{"player": changes}},
		PatchAt("world.player", changes),
	)
}

func TestDeleteAt(t *testing.T) {
	state := map[string]any{
		"player": map[string]any{"hp": 10, "mp": 5},
		"score":  100,
	}

	out := DeleteAt(state, "player.hp")
	player := out["player"].(map[string]any)
	assert.NotContains(t, player, "hp")
	assert.Equal(t, 5, player["mp"])

	// Original untouched
	assert.Contains(t, state["player"].(map[string]any), "hp")

	// Top-level delete
	out = DeleteAt(state, "score")
	assert.NotContains(t, out, "score")

	// Missing intermediate object is a no-op
	out = DeleteAt(state, "missing.deep.path")
	assert.Equal(t, 100, out["score"])
}
