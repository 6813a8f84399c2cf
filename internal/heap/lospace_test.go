package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLargeObjectSpaceFreeUnmarkedObjects(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	mapAddr, ok := h.MapSpace.Allocate(MapObjectSize)
	require.True(t, ok)
	h.SetMap(mapAddr, h.MetaMap())

	live, ok := h.LO.Allocate(256)
	require.True(t, ok)
	h.SetMap(live, mapAddr)
	h.SetMapWordAt(live, h.MapWordAt(live).SetMark())

	dead, ok := h.LO.Allocate(128)
	require.True(t, ok)
	h.SetMap(dead, mapAddr)

	freed, bytes := h.LO.FreeUnmarkedObjects()
	assert.Equal(t, 1, freed)
	assert.Equal(t, 128, bytes)

	assert.False(t, h.LO.Contains(dead))
	assert.True(t, h.LO.Contains(live))
	assert.False(t, h.MapWordAt(live).IsMarked(), "a survivor's mark bit is cleared")
}

func TestLargeObjectSpaceObjectsAreNeverAdjacentlyMisread(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	a, ok := h.LO.Allocate(64)
	require.True(t, ok)
	b, ok := h.LO.Allocate(64)
	require.True(t, ok)

	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, b.Sub(a), 64+WordSize, "a gap word separates consecutive large objects")
}
