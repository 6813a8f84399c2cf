package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpaceAllocateStaysWithinActiveSemispace(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	addr, ok := h.New.Allocate(HeapNumberSize)
	require.True(t, ok)
	assert.True(t, h.New.Contains(addr))
	assert.False(t, h.New.ContainsInFrom(addr), "a fresh allocation lands in `to`, not `from`")
}

func TestNewSpaceAllocateFailsPastSemispaceCapacity(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	for off := 0; off+HeapNumberSize <= PageObjectAreaSize; off += HeapNumberSize {
		_, ok := h.New.Allocate(HeapNumberSize)
		require.True(t, ok)
	}
	_, ok := h.New.Allocate(HeapNumberSize)
	assert.False(t, ok)
}

func TestNewSpaceFlipSwapsSemispacesAndResetsCursor(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	before := h.New.ToLow()
	_, ok := h.New.Allocate(HeapNumberSize)
	require.True(t, ok)

	h.New.Flip()

	assert.Equal(t, h.New.FromLow(), before, "the old `to` becomes the new `from`")
	assert.Equal(t, h.New.ToLow(), h.New.Top(), "the cursor resets to the new `to`'s bottom")
}

func TestNewSpaceMirrorRoundTrip(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	h.New.PrepareForMarkCompact()
	dest, ok := h.New.MCAllocateRaw(HeapNumberSize)
	require.True(t, ok)

	h.New.WriteMirror(40, dest)
	assert.Equal(t, dest, h.New.ReadMirror(40))
}
