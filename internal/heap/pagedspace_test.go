package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	return Config{
		RootSlots:     64,
		SemispaceSize: PageObjectAreaSize,
		OldPages:      2,
		CodePages:     1,
		MapPages:      1,
	}
}

func TestPagedSpaceAllocateAdvancesAcrossPages(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	perPage := PageObjectAreaSize / VariableHeaderSize
	var last Address
	for i := 0; i < perPage+1; i++ {
		addr, ok := h.Old.Allocate(VariableHeaderSize)
		require.True(t, ok)
		last = addr
	}
	assert.Equal(t, h.Old.Pages()[1].Start(), last, "the (perPage+1)th allocation must land on page 1")
}

func TestPagedSpaceAllocateFailsWhenExhausted(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	total := 2 * PageObjectAreaSize
	for off := 0; off < total; off += VariableHeaderSize {
		_, ok := h.Old.Allocate(VariableHeaderSize)
		require.True(t, ok)
	}
	_, ok := h.Old.Allocate(VariableHeaderSize)
	assert.False(t, ok, "old space has no pages left")
}

func TestPagedSpaceFreeAndTakeFreeRoundTrip(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	addr, ok := h.Old.Allocate(64)
	require.True(t, ok)
	h.Old.Free(addr, 64)

	got, ok := h.Old.TakeFree(32)
	require.True(t, ok)
	assert.Equal(t, addr, got, "a larger block splits from its front")

	rest, ok := h.Old.TakeFree(32)
	require.True(t, ok)
	assert.Equal(t, addr.Add(32), rest)

	_, ok = h.Old.TakeFree(1)
	assert.False(t, ok, "the free list is now empty")
}

func TestPagedSpaceMapSpaceFreeSplitsIntoMapSizedChunks(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	addr, ok := h.MapSpace.Allocate(3 * MapObjectSize)
	require.True(t, ok)
	h.MapSpace.Free(addr, 3*MapObjectSize)

	for i := 0; i < 3; i++ {
		got, ok := h.MapSpace.TakeFree(MapObjectSize)
		require.True(t, ok)
		assert.Equal(t, addr.Add(i*MapObjectSize), got)
	}
}

// ResolveForwardedAddress's wrap clause: an offset that would land past a
// page's relocationTop carries the remainder into the next page.
func TestResolveForwardedAddressWrapsAcrossPages(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	page0 := h.Old.Pages()[0]
	page1 := h.Old.Pages()[1]
	page0.SetMCFirstForwarded(page0.Start())
	// Simulate forwarding-address encoding having committed page0's
	// destination high-water mark 16 bytes short of its end.
	page0.relocationTop = page0.End().Add(-16)
	page1.relocationTop = page1.End()

	within := h.Old.ResolveForwardedAddress(page0.Start(), PageObjectAreaSize-32)
	assert.Equal(t, page0.Start().Add(PageObjectAreaSize-32), within, "an offset inside relocationTop stays on page0")

	wrapped := h.Old.ResolveForwardedAddress(page0.Start(), PageObjectAreaSize-8)
	assert.Equal(t, page1.Start().Add(8), wrapped, "an offset past relocationTop wraps into page1 with the remainder")
}

func TestAllocatedLimitReflectsBumpCursor(t *testing.T) {
	h, err := New(smallConfig())
	require.NoError(t, err)
	defer h.Close()

	page0 := h.Old.Pages()[0]
	page1 := h.Old.Pages()[1]
	assert.Equal(t, page0.Start(), h.Old.AllocatedLimit(page0))
	assert.Equal(t, page1.Start(), h.Old.AllocatedLimit(page1), "an unreached page reports its own start")

	addr, ok := h.Old.Allocate(64)
	require.True(t, ok)
	assert.Equal(t, addr.Add(64), h.Old.AllocatedLimit(page0))
}
