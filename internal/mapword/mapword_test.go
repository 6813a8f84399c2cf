package mapword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarkedRoundTrip(t *testing.T) {
	w := EncodeUnmarked(0x1000)
	assert.Equal(t, Unmarked, w.Kind())
	assert.Equal(t, uint64(0x1000), w.Pointer())
	assert.False(t, w.IsMarked())
	assert.False(t, w.IsOverflowed())
}

func TestMarkSetClear(t *testing.T) {
	w := EncodeUnmarked(0x2000)
	marked := w.SetMark()
	require.Equal(t, Marked, marked.Kind())
	assert.True(t, marked.IsMarked())
	assert.Equal(t, uint64(0x2000), marked.Pointer())

	overflowed := marked.SetOverflow()
	require.Equal(t, MarkedOverflowed, overflowed.Kind())
	assert.True(t, overflowed.IsOverflowed())
	assert.Equal(t, uint64(0x2000), overflowed.Pointer())

	cleared := overflowed.ClearOverflow()
	assert.Equal(t, Marked, cleared.Kind())

	unmarked := cleared.ClearMark()
	assert.Equal(t, Unmarked, unmarked.Kind())
	assert.Equal(t, uint64(0x2000), unmarked.Pointer())
}

func TestForwardedRoundTrip(t *testing.T) {
	cases := []ForwardPayload{
		{PageIndex: 0, PageOffset: 0, Offset: 0},
		{PageIndex: MaxPageIndex, PageOffset: MaxPageOffset, Offset: MaxOffset},
		{PageIndex: 3, PageOffset: 17, Offset: 2047},
		{PageIndex: 1023, PageOffset: 1, Offset: 1},
	}
	for _, c := range cases {
		w := EncodeForwarded(c)
		require.Equal(t, Forwarded, w.Kind())
		assert.Equal(t, c, w.Forward())
	}
}

func TestFreeRegionConstants(t *testing.T) {
	assert.Equal(t, FreeSingle, FreeSingleWord().Kind())
	assert.Equal(t, FreeMulti, FreeMultiWord().Kind())
	// The reserved constants must never be produced by EncodeUnmarked with a
	// real (non-zero, word-aligned) pointer, nor collide with a pointer's
	// tag-masked low bits.
	assert.NotEqual(t, Unmarked, Word(0).Kind())
	assert.NotEqual(t, Unmarked, Word(1).Kind())
}

func TestSetMarkLeavesOverflowBitClear(t *testing.T) {
	// Marking alone never sets the overflow bit; the stack's own
	// push/overflow boundary is tested with gc.MarkingStack.
	w := EncodeUnmarked(0x3000).SetMark()
	assert.False(t, w.IsOverflowed())
}
