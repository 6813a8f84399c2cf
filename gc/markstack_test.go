package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
)

func TestMarkingStackOverflowBoundary(t *testing.T) {
	h, err := heap.New(heap.DefaultConfig())
	require.NoError(t, err)
	defer h.Close()

	s := NewMarkingStack(h, 2)
	assert.True(t, s.Push(heap.Address(8)))
	assert.True(t, s.Push(heap.Address(16)))
	assert.False(t, s.Overflowed(), "capacity not yet exceeded")

	assert.False(t, s.Push(heap.Address(24)), "third push exceeds capacity 2")
	assert.True(t, s.Overflowed())

	s.ClearOverflowed()
	assert.False(t, s.Overflowed())
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, heap.Address(16), s.Pop())
	assert.Equal(t, heap.Address(8), s.Pop())
	assert.True(t, s.IsEmpty())
}
