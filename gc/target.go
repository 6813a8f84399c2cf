package gc

import "github.com/MaimaityMaitity/mcgc/internal/heap"

// targetSpaceForPromotion decides which compactable space a surviving
// new-space object promotes into during a full mark-compact cycle (spec.md
// §4.5): heap numbers and sequential strings, both small and pointer-free,
// promote into code space; everything else promotes into old space. Unlike
// a minor scavenge, a full collection always empties new space.
func targetSpaceForPromotion(h *heap.Heap, objAddr heap.Address) heap.SpaceID {
	switch h.InstanceTypeOf(objAddr) {
	case heap.HeapNumberInstanceType, heap.SeqStringInstanceType:
		return heap.CodeSpaceID
	default:
		return heap.OldSpaceID
	}
}
