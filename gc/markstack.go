package gc

import "github.com/MaimaityMaitity/mcgc/internal/heap"

// MarkingStack is the bounded LIFO of gray objects described in spec.md
// §4.2. Its backing store aliases the heap's inactive new-space semispace
// (`from`): that memory holds no live mutator data during a collection
// (§5), so the stack can use it as raw scratch space without allocating
// anything of its own.
//
// A push past capacity silently drops the object and latches Overflowed;
// it does not panic and does not grow. The stack is not the only way to
// reach a gray object once that happens — see the mark phase's overflow
// rescan.
type MarkingStack struct {
	h          *heap.Heap
	base       heap.Address
	capacity   int
	sp         int
	overflowed bool
}

// NewMarkingStack builds a stack of the given capacity (in entries) backed
// by h's inactive semispace. capacity must fit in that semispace; callers
// that want to exercise the overflow path (spec.md §8 scenario 4) pass a
// small capacity explicitly rather than relying on the semispace's full
// size.
func NewMarkingStack(h *heap.Heap, capacity int) *MarkingStack {
	maxEntries := h.New.FromHigh().Sub(h.New.FromLow()) / heap.WordSize
	if capacity > maxEntries {
		capacity = maxEntries
	}
	return &MarkingStack{h: h, base: h.New.FromLow(), capacity: capacity}
}

// Push adds addr to the stack and reports whether it was actually queued.
// If the stack is already at capacity, the push is dropped, Overflowed
// latches true, and Push returns false; the object remains marked but the
// caller must encode it as overflowed rather than gray-on-stack.
func (s *MarkingStack) Push(addr heap.Address) bool {
	if s.sp >= s.capacity {
		s.overflowed = true
		return false
	}
	s.h.WriteSlot(s.base.Add(s.sp*heap.WordSize), addr)
	s.sp++
	return true
}

// Pop removes and returns the most recently pushed address. It panics if
// the stack is empty; callers must check IsEmpty first.
func (s *MarkingStack) Pop() heap.Address {
	if s.sp == 0 {
		panic("gc: pop from empty marking stack")
	}
	s.sp--
	return s.h.ReadSlot(s.base.Add(s.sp * heap.WordSize))
}

// IsEmpty reports whether the stack currently holds no entries.
func (s *MarkingStack) IsEmpty() bool { return s.sp == 0 }

// Overflowed reports whether a push has been dropped since the last
// ClearOverflowed (or since construction).
func (s *MarkingStack) Overflowed() bool { return s.overflowed }

// ClearOverflowed resets the overflow latch, ahead of a rescan pass.
func (s *MarkingStack) ClearOverflowed() { s.overflowed = false }

// Len reports the number of entries currently on the stack (for tests and
// tracing, not part of the algorithm itself).
func (s *MarkingStack) Len() int { return s.sp }
