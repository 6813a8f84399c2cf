package gc

import "github.com/MaimaityMaitity/mcgc/internal/heap"

// inlineRangeThreshold is the minimum slot count spec.md §4.3 names for the
// inline-recursion-vs-marking-stack decision on a VisitPointers range.
const inlineRangeThreshold = 64

// MarkingVisitor implements heap.Visitor for the mark phase. It applies the
// ConsString elision short-circuit before marking a slot's referent, then
// marks white objects gray and either pushes them onto the collector's
// MarkingStack or, for long ranges with call-stack headroom, recurses
// directly into their bodies instead of pushing every element.
type MarkingVisitor struct {
	c *Collector
}

func (v *MarkingVisitor) VisitPointer(slot heap.Address) {
	addr := v.c.h.ReadSlot(slot)
	if addr.IsNull() {
		return
	}
	addr = v.c.elideConsString(slot, addr)
	v.enqueue(addr)
}

func (v *MarkingVisitor) VisitPointers(start, end heap.Address) {
	n := end.Sub(start) / heap.WordSize
	if n >= inlineRangeThreshold && v.c.stackLimit.HasHeadroom() {
		v.visitRangeInline(start, end)
		return
	}
	for a := start; a.Sub(end) < 0; a = a.Add(heap.WordSize) {
		v.VisitPointer(a)
	}
}

// visitRangeInline walks a long pointer range depth-first on the Go call
// stack instead of pushing every element onto the bounded marking stack,
// itself bounded by the stack-limit checker so this can never overflow the
// real call stack.
func (v *MarkingVisitor) visitRangeInline(start, end heap.Address) {
	v.c.stackLimit.Enter()
	defer v.c.stackLimit.Exit()
	for a := start; a.Sub(end) < 0; a = a.Add(heap.WordSize) {
		addr := v.c.h.ReadSlot(a)
		if addr.IsNull() {
			continue
		}
		addr = v.c.elideConsString(a, addr)
		if !v.c.markWhite(addr) {
			continue
		}
		it := v.c.h.InstanceTypeOf(addr)
		size := v.c.h.Size(addr)
		v.c.h.IterateBody(addr, it, size, v)
	}
}

// VisitCodeTarget visits a Code object's single inline-cache target slot.
// The slot holds a derived pointer (CodeTargetSlot, not the code object's
// own start address); marking recovers the owning Code object by
// subtracting the header size and treats that as an ordinary pointer. If the
// owner is an IC stub and cleanup_ics_at_gc is set, the target is cleared
// and never marked (spec.md §4.3; mark-compact.cc:250-256) regardless of
// whether the owner was reached as a pre-registered IC root or through
// ordinary body traversal.
func (v *MarkingVisitor) VisitCodeTarget(slot heap.Address) {
	derived := v.c.h.ReadSlot(slot)
	if derived.IsNull() {
		return
	}
	owner := derived.Add(-heap.CodeHeaderSize)
	if v.c.flags.CleanupICsAtGC && v.c.h.IsICStub(owner) {
		v.c.h.WriteSlot(slot, heap.NullAddress)
		return
	}
	v.enqueue(owner)
}

// VisitDebugTarget visits a Code object's debugger call-site slot, the same
// principle as VisitCodeTarget applied to a debugger-inserted call
// instruction instead of an inline cache (spec.md §4.3; mark-compact.cc:264).
func (v *MarkingVisitor) VisitDebugTarget(slot heap.Address) {
	derived := v.c.h.ReadSlot(slot)
	if derived.IsNull() {
		return
	}
	owner := derived.Add(-heap.CodeHeaderSize)
	v.enqueue(owner)
}

// MarkRoot marks addr directly without going through a heap slot, for root
// sets that are not themselves addressable slots: IC roots, and revived
// object-group members/weak handles discovered after the fact.
func (v *MarkingVisitor) MarkRoot(addr heap.Address) {
	if addr.IsNull() {
		return
	}
	v.enqueue(addr)
}

// enqueue marks addr gray if it is currently white, then either pushes it
// onto the marking stack or, if the stack is full, latches the overflow
// flag and leaves it to be rediscovered by the overflow rescan (spec.md
// §4.2).
func (v *MarkingVisitor) enqueue(addr heap.Address) {
	if !v.c.markWhite(addr) {
		return
	}
	if !v.c.stack.Push(addr) {
		w := v.c.h.MapWordAt(addr)
		v.c.h.SetMapWordAt(addr, w.SetOverflow())
		v.c.tracef(EventOverflow, "mark", v.c.h.SpaceOf(addr).String(), "marking stack full")
	}
}

// UpdatingVisitor implements heap.Visitor for the pointer-update phase
// (spec.md §4.6). Every slot it is handed is rewritten in place to the
// post-compaction address of its current referent; it never marks or
// pushes anything.
type UpdatingVisitor struct {
	c *Collector
}

func (v *UpdatingVisitor) VisitPointer(slot heap.Address) {
	addr := v.c.h.ReadSlot(slot)
	if addr.IsNull() {
		return
	}
	v.c.h.WriteSlot(slot, v.c.updatedAddress(addr))
}

func (v *UpdatingVisitor) VisitPointers(start, end heap.Address) {
	for a := start; a.Sub(end) < 0; a = a.Add(heap.WordSize) {
		v.VisitPointer(a)
	}
}

func (v *UpdatingVisitor) VisitCodeTarget(slot heap.Address) {
	derived := v.c.h.ReadSlot(slot)
	if derived.IsNull() {
		return
	}
	owner := derived.Add(-heap.CodeHeaderSize)
	newOwner := v.c.updatedAddress(owner)
	v.c.h.WriteSlot(slot, newOwner.Add(heap.CodeHeaderSize))
}

func (v *UpdatingVisitor) VisitDebugTarget(slot heap.Address) {
	derived := v.c.h.ReadSlot(slot)
	if derived.IsNull() {
		return
	}
	owner := derived.Add(-heap.CodeHeaderSize)
	newOwner := v.c.updatedAddress(owner)
	v.c.h.WriteSlot(slot, newOwner.Add(heap.CodeHeaderSize))
}
