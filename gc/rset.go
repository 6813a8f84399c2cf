package gc

import "github.com/MaimaityMaitity/mcgc/internal/heap"

// rebuildRememberedSets recomputes each compactable page's card-remembered
// set from scratch by walking every live object's body after relocation and
// flagging any field that now points into new space (spec.md §4.7). The
// prior cycle's remembered-set state is discarded first, since compaction
// may have moved the pointers it described to an entirely different page.
func (c *Collector) rebuildRememberedSets() {
	for _, space := range []*heap.PagedSpace{c.h.Old, c.h.Code, c.h.MapSpace} {
		for _, p := range space.Pages() {
			p.ResetRSet()
		}
		rv := &rsetVisitor{c: c, space: space}
		space.IterateAllocated(func(addr heap.Address) {
			rv.page = space.PageContaining(addr)
			it := c.h.InstanceTypeOf(addr)
			size := c.h.Size(addr)
			c.h.IterateBody(addr, it, size, rv)
		})
	}
}

// rsetVisitor flags the card covering any pointer slot that refers into new
// space, on behalf of the page the slot's owning object currently lives on.
type rsetVisitor struct {
	c     *Collector
	space *heap.PagedSpace
	page  *heap.Page
}

func (v *rsetVisitor) mark(slot heap.Address) {
	addr := v.c.h.ReadSlot(slot)
	if addr.IsNull() {
		return
	}
	if v.c.h.SpaceOf(addr) != heap.NewSpaceID {
		return
	}
	v.page.MarkCard(slot.Sub(v.page.Start()))
}

func (v *rsetVisitor) VisitPointer(slot heap.Address) { v.mark(slot) }

func (v *rsetVisitor) VisitPointers(start, end heap.Address) {
	for a := start; a.Sub(end) < 0; a = a.Add(heap.WordSize) {
		v.mark(a)
	}
}

func (v *rsetVisitor) VisitCodeTarget(heap.Address) {
	// Derived code-target pointers are absolute addresses into another
	// Code object's body; code objects never live in new space, so this
	// slot kind never needs a remembered-set card.
}

func (v *rsetVisitor) VisitDebugTarget(heap.Address) {
	// Same reasoning as VisitCodeTarget: the debug-target slot is also a
	// derived pointer into Code space.
}
