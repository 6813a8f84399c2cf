package gc

import (
	"github.com/MaimaityMaitity/mcgc/internal/heap"
	"github.com/MaimaityMaitity/mcgc/internal/mapword"
)

// updatePointers rewrites every live pointer in the heap to its
// post-compaction destination (spec.md §4.6), before any object's bytes have
// actually moved: old/code/map objects still carry their Forwarded map word
// at their pre-relocation address, and new-space survivors are still found
// at their pre-flip offset with the destination recorded in the mirror
// array. Order does not matter here the way it does for encoding, since
// every live object's destination is already fully determined.
func (c *Collector) updatePointers() {
	v := &UpdatingVisitor{c: c}

	for _, slot := range c.h.StrongRoots() {
		v.VisitPointer(slot)
	}
	for _, slot := range c.h.WeakRoots() {
		addr := c.h.RootValue(slot)
		if addr.IsNull() {
			continue
		}
		if !c.isLiveAfterMark(addr) {
			c.h.SetRootValue(slot, heap.NullAddress)
			continue
		}
		c.h.SetRootValue(slot, c.updatedAddress(addr))
	}
	for i, addr := range c.h.ICRoots {
		if addr.IsNull() {
			continue
		}
		c.h.ICRoots[i] = c.updatedAddress(addr)
	}

	updateBody := func(addr heap.Address) {
		it := c.h.InstanceTypeOf(addr)
		size := c.h.Size(addr)
		c.h.IterateBody(addr, it, size, v)
		c.tracef(EventUpdate, "update", c.h.SpaceOf(addr).String(), "")
	}

	forwardedOnly := func(addr heap.Address) {
		if c.h.MapWordAt(addr).Kind() == mapword.Forwarded {
			updateBody(addr)
		}
	}
	c.h.Old.IterateAllocated(forwardedOnly)
	c.h.Code.IterateAllocated(forwardedOnly)
	c.h.MapSpace.IterateAllocated(forwardedOnly)

	c.h.New.IterateLive(func(addr heap.Address) {
		if c.h.MapWordAt(addr).IsMarked() {
			updateBody(addr)
		}
	})

	for _, o := range c.h.LO.Objects() {
		updateBody(o.Addr())
	}
}

// isLiveAfterMark reports whether addr was live at the end of the mark
// phase, using whichever encoding that space's liveness currently carries:
// paged (old/code/map) spaces have since been forward-encoded, so liveness
// there means Kind() == Forwarded rather than the mark bit (which the
// Forwarded encoding overwrites); new space never forward-encodes its
// objects' own map words, so the mark bit is still authoritative there;
// large objects were already swept before forwarding began, so every
// surviving entry is live by construction.
func (c *Collector) isLiveAfterMark(addr heap.Address) bool {
	switch c.h.SpaceOf(addr) {
	case heap.NewSpaceID:
		return c.h.MapWordAt(addr).IsMarked()
	case heap.LOSpaceID:
		return true
	default:
		return c.h.MapWordAt(addr).Kind() == mapword.Forwarded
	}
}

// updatedAddress resolves addr's post-compaction location.
func (c *Collector) updatedAddress(addr heap.Address) heap.Address {
	switch c.h.SpaceOf(addr) {
	case heap.LOSpaceID:
		return addr
	case heap.NewSpaceID:
		k := c.h.New.ToSpaceOffsetForAddress(addr)
		return c.h.New.ReadMirror(k)
	default:
		w := c.h.MapWordAt(addr)
		if w.Kind() != mapword.Forwarded {
			// A dangling reference to an object that turned out dead; left
			// unchanged rather than guessed at.
			return addr
		}
		fp := w.Forward()
		space := c.pagedSpaceByID(c.h.SpaceOf(addr))
		srcPage := space.PageContaining(addr)
		return space.ResolveForwardedAddress(srcPage.MCFirstForwarded(), int(fp.Offset))
	}
}

func (c *Collector) pagedSpaceByID(id heap.SpaceID) *heap.PagedSpace {
	switch id {
	case heap.OldSpaceID:
		return c.h.Old
	case heap.CodeSpaceID:
		return c.h.Code
	case heap.MapSpaceID:
		return c.h.MapSpace
	default:
		return nil
	}
}
