package gc

import (
	"fmt"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
)

// markLiveObjects runs the full mark phase (spec.md §4.3): trace strong
// roots and IC roots, special-case the symbol table's strong prefix, drain
// the marking stack (rescanning on overflow), resolve object groups and
// weak handles to a fixed point, then prune the symbol table's weak slots
// and discard the object groups.
func (c *Collector) markLiveObjects() {
	v := &MarkingVisitor{c: c}

	// The meta-map and the new-space sweeper's filler map are required for
	// the heap to keep functioning across cycles regardless of whether any
	// ordinary object currently references them (an all-dead cycle reaches
	// neither through the object graph); they are permanent roots, not
	// reachability-dependent like everything else.
	v.MarkRoot(c.h.MetaMap())
	v.MarkRoot(c.h.FillerMap())

	for _, slot := range c.h.StrongRoots() {
		v.VisitPointer(slot)
	}
	for i := range c.h.ICRoots {
		addr := c.h.ICRoots[i]
		if addr.IsNull() {
			continue
		}
		if c.flags.CleanupICsAtGC && c.h.IsICStub(addr) {
			// Not rooted this cycle: an IC stub kept alive only by the
			// inline-cache mechanism may be collected if otherwise
			// unreachable (spec.md §9's cleanup_ics_at_gc).
			continue
		}
		v.MarkRoot(addr)
	}
	c.markSymbolTablePrefix(v)

	c.drainToFixedPoint(v)
	c.processObjectGroups(v)
	c.processWeakHandles(v)
	// A weak handle revived here can make a group member live without ever
	// having propagated that liveness to the rest of its group, so the
	// groups are re-run once more (spec.md §4.3 step 6; mark-compact.cc:583
	// then again at :597).
	c.processObjectGroups(v)
	c.pruneSymbolTable()
	c.h.ObjectGroups = nil
}

// markSymbolTablePrefix marks the symbol table's header object directly
// (black, never pushed) so the generic drain loop never calls IterateBody on
// it - that would treat its weakly-held symbol slots as strong references -
// then visits only its strong prefix range (spec.md §4.3 steps 2 and 7).
func (c *Collector) markSymbolTablePrefix(v *MarkingVisitor) {
	t := c.h.SymbolTable
	if t == nil {
		return
	}
	c.markWhite(t.Addr)
	start, end := t.PrefixRange()
	v.VisitPointers(start, end)
}

// drainToFixedPoint pops and iterates the marking stack until it is empty
// and no overflow is outstanding. An overflow means some gray object was
// discovered but could not be pushed; recovering from it requires a full
// heap rescan that re-iterates every already-marked object's body so any
// child it failed to enqueue gets another chance (spec.md §4.2).
func (c *Collector) drainToFixedPoint(v *MarkingVisitor) {
	c.drainStack(v)
	for c.stack.Overflowed() {
		c.stats.OverflowRescans++
		c.tracef(EventOverflow, "mark", "", fmt.Sprintf("rescan #%d", c.stats.OverflowRescans))
		c.stack.ClearOverflowed()
		c.rescanMarkedObjects(v)
		c.drainStack(v)
	}
}

func (c *Collector) drainStack(v *MarkingVisitor) {
	for !c.stack.IsEmpty() {
		addr := c.stack.Pop()
		it := c.h.InstanceTypeOf(addr)
		size := c.h.Size(addr)
		c.h.IterateBody(addr, it, size, v)
	}
}

// rescanMarkedObjects walks every currently-allocated object in every space
// and re-runs IterateBody on the ones already marked, so any child that a
// full marking stack forced the overflow path to skip gets enqueued now that
// there is room. The symbol table is skipped: its strong prefix was already
// visited by markSymbolTablePrefix and its remaining slots are weak.
func (c *Collector) rescanMarkedObjects(v *MarkingVisitor) {
	visit := func(addr heap.Address) {
		if !c.h.MapWordAt(addr).IsMarked() {
			return
		}
		if t := c.h.SymbolTable; t != nil && addr == t.Addr {
			return
		}
		it := c.h.InstanceTypeOf(addr)
		size := c.h.Size(addr)
		c.h.IterateBody(addr, it, size, v)
	}
	c.h.New.IterateLive(visit)
	c.h.Old.IterateAllocated(visit)
	c.h.Code.IterateAllocated(visit)
	c.h.MapSpace.IterateAllocated(visit)
	for _, o := range c.h.LO.Objects() {
		visit(o.Addr())
	}
}

// processObjectGroups implements spec.md §4.3 step 5: an object group with
// at least one live member makes every member live, iterated to a fixed
// point since marking a new member can make another group live in turn.
func (c *Collector) processObjectGroups(v *MarkingVisitor) {
	for {
		changed := false
		for _, g := range c.h.ObjectGroups {
			anyLive := false
			for _, m := range g.Members {
				if c.h.MapWordAt(m).IsMarked() {
					anyLive = true
					break
				}
			}
			if !anyLive {
				continue
			}
			for _, m := range g.Members {
				if !c.h.MapWordAt(m).IsMarked() {
					v.MarkRoot(m)
					changed = true
				}
			}
		}
		c.drainToFixedPoint(v)
		if !changed {
			return
		}
	}
}

// processWeakHandles implements spec.md §4.3 step 6: a weak handle whose
// referent did not get marked is given to its near-death callback, which may
// revive it (making it and everything it reaches live) or let it clear.
func (c *Collector) processWeakHandles(v *MarkingVisitor) {
	for _, wh := range c.h.WeakHandles {
		if wh.Cleared {
			continue
		}
		if c.h.MapWordAt(wh.Referent).IsMarked() {
			continue
		}
		revive := wh.OnNearDeath != nil && wh.OnNearDeath(wh.Referent)
		if !revive {
			wh.Cleared = true
			continue
		}
		v.MarkRoot(wh.Referent)
		c.drainToFixedPoint(v)
	}
}

// pruneSymbolTable implements spec.md §4.3 step 7: every weakly-held symbol
// slot whose referent did not get marked is cleared to null.
func (c *Collector) pruneSymbolTable() {
	t := c.h.SymbolTable
	if t == nil {
		return
	}
	start, end := t.SlotRange(c.h)
	for a := start; a.Sub(end) < 0; a = a.Add(heap.WordSize) {
		v := c.h.ReadSlot(a)
		if v.IsNull() {
			continue
		}
		if !c.h.MapWordAt(v).IsMarked() {
			c.h.WriteSlot(a, heap.NullAddress)
			t.Removed++
			c.stats.SymbolsPruned++
		}
	}
}
