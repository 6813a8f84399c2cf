package gc

import (
	"github.com/MaimaityMaitity/mcgc/internal/heap"
)

// sweepSpaces implements the non-compacting path (spec.md §4.8): every
// space is swept in place instead of relocated. Dead runs become filler
// objects in new space (which has no free list of its own) or free-list
// entries in the paged spaces; live objects stay exactly where they are,
// with their mark bit cleared.
func (c *Collector) sweepSpaces() {
	c.sweepNewSpaceInPlace()
	c.sweepPagedSpace(c.h.Old)
	c.sweepPagedSpace(c.h.Code)
	c.sweepPagedSpace(c.h.MapSpace) // map space swept last, per spec.md §4.8.
}

// deadRun is one maximal run of consecutive dead objects discovered while
// sweeping, coalesced into a single free region.
type deadRun struct {
	start heap.Address
	size  int
}

// collectDeadRuns walks [start, limit) once, clearing the mark bit of every
// live object it passes and coalescing consecutive dead objects into runs.
func (c *Collector) collectDeadRuns(start, limit heap.Address) []deadRun {
	var runs []deadRun
	addr := start
	open := false
	for addr.Sub(limit) < 0 {
		size := c.h.Size(addr)
		w := c.h.MapWordAt(addr)
		if w.IsMarked() {
			c.h.SetMapWordAt(addr, w.ClearMark())
			open = false
		} else {
			if !open {
				runs = append(runs, deadRun{start: addr})
				open = true
			}
			runs[len(runs)-1].size += size
		}
		addr = addr.Add(size)
	}
	return runs
}

func (c *Collector) sweepNewSpaceInPlace() {
	runs := c.collectDeadRuns(c.h.New.Bottom(), c.h.New.Top())
	for _, r := range runs {
		c.h.SetMap(r.start, c.h.FillerMap())
		c.h.SetPayloadBytes(r.start, r.size-heap.VariableHeaderSize)
		c.tracef(EventSweep, "sweep", "new", "")
	}
}

// sweepPagedSpace returns each dead run directly to space's free list.
// Free-region map words are a compacting-only encoding (spec.md §3); the
// non-compacting path here never writes one, matching the original's
// dealloc-only SweepSpace (mark-compact.cc:949-997).
func (c *Collector) sweepPagedSpace(space *heap.PagedSpace) {
	for _, p := range space.Pages() {
		limit := space.AllocatedLimit(p)
		runs := c.collectDeadRuns(p.Start(), limit)
		for _, r := range runs {
			space.Free(r.start, r.size)
			c.stats.FreeRegionsCoalesced++
			c.tracef(EventSweep, "sweep", space.ID().String(), "")
		}
	}
}
