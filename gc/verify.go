package gc

import (
	"fmt"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
	"github.com/MaimaityMaitity/mcgc/internal/mapword"
)

// verifyMarkedBytes recomputes the marked-byte total by walking every space
// independently of the running counters markWhite maintains, and panics on
// disagreement (spec.md §7's fatal assertion). It runs between the mark
// phase and everything that depends on its output, catching any path that
// sets a mark bit without going through markWhite's bookkeeping.
func (c *Collector) verifyMarkedBytes() {
	if !c.flags.VerifyGlobalGC {
		return
	}
	total := 0
	count := func(addr heap.Address) {
		if c.h.MapWordAt(addr).IsMarked() {
			total += c.h.Size(addr)
		}
	}
	c.h.New.IterateLive(count)
	c.h.Old.IterateAllocated(count)
	c.h.Code.IterateAllocated(count)
	c.h.MapSpace.IterateAllocated(count)
	for _, o := range c.h.LO.Objects() {
		count(o.Addr())
	}
	if total != c.stats.MarkedBytes {
		panic(fmt.Sprintf("gc: verify_global_gc: marked bytes mismatch after mark phase: counted %d, stats reported %d", total, c.stats.MarkedBytes))
	}
}

// verifyCycleComplete panics if any object in a compactable paged space is
// left carrying a Forwarded map word once relocation has finished, which
// would mean some live object was encoded a destination but never actually
// moved there (spec.md §7). It only inspects the post-compaction allocated
// range, which by construction excludes the free regions a compacting cycle
// leaves behind in a page's now-unused tail.
func (c *Collector) verifyCycleComplete() {
	if !c.flags.VerifyGlobalGC || !c.compacting {
		return
	}
	check := func(space *heap.PagedSpace) func(heap.Address) {
		return func(addr heap.Address) {
			if c.h.MapWordAt(addr).Kind() == mapword.Forwarded {
				panic(fmt.Sprintf("gc: verify_global_gc: %s space: object at %#x still Forwarded after relocation", space.ID(), uintptr(addr)))
			}
		}
	}
	c.h.Old.IterateAllocated(check(c.h.Old))
	c.h.Code.IterateAllocated(check(c.h.Code))
	c.h.MapSpace.IterateAllocated(check(c.h.MapSpace))
}
