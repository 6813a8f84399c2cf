// Package gc implements the five-phase stop-the-world mark-compact
// collector of spec.md §1/§4: Prepare, MarkLiveObjects,
// SweepLargeObjectSpace, then either the compacting path (encode forwarding
// addresses, update pointers, relocate objects, rebuild remembered sets) or
// a plain in-place sweep, and finally Finish. The algorithm is written
// entirely against package heap's exported surface, matching spec.md §6's
// stance that the page/object/root model is a pluggable collaborator.
package gc

import (
	"fmt"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
)

// StackLimitChecker is the external collaborator spec.md §1/§4.3 names for
// deciding whether a long pointer range may be walked by direct recursion
// instead of pushed onto the bounded marking stack. A real VM consults
// actual C-stack headroom; this reference implementation uses a simple
// nesting-depth budget, which is enough to exercise both code paths
// deterministically in tests.
type StackLimitChecker interface {
	HasHeadroom() bool
	Enter()
	Exit()
}

type depthStackLimitChecker struct {
	depth, max int
}

// NewStackLimitChecker returns a StackLimitChecker that permits inline
// recursion up to maxDepth nested VisitPointers ranges.
func NewStackLimitChecker(maxDepth int) StackLimitChecker {
	return &depthStackLimitChecker{max: maxDepth}
}

func (c *depthStackLimitChecker) HasHeadroom() bool { return c.depth < c.max }
func (c *depthStackLimitChecker) Enter()            { c.depth++ }
func (c *depthStackLimitChecker) Exit()             { c.depth-- }

// Stats accumulates the per-cycle counters SPEC_FULL.md §D.1 asks surfaced,
// grounded on v8's GCTracer fields but trimmed to what this reference
// collector actually computes.
type Stats struct {
	MarkedObjects        int
	MarkedBytes          int
	OverflowRescans      int
	FreeRegionsCoalesced int
	ObjectsRelocated     int
	CodeObjectsDeleted   int
	CodeObjectsMoved     int
	LargeObjectsFreed    int
	LargeObjectsBytes    int
	SymbolsPruned        int
	Compacting           bool
	FragmentationPercent float64
}

// Collector runs one mark-compact cycle at a time over a *heap.Heap. It is
// not safe for concurrent use; spec.md §5 is explicit that only one
// collection runs at a time and the mutator is fully stopped for its
// duration.
type Collector struct {
	h          *heap.Heap
	flags      Flags
	tracer     Tracer
	compacting bool

	stack      *MarkingStack
	stackLimit StackLimitChecker

	stats Stats
}

// NewCollector builds a Collector over h. stackCapacity bounds the marking
// stack (spec.md §4.2); maxInlineDepth bounds the recursive-range
// optimization's nesting (see StackLimitChecker).
func NewCollector(h *heap.Heap, flags Flags, stackCapacity, maxInlineDepth int) *Collector {
	return &Collector{
		h:          h,
		flags:      flags,
		stack:      NewMarkingStack(h, stackCapacity),
		stackLimit: NewStackLimitChecker(maxInlineDepth),
	}
}

// Prepare resolves whether this cycle will compact (spec.md §4.1) and resets
// every space's relocation bookkeeping for a fresh cycle.
func (c *Collector) Prepare() {
	wasteOldCode := c.h.Old.Waste() + c.h.Code.Waste()
	freeOldCode := c.h.Old.AvailableFree() + c.h.Code.AvailableFree()
	sizeOldCode := c.h.Old.Size() + c.h.Code.Size()
	c.compacting, c.stats.FragmentationPercent = c.flags.resolveCompacting(wasteOldCode, freeOldCode, sizeOldCode)
	c.stats.Compacting = c.compacting

	c.h.New.PrepareForMarkCompact()
	c.h.Old.PrepareForMarkCompact(c.compacting)
	c.h.Code.PrepareForMarkCompact(c.compacting)
	c.h.MapSpace.PrepareForMarkCompact(c.compacting)
}

// CollectGarbage runs one complete cycle and returns its statistics. A nil
// tracer is replaced with NopTracer. This is the sole public entry point;
// Prepare/Finish are exported separately only so callers can inspect
// intermediate heap state in tests.
func (c *Collector) CollectGarbage(tracer Tracer) (Stats, error) {
	if tracer == nil {
		tracer = NopTracer{}
	}
	c.tracer = tracer
	c.stats = Stats{}
	defer c.Finish()

	c.Prepare()
	c.tracef(EventPhase, "prepare", "", fmt.Sprintf("compacting=%v frag=%.1f%%", c.compacting, c.stats.FragmentationPercent))

	c.markLiveObjects()
	c.tracef(EventPhase, "mark", "", fmt.Sprintf("marked=%d objects, %d bytes, %d overflow rescans",
		c.stats.MarkedObjects, c.stats.MarkedBytes, c.stats.OverflowRescans))
	c.verifyMarkedBytes()

	freed, bytes := c.h.LO.FreeUnmarkedObjects()
	c.stats.LargeObjectsFreed = freed
	c.stats.LargeObjectsBytes = bytes
	c.tracef(EventSweep, "sweep-large-object-space", "large-object", fmt.Sprintf("freed=%d bytes=%d", freed, bytes))

	if c.compacting {
		if err := c.encodeForwardingAddresses(); err != nil {
			return c.stats, err
		}
		c.updatePointers()
		c.relocateObjects()
		c.rebuildRememberedSets()
	} else {
		c.sweepSpaces()
	}
	c.verifyCycleComplete()

	return c.stats, nil
}

// Finish releases the cycle's tracer. It runs automatically via defer inside
// CollectGarbage; it is exported so a caller driving the phases by hand
// (tests) can call it explicitly too.
func (c *Collector) Finish() {
	c.tracer = nil
}

// markWhite sets addr's mark bit if it is currently unmarked and updates the
// marked-objects/marked-bytes counters. It reports whether addr actually
// transitioned from white to gray; a false return means addr was already
// marked and the caller has nothing further to enqueue.
//
// A live object's Map is never reached by IterateBody (Maps carry no
// pointer-bearing body for this reference model to trace), so marking addr
// also marks its Map directly here, walking up the Map-of-Map chain to the
// self-referential meta-map; otherwise a live object's own Map would look
// dead to forwarding-address encoding and map space would be wiped out by
// every compacting cycle.
func (c *Collector) markWhite(addr heap.Address) bool {
	w := c.h.MapWordAt(addr)
	if w.IsMarked() {
		return false
	}
	c.h.SetMapWordAt(addr, w.SetMark())
	c.stats.MarkedObjects++
	c.stats.MarkedBytes += c.h.Size(addr)
	c.markMapChain(addr)
	return true
}

// markMapChain marks addr's Map, and that Map's own Map, and so on up to
// the meta-map, stopping as soon as it finds a link already marked.
func (c *Collector) markMapChain(addr heap.Address) {
	mapAddr := c.h.MapOf(addr)
	for {
		w := c.h.MapWordAt(mapAddr)
		if w.IsMarked() {
			return
		}
		c.h.SetMapWordAt(mapAddr, w.SetMark())
		c.stats.MarkedObjects++
		c.stats.MarkedBytes += c.h.Size(mapAddr)
		next := c.h.MapOf(mapAddr)
		if next == mapAddr {
			return
		}
		mapAddr = next
	}
}

// elideConsString applies the ConsString short-circuit of spec.md §9: if
// addr is a ConsString whose right part is the canonical empty string, the
// slot is rewritten to point directly at the left part instead (repeated
// until the result is not such a ConsString), guarded by the literal
// condition "the object lives in new space, or its left part does not" so
// the rewrite never introduces an old-to-new pointer that the remembered
// sets aren't expecting.
func (c *Collector) elideConsString(slot, addr heap.Address) heap.Address {
	for {
		if c.h.SpaceOf(addr) == heap.LOSpaceID {
			return addr
		}
		if c.h.InstanceTypeOf(addr) != heap.ConsStringInstanceType {
			return addr
		}
		left, right := c.h.ConsStringParts(addr)
		if !c.isEmptyString(right) {
			return addr
		}
		objInNew := c.h.SpaceOf(addr) == heap.NewSpaceID
		leftInNew := c.h.SpaceOf(left) == heap.NewSpaceID
		if !(objInNew || !leftInNew) {
			return addr
		}
		c.h.WriteSlot(slot, left)
		addr = left
	}
}

func (c *Collector) isEmptyString(addr heap.Address) bool {
	if addr.IsNull() || c.h.SpaceOf(addr) == heap.LOSpaceID {
		return false
	}
	mapAddr := c.h.MapOf(addr)
	return c.h.IsEmptyString(mapAddr, addr)
}
