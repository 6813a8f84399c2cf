package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
	"github.com/MaimaityMaitity/mcgc/internal/mapword"
)

// newTestHeap builds a small heap with its own dedicated maps for the
// instance types the tests below allocate, returning the heap plus those
// map addresses for convenience.
type testMaps struct {
	heapNumber heap.Address
	seqString  heap.Address
	consString heap.Address
	fixedArray heap.Address
	code       heap.Address
}

func newTestHeap(t *testing.T, cfg heap.Config) (*heap.Heap, testMaps) {
	t.Helper()
	h, err := heap.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	var m testMaps
	var mapErr error
	mk := func(it heap.InstanceType, size int) heap.Address {
		addr, err := h.NewMap(h.MetaMap(), it, size)
		if err != nil {
			mapErr = err
		}
		return addr
	}
	m.heapNumber = mk(heap.HeapNumberInstanceType, heap.HeapNumberSize)
	m.seqString = mk(heap.SeqStringInstanceType, 0)
	m.consString = mk(heap.ConsStringInstanceType, heap.ConsStringSize)
	m.fixedArray = mk(heap.FixedArrayInstanceType, 0)
	m.code = mk(heap.CodeInstanceType, heap.CodeObjectSize)
	require.NoError(t, mapErr)
	return h, m
}

// scenario 1: singleton heap.
func TestSingletonHeapSurvivesCompaction(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())
	objAddr, err := h.NewFixedArray(m.fixedArray, 0, h.Old)
	require.NoError(t, err)
	root := h.NewRoot(objAddr)

	c := NewCollector(h, Flags{AlwaysCompact: true}, 64, 4)
	stats, err := c.CollectGarbage(nil)
	require.NoError(t, err)

	newAddr := h.RootValue(root)
	assert.False(t, newAddr.IsNull())
	assert.Equal(t, h.Old.Pages()[0].Start(), newAddr, "the only object should occupy the bottom of its space")
	assert.Equal(t, heap.FixedArrayInstanceType, h.InstanceTypeOf(newAddr))
	assert.Zero(t, stats.FreeRegionsCoalesced, "compaction never produces free-list entries")
}

// scenario 2: all dead, compacting path.
func TestAllDeadCompactingResetsAllocationTop(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())
	for i := 0; i < 10; i++ {
		_, err := h.NewFixedArray(m.fixedArray, 0, h.Old)
		require.NoError(t, err)
	}

	c := NewCollector(h, Flags{AlwaysCompact: true}, 64, 4)
	_, err := c.CollectGarbage(nil)
	require.NoError(t, err)

	page0 := h.Old.Pages()[0]
	assert.Equal(t, page0.Start(), h.Old.AllocatedLimit(page0))

	w := h.MapWordAt(page0.Start())
	require.Equal(t, mapword.FreeMulti, w.Kind(), "the ten coalesced dead objects become a multi-free region during encoding")
	assert.Equal(t, heap.Address(10*heap.VariableHeaderSize), h.ReadSlot(page0.Start().Add(heap.WordSize)), "the free region's byte size is recorded in the word following the marker")
}

// scenario 2 (alternate reading): all dead, sweep-in-place path, where the
// ten dead objects are coalesced into one free-list entry spanning all of
// old space's consumed bytes.
func TestAllDeadSweepCoalescesIntoOneFreeRegion(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())
	for i := 0; i < 10; i++ {
		_, err := h.NewFixedArray(m.fixedArray, 0, h.Old)
		require.NoError(t, err)
	}

	c := NewCollector(h, Flags{NeverCompact: true}, 64, 4)
	stats, err := c.CollectGarbage(nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.FreeRegionsCoalesced, 1)
	assert.Equal(t, h.Old.Size(), h.Old.AvailableFree(), "every byte old space ever handed out was garbage")
}

// scenario 3: ConsString elision. Root holds ConsString(left=S, right=empty
// string), both the cons and S live in old space; after compaction the root
// must point directly at S and the cons object is garbage.
func TestConsStringElision(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())

	s, err := h.NewSeqString(m.seqString, []byte("hello"), h.Old)
	require.NoError(t, err)
	empty, err := h.NewSeqString(m.seqString, nil, h.Old)
	require.NoError(t, err)
	cons, err := h.NewConsString(m.consString, s, empty, h.Old)
	require.NoError(t, err)
	root := h.NewRoot(cons)

	c := NewCollector(h, Flags{AlwaysCompact: true}, 64, 4)
	_, err = c.CollectGarbage(nil)
	require.NoError(t, err)

	got := h.RootValue(root)
	require.False(t, got.IsNull())
	assert.Equal(t, heap.SeqStringInstanceType, h.InstanceTypeOf(got))
	assert.Equal(t, len("hello"), h.PayloadBytes(got))
}

// scenario 5: promotion. A new-space sequential string promotes to code
// space; a new-space plain object promotes to old space.
func TestPromotionOutOfNewSpace(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())

	strAddr, err := h.NewSeqString(m.seqString, []byte("promote me"), h.New)
	require.NoError(t, err)
	objAddr, err := h.NewFixedArray(m.fixedArray, 2, h.New)
	require.NoError(t, err)

	strRoot := h.NewRoot(strAddr)
	objRoot := h.NewRoot(objAddr)

	c := NewCollector(h, Flags{AlwaysCompact: true}, 64, 4)
	_, err = c.CollectGarbage(nil)
	require.NoError(t, err)

	newStr := h.RootValue(strRoot)
	newObj := h.RootValue(objRoot)
	assert.Equal(t, heap.CodeSpaceID, h.SpaceOf(newStr), "sequential strings promote into code space")
	assert.Equal(t, heap.OldSpaceID, h.SpaceOf(newObj), "ordinary objects promote into old space")
	assert.Equal(t, len("promote me"), h.PayloadBytes(newStr))
}

// scenario 6: cross-page forwarding. Old space holds exactly two pages; one
// object on the first page is garbage, freeing exactly one object-slot of
// destination room. The source page's worth of live objects overflows the
// gap, so the wrap clause in PagedSpace.ResolveForwardedAddress must carry
// at least one destination into the second page.
func TestCrossPageForwardingWrap(t *testing.T) {
	cfg := heap.Config{
		RootSlots:     512,
		SemispaceSize: heap.PageObjectAreaSize,
		OldPages:      2,
		CodePages:     1,
		MapPages:      1,
	}
	h, m := newTestHeap(t, cfg)

	objSize := heap.VariableHeaderSize // a 0-element FixedArray is 16 bytes.
	perPage := heap.PageObjectAreaSize / objSize

	var roots []heap.Address
	for i := 0; i < perPage; i++ {
		addr, err := h.NewFixedArray(m.fixedArray, 0, h.Old)
		require.NoError(t, err)
		if i == perPage/2 {
			continue // leave exactly one slot's worth of destination room free.
		}
		roots = append(roots, h.NewRoot(addr))
	}
	const secondPageLive = 3
	for i := 0; i < secondPageLive; i++ {
		addr, err := h.NewFixedArray(m.fixedArray, 0, h.Old)
		require.NoError(t, err)
		roots = append(roots, h.NewRoot(addr))
	}
	require.Len(t, roots, perPage-1+secondPageLive)

	page1 := h.Old.Pages()[1]

	c := NewCollector(h, Flags{AlwaysCompact: true}, 512, 4)
	_, err := c.CollectGarbage(nil)
	require.NoError(t, err)

	sawPage2Destination := false
	for _, r := range roots {
		addr := h.RootValue(r)
		require.False(t, addr.IsNull())
		if addr.Sub(page1.Start()) >= 0 {
			sawPage2Destination = true
		}
	}
	assert.True(t, sawPage2Destination, "at least one surviving object must relocate into the second page")
}

// scenario 4: overflow path. A stack capacity of 2 cannot hold a pure
// linear chain's worth of gray objects concurrently forced onto it — a
// plain chain never needs more than one concurrently-gray entry regardless
// of depth, since draining pops an object and pushes its single child in
// the same step. To actually force the overflow latch this builds a root
// fan-out of 3 equal sub-chains instead: visiting the fan-out array marks
// all 3 chain heads before any of them is drained, so with capacity 2 the
// third head's push is guaranteed to fail. The test then asserts the
// overflow rescan recovers and every object in all 3 chains ends marked.
func TestMarkOverflowRescanReachesFixedPoint(t *testing.T) {
	const numChains = 3
	const chainLen = 333 // 1 fan-out array + 3*333 = 1000 objects total.

	// 1 fan-out array (40 bytes) + 999 one-slot nodes (24 bytes each) needs
	// about 24KB of old space; size generously to leave headroom.
	cfg := heap.Config{
		RootSlots:     512,
		SemispaceSize: heap.PageObjectAreaSize,
		OldPages:      16,
		CodePages:     1,
		MapPages:      1,
	}
	h, m := newTestHeap(t, cfg)

	fanOut, err := h.NewFixedArray(m.fixedArray, numChains, h.Old)
	require.NoError(t, err)

	for c := 0; c < numChains; c++ {
		var head heap.Address
		var prev heap.Address
		for i := 0; i < chainLen; i++ {
			node, err := h.NewFixedArray(m.fixedArray, 1, h.Old)
			require.NoError(t, err)
			if i == 0 {
				head = node
			} else {
				h.FixedArraySet(prev, 0, node)
			}
			prev = node
		}
		h.FixedArraySet(fanOut, c, head)
	}
	root := h.NewRoot(fanOut)

	coll := NewCollector(h, Flags{AlwaysCompact: true}, 2, 4)
	stats, err := coll.CollectGarbage(nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.OverflowRescans, 1)

	newFanOut := h.RootValue(root)
	require.False(t, newFanOut.IsNull())
	total := 1
	for c := 0; c < numChains; c++ {
		node := h.FixedArrayGet(newFanOut, c)
		count := 0
		for !node.IsNull() {
			count++
			node = h.FixedArrayGet(node, 0)
		}
		assert.Equal(t, chainLen, count, "chain %d should survive intact", c)
		total += count
	}
	assert.Equal(t, 1+numChains*chainLen, total)
}

// cleanup_ics_at_gc: an IC stub's code object is cleared from its call site
// and swept as garbage when cleanup_ics_at_gc is set, even when the site is
// only reached through ordinary body traversal and not pre-registered as an
// IC root (spec.md §4.3; mark-compact.cc:250-256).
func TestCleanupICsAtGCClearsStubReachedThroughBodyTraversal(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())

	stub, err := h.NewCode(m.code, heap.NullAddress, heap.NullAddress, true, h.Code)
	require.NoError(t, err)
	caller, err := h.NewCode(m.code, stub.Add(heap.CodeHeaderSize), heap.NullAddress, false, h.Code)
	require.NoError(t, err)

	holder, err := h.NewFixedArray(m.fixedArray, 1, h.Old)
	require.NoError(t, err)
	h.FixedArraySet(holder, 0, caller)
	root := h.NewRoot(holder)

	c := NewCollector(h, Flags{AlwaysCompact: true, CleanupICsAtGC: true}, 64, 4)
	stats, err := c.CollectGarbage(nil)
	require.NoError(t, err)

	newHolder := h.RootValue(root)
	require.False(t, newHolder.IsNull())
	newCaller := h.FixedArrayGet(newHolder, 0)
	require.False(t, newCaller.IsNull())
	assert.True(t, h.CodeTarget(newCaller).IsNull(), "the IC stub's target slot is cleared rather than kept alive")
	assert.GreaterOrEqual(t, stats.CodeObjectsDeleted, 1, "the orphaned IC stub is swept as garbage")
}

// debug-target slots participate in mark/update exactly like IC target slots
// (spec.md §4.3; mark-compact.cc:264): a code object reachable only through
// another code object's debug-target slot still survives and is relocated.
func TestDebugTargetKeepsCalleeAlive(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())

	callee, err := h.NewCode(m.code, heap.NullAddress, heap.NullAddress, false, h.Code)
	require.NoError(t, err)
	caller, err := h.NewCode(m.code, heap.NullAddress, callee.Add(heap.CodeHeaderSize), false, h.Code)
	require.NoError(t, err)
	root := h.NewRoot(caller)

	c := NewCollector(h, Flags{AlwaysCompact: true}, 64, 4)
	_, err = c.CollectGarbage(nil)
	require.NoError(t, err)

	newCaller := h.RootValue(root)
	require.False(t, newCaller.IsNull())
	newCalleeDerived := h.DebugTarget(newCaller)
	require.False(t, newCalleeDerived.IsNull())
	newCallee := newCalleeDerived.Add(-heap.CodeHeaderSize)
	assert.Equal(t, heap.CodeInstanceType, h.InstanceTypeOf(newCallee), "the callee reached only via the debug-target slot survives and relocates")
}

// Idempotent marking: once every reachable object is gray/black, running the
// mark phase again over the same (unmutated) graph finds nothing left to
// mark, since markWhite's white check makes re-marking an already-marked
// object a no-op.
func TestMarkingIsIdempotent(t *testing.T) {
	h, m := newTestHeap(t, heap.DefaultConfig())
	a, err := h.NewFixedArray(m.fixedArray, 1, h.Old)
	require.NoError(t, err)
	b, err := h.NewFixedArray(m.fixedArray, 0, h.Old)
	require.NoError(t, err)
	h.FixedArraySet(a, 0, b)
	h.NewRoot(a)

	c := NewCollector(h, Flags{}, 64, 4)
	c.Prepare()
	c.markLiveObjects()
	first := c.stats.MarkedObjects
	require.Positive(t, first)

	c.stats = Stats{}
	c.markLiveObjects()
	assert.Zero(t, c.stats.MarkedObjects, "nothing new to mark the second time over an unmutated graph")
}
