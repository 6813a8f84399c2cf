package gc

import (
	"fmt"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
	"github.com/MaimaityMaitity/mcgc/internal/mapword"
)

// relocateObjects physically moves every live object to the destination
// recorded during forwarding-address encoding, in the mandated order map
// space, old space, code space, new space (spec.md §4.7). Map space moves
// first and old/code follow so that new-space promotions - handled last -
// land in the trailing, now-freed tail of old/code space that the
// self-compaction of those spaces' own objects never touches.
//
// Pointers were already rewritten to their final values by updatePointers,
// including the derived inline-cache target slots VisitCodeTarget computes
// from each owner's already-known destination; relocation itself only needs
// to move bytes and restore each object's real Map pointer over the
// Forwarded encoding it overwrote.
func (c *Collector) relocateObjects() {
	c.relocatePagedSpace(c.h.MapSpace)
	c.relocatePagedSpace(c.h.Old)
	c.relocatePagedSpace(c.h.Code)
	c.relocateNewSpace()

	c.h.New.Flip()
	c.h.New.SetAgeMark(c.h.New.ToLow())
}

func (c *Collector) relocatePagedSpace(space *heap.PagedSpace) {
	space.IterateAllocated(func(addr heap.Address) {
		w := c.h.MapWordAt(addr)
		if w.Kind() != mapword.Forwarded {
			return
		}
		fp := w.Forward()
		mapAddr := c.h.MapFromForward(fp)
		size := c.h.SizeFromMap(addr, mapAddr)
		srcPage := space.PageContaining(addr)
		dest := space.ResolveForwardedAddress(srcPage.MCFirstForwarded(), int(fp.Offset))

		if dest != addr {
			c.h.CopyBytes(dest, addr, size)
		}
		c.h.SetMap(dest, mapAddr)
		c.stats.ObjectsRelocated++
		if space.ID() == heap.CodeSpaceID && c.h.InstanceTypeFromMap(mapAddr) == heap.CodeInstanceType {
			c.stats.CodeObjectsMoved++
		}
		c.tracef(EventRelocate, "relocate", space.ID().String(), fmt.Sprintf("%#x -> %#x", uintptr(addr), uintptr(dest)))
	})
	space.MCCommitRelocationInfo()
}

// relocateNewSpace copies every promoted or retained new-space survivor to
// the destination the mirror array recorded during encoding. A survivor's
// own map word was never forward-encoded, so the copy carries its real map
// pointer across verbatim; only the stale mark bit needs clearing at the
// destination.
func (c *Collector) relocateNewSpace() {
	c.h.New.IterateLive(func(addr heap.Address) {
		w := c.h.MapWordAt(addr)
		if !w.IsMarked() {
			return
		}
		size := c.h.Size(addr)
		k := c.h.New.ToSpaceOffsetForAddress(addr)
		dest := c.h.New.ReadMirror(k)
		if dest.IsNull() {
			// Every destination space was exhausted while encoding this
			// object (spec.md §7 treats this as a fatal condition for a
			// correctly sized heap); drop it rather than write through a
			// null address.
			return
		}
		if dest != addr {
			c.h.CopyBytes(dest, addr, size)
		}
		destWord := c.h.MapWordAt(dest)
		c.h.SetMapWordAt(dest, destWord.ClearMark())
		c.stats.ObjectsRelocated++
		c.tracef(EventRelocate, "relocate", "new", fmt.Sprintf("%#x -> %#x", uintptr(addr), uintptr(dest)))
	})
}
