package gc

import (
	"fmt"

	"github.com/MaimaityMaitity/mcgc/internal/heap"
	"github.com/MaimaityMaitity/mcgc/internal/mapword"
)

// encodeForwardingAddresses computes and records the post-compaction address
// of every live object, in the mandated space order old, code, new, map
// last (spec.md §4.5). Map space goes last because every other space's
// encoding pass needs to read a Map's still-unforwarded location to record
// it inside a Forwarded word; maps themselves are only ever pointed to, not
// forwarded-through, by any other space's encoding.
func (c *Collector) encodeForwardingAddresses() error {
	if err := c.encodePagedSpace(c.h.Old); err != nil {
		return err
	}
	if err := c.encodePagedSpace(c.h.Code); err != nil {
		return err
	}
	if err := c.encodeNewSpace(); err != nil {
		return err
	}
	if err := c.encodePagedSpace(c.h.MapSpace); err != nil {
		return err
	}
	c.h.Old.MCWriteRelocationInfoToPage()
	c.h.Code.MCWriteRelocationInfoToPage()
	c.h.MapSpace.MCWriteRelocationInfoToPage()
	return nil
}

// encodePagedSpace walks space's pages in source address order. Each live
// object is handed the next destination address from space's own relocation
// cursor (old/code/map objects never change space) and its map word is
// overwritten with a Forwarded encoding recording that destination,
// expressed as (this source page's first-forwarded destination, offset).
// Consecutive dead objects are coalesced into a single free region and
// marked with the Free-region encoding on the live-to-dead boundary (spec.md
// §3, §4.5), exactly as EncodeForwardingAddressesInRange does in the
// original (mark-compact.cc:871,885) rather than waiting for sweep.
func (c *Collector) encodePagedSpace(space *heap.PagedSpace) error {
	for _, page := range space.Pages() {
		var firstForwarded heap.Address
		haveFirst := false
		addr := page.Start()
		limit := space.AllocatedLimit(page)
		var deadStart heap.Address
		deadSize := 0
		deadOpen := false
		flushDead := func() {
			if !deadOpen {
				return
			}
			c.encodeFreeRegion(deadStart, deadSize)
			deadOpen = false
		}
		for addr.Sub(limit) < 0 {
			w := c.h.MapWordAt(addr)
			size := c.h.Size(addr)
			if !w.IsMarked() {
				if space.ID() == heap.CodeSpaceID && c.h.InstanceTypeOf(addr) == heap.CodeInstanceType {
					c.stats.CodeObjectsDeleted++
				}
				if !deadOpen {
					deadStart = addr
					deadSize = 0
					deadOpen = true
				}
				deadSize += size
				addr = addr.Add(size)
				continue
			}
			flushDead()
			mapAddr := c.h.MapOf(addr)
			dest, ok := space.MCAllocateRaw(size)
			if !ok {
				return fmt.Errorf("gc: %s space exhausted during compaction", space.ID())
			}
			if !haveFirst {
				page.SetMCFirstForwarded(dest)
				firstForwarded = dest
				haveFirst = true
			}
			offset := dest.Sub(firstForwarded)
			if offset < 0 || offset > mapword.MaxOffset {
				return fmt.Errorf("gc: %s space: forwarding offset %d exceeds encodable range", space.ID(), offset)
			}
			mapPageIdx := c.h.MapSpace.PageIndexContaining(mapAddr)
			mapPageOffset := c.h.MapSpace.MCSpaceOffsetForAddress(mapAddr)
			c.h.SetMapWordAt(addr, mapword.EncodeForwarded(mapword.ForwardPayload{
				PageIndex:  uint32(mapPageIdx),
				PageOffset: uint32(mapPageOffset),
				Offset:     uint32(offset),
			}))
			c.tracef(EventForward, "forward", space.ID().String(), fmt.Sprintf("%#x -> %#x", uintptr(addr), uintptr(dest)))
			addr = addr.Add(size)
		}
		flushDead()
	}
	return nil
}

// encodeFreeRegion writes the Free-region map word for a coalesced dead run
// of size bytes starting at start: the single-word constant when the run is
// exactly one word, otherwise the multi-word constant with the run's byte
// size recorded in the following word (spec.md §3, §8).
func (c *Collector) encodeFreeRegion(start heap.Address, size int) {
	if size == heap.WordSize {
		c.h.SetMapWordAt(start, mapword.FreeSingleWord())
		return
	}
	c.h.SetMapWordAt(start, mapword.FreeMultiWord())
	c.h.WriteSlot(start.Add(heap.WordSize), heap.Address(size))
}

// encodeNewSpace forwards every live (surviving) new-space object. New-space
// objects never carry a Forwarded map word: their destination is recorded
// instead in the mirror array backed by the (pre-flip) inactive semispace,
// keyed by the object's current offset within the active semispace (spec.md
// §3), since a full collection promotes every survivor out and so never
// needs to distinguish a new-space object's own Map location from anyone
// else's.
func (c *Collector) encodeNewSpace() error {
	var failure error
	c.h.New.IterateLive(func(addr heap.Address) {
		if failure != nil {
			return
		}
		w := c.h.MapWordAt(addr)
		if !w.IsMarked() {
			return
		}
		size := c.h.Size(addr)
		target := targetSpaceForPromotion(c.h, addr)
		var dest heap.Address
		var ok bool
		switch target {
		case heap.CodeSpaceID:
			dest, ok = c.h.Code.MCAllocateRaw(size)
		default:
			dest, ok = c.h.Old.MCAllocateRaw(size)
		}
		if !ok {
			// Defensive fallback only; a correctly sized heap never needs
			// new-space survivors to stay in new space during a full
			// collection (spec.md §7).
			dest, ok = c.h.New.MCAllocateRaw(size)
		}
		if !ok {
			failure = fmt.Errorf("gc: no destination space had room to promote new-space object %#x", uintptr(addr))
			return
		}
		k := c.h.New.ToSpaceOffsetForAddress(addr)
		c.h.New.WriteMirror(k, dest)
		c.tracef(EventForward, "forward", "new", fmt.Sprintf("%#x -> %#x", uintptr(addr), uintptr(dest)))
	})
	return failure
}
