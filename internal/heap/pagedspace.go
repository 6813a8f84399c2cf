package heap

import "fmt"

// PagedSpace implements Space for the three compactable, page-structured
// spaces: old, code and map (spec.md §3). The three differ only in their
// SpaceID and in how the gc package chooses to treat objects allocated
// into them; the page/free-list machinery is identical, matching V8's own
// shared PagedSpace base.
type PagedSpace struct {
	id    SpaceID
	heap  *Heap
	pages []*Page

	// Normal (pre-GC) bump-allocation cursor, used by Allocate to populate
	// a heap fixture before a collection runs.
	allocPageIdx int
	allocTop     Address

	// Relocation cursor used by MCAllocateRaw during forwarding-address
	// encoding (§4.5), reset by MCResetRelocationInfo (part of Prepare).
	mcPageIdx int
	mcTop     Address

	wasteBytes int
}

func newPagedSpace(h *Heap, id SpaceID, base Address, numPages int) *PagedSpace {
	s := &PagedSpace{id: id, heap: h}
	for i := 0; i < numPages; i++ {
		start := base.Add(i * PageObjectAreaSize)
		s.pages = append(s.pages, &Page{
			id:    i,
			start: start,
			end:   start.Add(PageObjectAreaSize),
		})
	}
	s.allocTop = s.pages[0].start
	return s
}

func (s *PagedSpace) ID() SpaceID   { return s.id }
func (s *PagedSpace) Pages() []*Page { return s.pages }

func (s *PagedSpace) Contains(a Address) bool {
	if len(s.pages) == 0 {
		return false
	}
	return a >= s.pages[0].start && a < s.pages[len(s.pages)-1].end
}

func (s *PagedSpace) pageContaining(a Address) *Page {
	for _, p := range s.pages {
		if a >= p.start && a < p.end {
			return p
		}
	}
	return nil
}

// pageIndexContaining returns the index of the page containing a, or -1.
func (s *PagedSpace) pageIndexContaining(a Address) int {
	for i, p := range s.pages {
		if a >= p.start && a < p.end {
			return i
		}
	}
	return -1
}

// PageIndexContaining is the exported form of pageIndexContaining, used by
// the forwarding encoder to locate a Map's page and slot.
func (s *PagedSpace) PageIndexContaining(a Address) int { return s.pageIndexContaining(a) }

// PageContaining is the exported form of pageContaining.
func (s *PagedSpace) PageContaining(a Address) *Page { return s.pageContaining(a) }

// PageStart returns the object-area start address of the page at idx,
// recoverable from a Forwarded map word's page-index field.
func (s *PagedSpace) PageStart(idx int) Address { return s.pages[idx].start }

// AllocatedLimit returns how far into p's object area the normal (pre-GC)
// allocation cursor has reached: p.End() for pages already passed by the
// cursor, the cursor itself for the current page, and p.Start() (i.e.
// nothing) for pages not yet reached.
func (s *PagedSpace) AllocatedLimit(p *Page) Address {
	switch {
	case p.id < s.allocPageIdx:
		return p.end
	case p.id == s.allocPageIdx:
		return s.allocTop
	default:
		return p.start
	}
}

// IterateAllocated calls visit(addr) for every object address currently
// allocated (live or dead) across all pages, in page and address order,
// using each object's own size to advance. Used by the mark phase's
// overflow-rescan pass, which must revisit every already-marked object
// regardless of whether it is still reachable through the marking stack.
func (s *PagedSpace) IterateAllocated(visit func(addr Address)) {
	for _, p := range s.pages {
		limit := s.AllocatedLimit(p)
		addr := p.start
		for addr.Sub(limit) < 0 {
			size := s.heap.Size(addr)
			visit(addr)
			addr = addr.Add(size)
		}
	}
}

// Allocate bump-allocates size bytes for pre-GC heap population.
func (s *PagedSpace) Allocate(size int) (Address, bool) {
	for {
		page := s.pages[s.allocPageIdx]
		if s.allocTop.Add(size).Sub(page.end) <= 0 {
			addr := s.allocTop
			s.allocTop = s.allocTop.Add(size)
			return addr, true
		}
		if s.allocPageIdx+1 >= len(s.pages) {
			return NullAddress, false
		}
		s.allocPageIdx++
		s.allocTop = s.pages[s.allocPageIdx].start
	}
}

// PrepareForMarkCompact clears residual compaction state and resets the
// relocation cursor (spec.md §4.1).
func (s *PagedSpace) PrepareForMarkCompact(compacting bool) {
	s.wasteBytes = 0
	for _, p := range s.pages {
		p.resetRelocationInfo()
	}
	s.MCResetRelocationInfo()
}

// Waste reports the byte count of fragmentation slack recorded for the
// space. PrepareForMarkCompact resets it to zero and nothing adds to it, so
// it always reports 0; page-tail slack left by Allocate is not counted.
func (s *PagedSpace) Waste() int { return s.wasteBytes }

// AvailableFree is the sum of all free-list entries plus untouched space
// ahead of the normal allocation cursor.
func (s *PagedSpace) AvailableFree() int {
	free := 0
	for _, p := range s.pages {
		for _, b := range p.freeList {
			free += b.Size
		}
	}
	for i := s.allocPageIdx; i < len(s.pages); i++ {
		p := s.pages[i]
		if i == s.allocPageIdx {
			free += p.end.Sub(s.allocTop)
		} else {
			free += p.objectAreaSize()
		}
	}
	return free
}

// Size is the total object-area byte capacity of the space.
func (s *PagedSpace) Size() int {
	total := 0
	for _, p := range s.pages {
		total += p.objectAreaSize()
	}
	return total
}

// MCAllocateRaw hands out the next destination address during forwarding
// encoding, advancing across pages as needed. It never fails in a
// correctly-sized test heap (spec.md §7: compacting allocation must never
// fail since the destination space holds no more live data than the
// source); a false return is still possible during promotion attempts from
// new space, where the caller falls back to keeping the object in new space.
func (s *PagedSpace) MCAllocateRaw(size int) (Address, bool) {
	for {
		if s.mcPageIdx >= len(s.pages) {
			return NullAddress, false
		}
		page := s.pages[s.mcPageIdx]
		if s.mcTop.Add(size).Sub(page.end) <= 0 {
			addr := s.mcTop
			s.mcTop = s.mcTop.Add(size)
			page.usedByMC = true
			return addr, true
		}
		s.mcPageIdx++
		if s.mcPageIdx < len(s.pages) {
			s.mcTop = s.pages[s.mcPageIdx].start
		}
	}
}

// MCResetRelocationInfo rewinds the relocation cursor to the start of the
// space, ready for a fresh forwarding-address encoding pass.
func (s *PagedSpace) MCResetRelocationInfo() {
	s.mcPageIdx = 0
	if len(s.pages) > 0 {
		s.mcTop = s.pages[0].start
	}
}

// MCWriteRelocationInfoToPage publishes the current relocation cursor into
// every page's RelocationTop high-water mark (spec.md §4.5, final step).
// Pages fully consumed before the cursor's current page get their page end
// as the mark; the current page gets the cursor itself; pages never
// reached by this cycle's allocation keep the NullAddress sentinel.
func (s *PagedSpace) MCWriteRelocationInfoToPage() {
	for i, p := range s.pages {
		switch {
		case i < s.mcPageIdx:
			p.relocationTop = p.end
		case i == s.mcPageIdx:
			p.relocationTop = s.mcTop
		default:
			p.relocationTop = NullAddress
		}
	}
}

// MCCommitRelocationInfo publishes the post-compaction allocation top as
// the space's new normal allocation cursor and reclaims pre-compaction
// pages beyond it, matching spec.md §4.7's "commit each space's relocation
// info" step.
func (s *PagedSpace) MCCommitRelocationInfo() {
	s.allocPageIdx = s.mcPageIdx
	s.allocTop = s.mcTop
	for i := s.allocPageIdx + 1; i < len(s.pages); i++ {
		s.pages[i].freeList = nil
	}
}

// MCSpaceOffsetForAddress returns a's byte offset from the start of its
// containing page, or -1 if no page contains a. The forwarding encoder uses
// it to record a Map's offset within its page in each Forwarded map word.
func (s *PagedSpace) MCSpaceOffsetForAddress(a Address) int {
	p := s.pageContaining(a)
	if p == nil {
		return -1
	}
	return a.Sub(p.start)
}

// Free returns [addr, addr+size) to the free list (spec.md §4.8). Single
// words and larger runs are both recorded uniformly here. Free writes no
// map-word free-region encoding (§3); in package gc only the compacting
// forwarding encoder writes one, and the sweeper that calls Free never does.
func (s *PagedSpace) Free(addr Address, size int) {
	p := s.pageContaining(addr)
	if p == nil {
		return
	}
	if s.id == MapSpaceID {
		// Map space splits any reclaimed unit into map-sized chunks, since
		// every consumer of a freed map-space block assumes it is exactly
		// one map (spec.md §4.8).
		for off := 0; off+MapObjectSize <= size; off += MapObjectSize {
			p.freeList = append(p.freeList, FreeBlock{Addr: addr.Add(off), Size: MapObjectSize})
		}
		return
	}
	p.freeList = append(p.freeList, FreeBlock{Addr: addr, Size: size})
}

// TakeFree pops a free block of at least size bytes, if one exists,
// splitting it when it's larger than needed, for callers that want to reuse
// swept space instead of growing the bump cursor. Neither the collector nor
// cmd/mcgc calls it; Allocate never consults the free list.
func (s *PagedSpace) TakeFree(size int) (Address, bool) {
	for _, p := range s.pages {
		for i, b := range p.freeList {
			if b.Size < size {
				continue
			}
			if b.Size == size {
				p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
			} else {
				p.freeList[i] = FreeBlock{Addr: b.Addr.Add(size), Size: b.Size - size}
			}
			return b.Addr, true
		}
	}
	return NullAddress, false
}

// ResolveForwardedAddress computes an object's post-compaction address
// given the destination recorded for the first live object of its source
// page (firstForwarded) and its own forwarding offset within that source
// page. When offset would carry the address past the destination page's
// recorded relocation high-water mark, it wraps into the next destination
// page (spec.md §4.6, the cross-page forwarding boundary case of §8
// scenario 6).
func (s *PagedSpace) ResolveForwardedAddress(firstForwarded Address, offset int) Address {
	page := s.pageContaining(firstForwarded)
	addr := firstForwarded.Add(offset)
	for page != nil && addr.Sub(page.relocationTop) > 0 {
		remainder := addr.Sub(page.relocationTop)
		nextIdx := page.id + 1
		if nextIdx >= len(s.pages) {
			break
		}
		next := s.pages[nextIdx]
		addr = next.start.Add(remainder)
		page = next
	}
	return addr
}

func (s *PagedSpace) String() string {
	return fmt.Sprintf("%s space (%d pages, %d bytes)", s.id, len(s.pages), s.Size())
}
