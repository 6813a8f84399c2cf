package heap

// NewSpace is the young generation: two semispaces, `from` and `to`, that
// swap roles on every collection (spec.md §3). The mutator always
// allocates into `to`; during a mark-compact cycle `from` holds no live
// data and is repurposed three ways at once, sequentially: as the marking
// stack's backing store (phase 1), as the mirror array recording survivor
// destinations (phase 2), and as the bump-allocation arena for survivors
// that are not promoted out of new space (phase 2-4).
type NewSpace struct {
	heap          *Heap
	semispaceSize int
	baseA, baseB  Address
	fromIsA       bool

	allocTop Address // mutator / pre-GC bump cursor within `to`
	ageMark  Address

	mcTop Address // survivor-destination bump cursor within (pre-flip) `from`
}

func newNewSpace(h *Heap, base Address, semispaceSize int) *NewSpace {
	s := &NewSpace{
		heap:          h,
		semispaceSize: semispaceSize,
		baseA:         base,
		baseB:         base.Add(semispaceSize),
		fromIsA:       true, // `to` starts as B, `from` as A
	}
	s.allocTop = s.toStart()
	s.ageMark = s.toStart()
	return s
}

func (s *NewSpace) toStart() Address {
	if s.fromIsA {
		return s.baseB
	}
	return s.baseA
}

func (s *NewSpace) fromStart() Address {
	if s.fromIsA {
		return s.baseA
	}
	return s.baseB
}

// ToLow and ToHigh bound the active semispace.
func (s *NewSpace) ToLow() Address  { return s.toStart() }
func (s *NewSpace) ToHigh() Address { return s.toStart().Add(s.semispaceSize) }

// FromLow and FromHigh bound the inactive semispace.
func (s *NewSpace) FromLow() Address  { return s.fromStart() }
func (s *NewSpace) FromHigh() Address { return s.fromStart().Add(s.semispaceSize) }

// Bottom is the address new-generation objects start at.
func (s *NewSpace) Bottom() Address { return s.ToLow() }

// Top is the mutator's current allocation cursor.
func (s *NewSpace) Top() Address { return s.allocTop }

// AgeMark returns the boundary between aged and fresh young objects.
func (s *NewSpace) AgeMark() Address { return s.ageMark }

// SetAgeMark sets the age-mark boundary, called after relocation (§4.7).
func (s *NewSpace) SetAgeMark(a Address) { s.ageMark = a }

// Contains reports whether a lies in the active semispace.
func (s *NewSpace) Contains(a Address) bool {
	return a >= s.ToLow() && a < s.ToHigh()
}

// ContainsInFrom reports whether a lies in the inactive semispace, where
// survivors that stay in new space are given destinations before the
// post-relocation Flip. The collector itself does not call it.
func (s *NewSpace) ContainsInFrom(a Address) bool {
	return a >= s.FromLow() && a < s.FromHigh()
}

// Allocate bump-allocates size bytes from the active semispace.
func (s *NewSpace) Allocate(size int) (Address, bool) {
	if s.allocTop.Add(size).Sub(s.ToHigh()) > 0 {
		return NullAddress, false
	}
	addr := s.allocTop
	s.allocTop = s.allocTop.Add(size)
	return addr, true
}

// ToSpaceOffsetForAddress returns a's byte offset from the start of the
// active semispace.
func (s *NewSpace) ToSpaceOffsetForAddress(a Address) int {
	return a.Sub(s.ToLow())
}

// FromSpaceOffsetForAddress returns a's byte offset from the start of the
// inactive semispace.
func (s *NewSpace) FromSpaceOffsetForAddress(a Address) int {
	return a.Sub(s.FromLow())
}

// PrepareForMarkCompact resets the survivor-destination cursor ahead of a
// new cycle (spec.md §4.1).
func (s *NewSpace) PrepareForMarkCompact() {
	s.mcTop = s.FromLow()
}

// MCAllocateRaw hands out the next survivor-destination address for an
// object that is not promoted out of new space, bump-allocating within the
// (pre-flip) inactive semispace.
func (s *NewSpace) MCAllocateRaw(size int) (Address, bool) {
	if s.mcTop.Add(size).Sub(s.FromHigh()) > 0 {
		return NullAddress, false
	}
	addr := s.mcTop
	s.mcTop = s.mcTop.Add(size)
	return addr, true
}

// WriteMirror records dest as the forwarding address of the live object
// currently at offset k in the active (`to`) semispace, storing it at the
// matching offset k in the inactive (`from`) semispace (spec.md §3).
func (s *NewSpace) WriteMirror(k int, dest Address) {
	s.heap.writeAddr(s.FromLow().Add(k), dest)
}

// ReadMirror reads the forwarding address previously recorded at offset k.
func (s *NewSpace) ReadMirror(k int) Address {
	return s.heap.readAddr(s.FromLow().Add(k))
}

// Flip swaps the roles of the two semispaces after relocation (§4.7) and
// resets the mutator allocation cursor to the new `to`'s bottom.
func (s *NewSpace) Flip() {
	s.fromIsA = !s.fromIsA
	s.allocTop = s.ToLow()
}

// IterateLive calls visit(addr) for every object address from Bottom() up
// to Top(), using the object's own size to advance. Used by the forwarding
// encoder and pointer updater, which determine liveness from the mark bit
// themselves.
func (s *NewSpace) IterateLive(visit func(addr Address)) {
	addr := s.Bottom()
	top := s.Top()
	for addr.Sub(top) < 0 {
		visit(addr)
		addr = addr.Add(s.heap.Size(addr))
	}
}
