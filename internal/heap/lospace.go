package heap

// LargeObject is one entry of the large-object space: an object that
// exceeded the paged-space size threshold and lives in its own backing
// buffer, never relocated (spec.md §3). Its first bytes are a map word
// exactly like any other object's, so the generic Size/IterateBody/mark
// accessors work on it unmodified; only its address is handled specially
// (never decoded as Forwarded, never moved).
type LargeObject struct {
	addr Address
	buf  []byte
}

// Addr returns the large object's (permanent) address.
func (o *LargeObject) Addr() Address { return o.addr }

// LargeObjectSpace holds every live large object, each in its own
// separately allocated buffer rather than a shared arena, mirroring real
// large-object spaces where each object gets its own set of pages.
type LargeObjectSpace struct {
	heap    *Heap
	nextTag Address
	objects []*LargeObject
	byAddr  map[Address]*LargeObject
}

func newLargeObjectSpace(h *Heap, base Address) *LargeObjectSpace {
	return &LargeObjectSpace{heap: h, nextTag: base, byAddr: map[Address]*LargeObject{}}
}

// Allocate reserves a size-byte large object and returns its address,
// satisfying the Allocator interface so the heap.NewXxx constructors can
// target the large-object space exactly as they would old/code/new space.
func (s *LargeObjectSpace) Allocate(size int) (Address, bool) {
	addr := s.nextTag
	// Leave a one-word gap between large objects so no address arithmetic
	// performed elsewhere can mistake one object's end for another's start.
	s.nextTag = s.nextTag.Add(size + WordSize)
	obj := &LargeObject{addr: addr, buf: make([]byte, size)}
	s.objects = append(s.objects, obj)
	s.byAddr[addr] = obj
	return addr, true
}

// Contains reports whether a falls within some live large object's buffer.
func (s *LargeObjectSpace) Contains(a Address) bool {
	_, ok := s.objectCovering(a)
	return ok
}

func (s *LargeObjectSpace) objectCovering(a Address) (*LargeObject, bool) {
	o, ok := s.byAddr[a]
	if ok {
		return o, true
	}
	// Fields within an object's body also resolve through here (bytesAt is
	// called with arbitrary in-object offsets, not just object starts).
	for _, o := range s.objects {
		if a >= o.addr && a.Sub(o.addr) < len(o.buf) {
			return o, true
		}
	}
	return nil, false
}

// Objects returns every currently-live large object.
func (s *LargeObjectSpace) Objects() []*LargeObject { return s.objects }

// FreeUnmarkedObjects deallocates every large object whose map word is not
// Marked this cycle and clears the mark bit of survivors (spec.md §4.4). It
// returns the number of objects freed and the bytes reclaimed.
func (s *LargeObjectSpace) FreeUnmarkedObjects() (freed int, bytes int) {
	kept := s.objects[:0]
	for _, o := range s.objects {
		w := s.heap.MapWordAt(o.addr)
		if w.IsMarked() {
			s.heap.SetMapWordAt(o.addr, w.ClearMark())
			kept = append(kept, o)
			continue
		}
		delete(s.byAddr, o.addr)
		freed++
		bytes += len(o.buf)
	}
	s.objects = kept
	return freed, bytes
}

// Size is the total byte size of all live large objects.
func (s *LargeObjectSpace) Size() int {
	total := 0
	for _, o := range s.objects {
		total += len(o.buf)
	}
	return total
}
