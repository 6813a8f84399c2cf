package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/MaimaityMaitity/mcgc/internal/mapword"
)

// InstanceType is the discriminator a Map carries for the objects it
// describes, analogous to V8's instance-type byte.
type InstanceType int

const (
	// MapInstanceType marks Map objects themselves.
	MapInstanceType InstanceType = iota
	// HeapNumberInstanceType is a fixed-size, pointer-free boxed float.
	HeapNumberInstanceType
	// SeqStringInstanceType is a variable-size, pointer-free byte string.
	SeqStringInstanceType
	// ConsStringInstanceType is a fixed-size two-pointer string concatenation.
	ConsStringInstanceType
	// FixedArrayInstanceType is a variable-size array of pointers; this is
	// the catch-all "plain object" category for promotion purposes (§4.5:
	// "all others -> old space").
	FixedArrayInstanceType
	// ByteArrayInstanceType is a variable-size, pointer-free raw byte blob,
	// used both as ordinary data and as a sweep/new-space filler object.
	ByteArrayInstanceType
	// CodeInstanceType is a fixed-size object carrying one inline-cache call
	// target slot.
	CodeInstanceType
)

func (t InstanceType) String() string {
	switch t {
	case MapInstanceType:
		return "Map"
	case HeapNumberInstanceType:
		return "HeapNumber"
	case SeqStringInstanceType:
		return "SeqString"
	case ConsStringInstanceType:
		return "ConsString"
	case FixedArrayInstanceType:
		return "FixedArray"
	case ByteArrayInstanceType:
		return "ByteArray"
	case CodeInstanceType:
		return "Code"
	default:
		return "Unknown"
	}
}

// IsVariableSize reports whether instances of t store a payload-byte count
// immediately after the map word instead of having a fixed Map.InstanceSize.
func (t InstanceType) IsVariableSize() bool {
	switch t {
	case SeqStringInstanceType, FixedArrayInstanceType, ByteArrayInstanceType:
		return true
	default:
		return false
	}
}

// HasPointers reports whether instances of t contain heap-object pointers
// in their body (beyond the map word).
func (t InstanceType) HasPointers() bool {
	switch t {
	case ConsStringInstanceType, FixedArrayInstanceType, CodeInstanceType:
		return true
	default:
		return false
	}
}

// Object header layout constants, in bytes. Every object begins with an
// 8-byte map word. Fixed-size instance types have no further header; the
// variable-size ones store an 8-byte payload-byte count immediately after
// the map word.
const (
	MapWordSize = WordSize

	VariableHeaderSize = MapWordSize + WordSize // map word + payload length

	MapObjectSize   = MapWordSize + WordSize + WordSize             // map word + instance type + instance size
	HeapNumberSize  = MapWordSize + WordSize                        // map word + float64 bits
	ConsStringSize  = MapWordSize + WordSize + WordSize             // map word + left + right
	CodeObjectSize  = MapWordSize + WordSize + WordSize + WordSize  // map word + target slot + debug-target slot + flags
	CodeHeaderSize  = MapWordSize                                   // bytes subtracted from a derived pointer to recover the code object
	codeFlagICStub  = 1 << 0
)

// MapLayout is the decoded, read-only view of a Map object: its instance
// type and either a fixed instance size or the "variable size" marker (0).
type MapLayout struct {
	InstanceType InstanceType
	InstanceSize int // 0 means variable-size; real size is read from the object
}

// Heap ties spaces, the arena and root bookkeeping together. See heap.go for
// construction and wiring; this file only implements the Object/Map accessor
// surface spec.md §6 calls out.
//
// readWord/writeWord and readAddr/writeAddr resolve a into whichever
// backing store currently owns it (the shared arena, or a large object's
// own buffer) and are defined at the end of this file.

// MapWordAt returns the raw map word stored at objAddr.
func (h *Heap) MapWordAt(objAddr Address) mapword.Word {
	return mapword.Word(h.readWord(objAddr))
}

// SetMapWordAt overwrites the map word stored at objAddr.
func (h *Heap) SetMapWordAt(objAddr Address, w mapword.Word) {
	h.writeWord(objAddr, uint64(w))
}

// MapOf returns the address of objAddr's Map. objAddr's map word must be
// Unmarked (a plain pointer) or Marked/MarkedOverflowed.
func (h *Heap) MapOf(objAddr Address) Address {
	w := h.MapWordAt(objAddr)
	return Address(w.Pointer())
}

// currentMapAddr resolves objAddr's Map regardless of what phase of a
// collection cycle is in progress: a plain pointer for an Unmarked or
// Marked(+overflowed) word, or the map recovered from a Forwarded word's
// recorded (page index, page offset) once forwarding-address encoding has
// run (spec.md §4.5/§4.6). Every generic size/instance-type/body accessor
// goes through this so the pointer-update and relocation phases can keep
// calling them unchanged after an object's own word stops being a plain
// pointer.
func (h *Heap) currentMapAddr(objAddr Address) Address {
	w := h.MapWordAt(objAddr)
	if w.Kind() == mapword.Forwarded {
		return h.MapFromForward(w.Forward())
	}
	return Address(w.Pointer())
}

// AssumeMarked returns the Map of an object whose map word is known to
// already be Marked, without re-deriving that fact from the tag bits. This
// is the explicit accessor spec.md §9 asks for in place of a raw bit
// reinterpretation. The symbol-table prune step does not call it: it reads
// the table's slot range from its payload length (SymbolTable.SlotRange)
// and never needs the table's Map.
func (h *Heap) AssumeMarked(objAddr Address) Address {
	return h.MapOf(objAddr)
}

// MapFromForward recovers the address of an object's Map after its own map
// word has been overwritten with a Forwarded encoding, using the (page
// index, page offset) pair the forwarding encoder recorded against the
// map's still-valid location at the time of encoding (spec.md §4.5/§4.6).
func (h *Heap) MapFromForward(fp mapword.ForwardPayload) Address {
	return h.MapSpace.PageStart(int(fp.PageIndex)).Add(int(fp.PageOffset))
}

// SetMap installs mapAddr as objAddr's map, clearing any mark/overflow/
// forwarding state.
func (h *Heap) SetMap(objAddr, mapAddr Address) {
	h.SetMapWordAt(objAddr, mapword.EncodeUnmarked(uint64(mapAddr)))
}

// layout decodes the MapLayout described by the Map object at mapAddr.
func (h *Heap) layout(mapAddr Address) MapLayout {
	instanceType := InstanceType(h.readWord(mapAddr.Add(WordSize)))
	instanceSize := int(h.readWord(mapAddr.Add(2 * WordSize)))
	return MapLayout{InstanceType: instanceType, InstanceSize: instanceSize}
}

// InstanceTypeFromMap returns the instance type described by the Map at
// mapAddr directly, for callers (the relocation phase) that have already
// resolved a Forwarded object's map and want its layout without re-deriving
// it from the object's own (already-relocated-away) map word.
func (h *Heap) InstanceTypeFromMap(mapAddr Address) InstanceType {
	return h.layout(mapAddr).InstanceType
}

// NewMap allocates a Map object in the map space describing instances of
// the given type and fixed size (0 for variable-size instances), and
// returns its address. metaMap is the map of the Map object itself.
func (h *Heap) NewMap(metaMap Address, instanceType InstanceType, instanceSize int) (Address, error) {
	addr, ok := h.MapSpace.Allocate(MapObjectSize)
	if !ok {
		return NullAddress, fmt.Errorf("heap: map space exhausted allocating %s map", instanceType)
	}
	h.SetMap(addr, metaMap)
	h.writeWord(addr.Add(WordSize), uint64(instanceType))
	h.writeWord(addr.Add(2*WordSize), uint64(instanceSize))
	return addr, nil
}

// SizeFromMap returns the byte size of the object at objAddr whose map is
// mapAddr. For variable-size instance types the size is read from the
// object's own payload-length field, per spec.md §6's SizeFromMap(map).
func (h *Heap) SizeFromMap(objAddr, mapAddr Address) int {
	l := h.layout(mapAddr)
	if !l.InstanceType.IsVariableSize() {
		if l.InstanceType == MapInstanceType {
			return MapObjectSize
		}
		return l.InstanceSize
	}
	payload := int(h.readWord(objAddr.Add(WordSize)))
	return VariableHeaderSize + payload
}

// Size returns the byte size of the object (or, during compaction, free
// region) at objAddr: the Free-region encodings compacting encoding writes
// over a dead run's first word carry their own size (one word, or the
// following word's recorded value) since they no longer point at a Map at
// all; otherwise this works whether objAddr's map word is still a plain
// (Unmarked/Marked) pointer or has already been overwritten with a
// Forwarded encoding (see currentMapAddr).
func (h *Heap) Size(objAddr Address) int {
	w := h.MapWordAt(objAddr)
	switch w.Kind() {
	case mapword.FreeSingle:
		return WordSize
	case mapword.FreeMulti:
		return int(h.readWord(objAddr.Add(WordSize)))
	}
	mapAddr := h.currentMapAddr(objAddr)
	return h.SizeFromMap(objAddr, mapAddr)
}

// PayloadBytes returns the number of payload bytes of a variable-size
// object, i.e. the value IterateBody and SizeFromMap derive the body range
// and total size from.
func (h *Heap) PayloadBytes(objAddr Address) int {
	return int(h.readWord(objAddr.Add(WordSize)))
}

// SetPayloadBytes sets the payload-byte count of a variable-size object.
func (h *Heap) SetPayloadBytes(objAddr Address, n int) {
	h.writeWord(objAddr.Add(WordSize), uint64(n))
}

// --- Fixed-layout constructors/accessors used by tests and the CLI ---

// NewHeapNumber allocates a pointer-free boxed float in the new space.
func (h *Heap) NewHeapNumber(mapAddr Address, value uint64) (Address, error) {
	addr, ok := h.New.Allocate(HeapNumberSize)
	if !ok {
		return NullAddress, fmt.Errorf("heap: new space exhausted allocating heap number")
	}
	h.SetMap(addr, mapAddr)
	h.writeWord(addr.Add(WordSize), value)
	return addr, nil
}

// NewConsString allocates a two-pointer string concatenation.
func (h *Heap) NewConsString(mapAddr, left, right Address, space Allocator) (Address, error) {
	addr, ok := space.Allocate(ConsStringSize)
	if !ok {
		return NullAddress, fmt.Errorf("heap: space exhausted allocating cons string")
	}
	h.SetMap(addr, mapAddr)
	h.writeAddr(addr.Add(WordSize), left)
	h.writeAddr(addr.Add(2*WordSize), right)
	return addr, nil
}

// ConsStringParts returns the (left, right) pointers of a ConsString.
func (h *Heap) ConsStringParts(addr Address) (left, right Address) {
	return h.readAddr(addr.Add(WordSize)), h.readAddr(addr.Add(2 * WordSize))
}

// SetConsStringLeft overwrites only the left part. The ConsString elision
// short-circuit does not use it; it rewrites the referring slot instead.
func (h *Heap) SetConsStringLeft(addr, left Address) {
	h.writeAddr(addr.Add(WordSize), left)
}

// IsEmptyString reports whether addr is the canonical empty sequential
// string (length 0).
func (h *Heap) IsEmptyString(mapAddr, addr Address) bool {
	l := h.layout(mapAddr)
	return l.InstanceType == SeqStringInstanceType && h.PayloadBytes(addr) == 0
}

// NewFixedArray allocates a variable-size pointer array of n elements, all
// initialized to NullAddress.
func (h *Heap) NewFixedArray(mapAddr Address, n int, space Allocator) (Address, error) {
	size := VariableHeaderSize + n*WordSize
	addr, ok := space.Allocate(size)
	if !ok {
		return NullAddress, fmt.Errorf("heap: space exhausted allocating fixed array of %d", n)
	}
	h.SetMap(addr, mapAddr)
	h.SetPayloadBytes(addr, n*WordSize)
	return addr, nil
}

// FixedArraySet stores v at the i'th pointer slot of a FixedArray object.
func (h *Heap) FixedArraySet(addr Address, i int, v Address) {
	h.writeAddr(addr.Add(VariableHeaderSize+i*WordSize), v)
}

// FixedArrayGet reads the i'th pointer slot of a FixedArray object.
func (h *Heap) FixedArrayGet(addr Address, i int) Address {
	return h.readAddr(addr.Add(VariableHeaderSize + i*WordSize))
}

// NewSeqString allocates a pointer-free byte string of the given length.
func (h *Heap) NewSeqString(mapAddr Address, data []byte, space Allocator) (Address, error) {
	size := VariableHeaderSize + len(data)
	addr, ok := space.Allocate(size)
	if !ok {
		return NullAddress, fmt.Errorf("heap: space exhausted allocating seq string")
	}
	h.SetMap(addr, mapAddr)
	h.SetPayloadBytes(addr, len(data))
	h.writeBytes(addr.Add(VariableHeaderSize), data)
	return addr, nil
}

// NewCode allocates a code object. target is the initial derived-pointer
// form of its single IC call-target slot (see VisitCodeTarget); debugTarget
// is the derived-pointer form of its debugger call-site slot (see
// VisitDebugTarget), or NullAddress if the debugger never instrumented this
// code object.
func (h *Heap) NewCode(mapAddr Address, target, debugTarget Address, isICStub bool, space Allocator) (Address, error) {
	addr, ok := space.Allocate(CodeObjectSize)
	if !ok {
		return NullAddress, fmt.Errorf("heap: space exhausted allocating code object")
	}
	h.SetMap(addr, mapAddr)
	h.writeAddr(addr.Add(WordSize), target)
	h.writeAddr(addr.Add(2*WordSize), debugTarget)
	flags := uint64(0)
	if isICStub {
		flags |= codeFlagICStub
	}
	h.writeWord(addr.Add(3*WordSize), flags)
	return addr, nil
}

// CodeTargetSlot returns the address of a code object's IC target slot
// (i.e. objAddr + CodeHeaderSize).
func (h *Heap) CodeTargetSlot(objAddr Address) Address {
	return objAddr.Add(CodeHeaderSize)
}

// CodeTarget reads the current value of a code object's IC target slot.
func (h *Heap) CodeTarget(objAddr Address) Address {
	return h.readAddr(h.CodeTargetSlot(objAddr))
}

// SetCodeTarget overwrites a code object's IC target slot.
func (h *Heap) SetCodeTarget(objAddr, v Address) {
	h.writeAddr(h.CodeTargetSlot(objAddr), v)
}

// DebugTargetSlot returns the address of a code object's debugger call-site
// slot, the derived pointer VisitDebugTarget marks/updates the same way
// VisitCodeTarget does for the IC target slot.
func (h *Heap) DebugTargetSlot(objAddr Address) Address {
	return objAddr.Add(CodeHeaderSize + WordSize)
}

// DebugTarget reads the current value of a code object's debug-target slot.
func (h *Heap) DebugTarget(objAddr Address) Address {
	return h.readAddr(h.DebugTargetSlot(objAddr))
}

// SetDebugTarget overwrites a code object's debug-target slot.
func (h *Heap) SetDebugTarget(objAddr, v Address) {
	h.writeAddr(h.DebugTargetSlot(objAddr), v)
}

// IsICStub reports whether the code object at objAddr is an inline-cache
// stub eligible for cleanup_ics_at_gc.
func (h *Heap) IsICStub(objAddr Address) bool {
	return h.readWord(objAddr.Add(3*WordSize))&codeFlagICStub != 0
}

// ReadSlot reads the Address-valued word stored at a, used by the GC's
// visitors to resolve a root or object-body pointer slot.
func (h *Heap) ReadSlot(a Address) Address { return h.readAddr(a) }

// WriteSlot overwrites the Address-valued word stored at a.
func (h *Heap) WriteSlot(a Address, v Address) { h.writeAddr(a, v) }

// Visitor is the capability set IterateBody dispatches to, mirroring
// spec.md §9's polymorphic visitor design. Every GC phase supplies its own
// concrete Visitor.
type Visitor interface {
	VisitPointer(slot Address)
	VisitPointers(start, end Address)
	VisitCodeTarget(slot Address)
	VisitDebugTarget(slot Address)
}

// IterateBody walks the body of the object at objAddr, whose Map describes
// instanceType, dispatching pointer-bearing fields to v. size is the
// object's total byte size (already known to the caller, avoiding a second
// map read).
func (h *Heap) IterateBody(objAddr Address, instanceType InstanceType, size int, v Visitor) {
	switch instanceType {
	case HeapNumberInstanceType, SeqStringInstanceType, ByteArrayInstanceType, MapInstanceType:
		// Pointer-free bodies.
	case ConsStringInstanceType:
		v.VisitPointer(objAddr.Add(WordSize))
		v.VisitPointer(objAddr.Add(2 * WordSize))
	case FixedArrayInstanceType:
		start := objAddr.Add(VariableHeaderSize)
		end := objAddr.Add(size)
		if end.Sub(start) > 0 {
			v.VisitPointers(start, end)
		}
	case CodeInstanceType:
		v.VisitCodeTarget(h.CodeTargetSlot(objAddr))
		v.VisitDebugTarget(h.DebugTargetSlot(objAddr))
	}
}

// --- low-level word/byte access, dispatching to the arena or an LO buffer ---

func (h *Heap) readWord(a Address) uint64 {
	buf := h.bytesAt(a, WordSize)
	return binary.LittleEndian.Uint64(buf)
}

func (h *Heap) writeWord(a Address, v uint64) {
	buf := h.bytesAt(a, WordSize)
	binary.LittleEndian.PutUint64(buf, v)
}

func (h *Heap) readAddr(a Address) Address {
	return Address(h.readWord(a))
}

func (h *Heap) writeAddr(a Address, v Address) {
	h.writeWord(a, uint64(v))
}

func (h *Heap) readBytes(a Address, n int) []byte {
	buf := h.bytesAt(a, n)
	out := make([]byte, n)
	copy(out, buf)
	return out
}

func (h *Heap) writeBytes(a Address, data []byte) {
	buf := h.bytesAt(a, len(data))
	copy(buf, data)
}
