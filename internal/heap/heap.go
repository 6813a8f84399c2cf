// Package heap is the concrete reference implementation of the collaborator
// interfaces spec.md §6 treats as out of scope of the collector core: the
// page-structured spaces, the object/Map layout, and root/weak-handle/
// symbol-table bookkeeping. The mark-compact algorithm itself (package gc)
// is written against this package's exported surface exactly as it would
// be against a production allocator.
//
// Every space's storage is carved out of one shared arena, obtained with a
// single anonymous mmap (golang.org/x/sys/unix) sized to whole OS pages, so
// that paged-space addresses are real, page-aligned memory rather than an
// arbitrary slice offset. Large objects live outside the arena, each in its
// own separately allocated buffer, since they are never compacted and so
// never need to share the arena's address-ordering guarantees.
package heap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Config sizes every space at construction time. SemispaceSize is in bytes;
// RootSlots counts one-word root slots, and the page counts count
// PageObjectAreaSize-byte pages.
type Config struct {
	RootSlots     int
	SemispaceSize int
	OldPages      int
	CodePages     int
	MapPages      int
}

// DefaultConfig is a small heap sized for unit tests and the CLI's demo
// scripts: enough pages to exercise cross-page forwarding without being
// expensive to allocate.
func DefaultConfig() Config {
	return Config{
		RootSlots:     256,
		SemispaceSize: 8 * PageObjectAreaSize,
		OldPages:      4,
		CodePages:     2,
		MapPages:      2,
	}
}

// Heap owns the arena and every space carved out of it.
type Heap struct {
	arena    []byte
	arenaEnd Address

	rootsBase Address
	rootsCap  int
	rootsUsed int
	strong    []Address
	weak      []Address

	New      *NewSpace
	Old      *PagedSpace
	Code     *PagedSpace
	MapSpace *PagedSpace
	LO       *LargeObjectSpace

	SymbolTable  *SymbolTable
	ObjectGroups []*ObjectGroup
	WeakHandles  []*WeakHandle
	// ICRoots models the non-monomorphic inline-cache as an explicit root
	// set, per SPEC_FULL.md §E. Every non-null entry is marked as a root,
	// except that entries which are IC stubs are skipped when
	// cleanup_ics_at_gc is set.
	ICRoots []Address

	metaMap   Address
	fillerMap Address
}

// New constructs a Heap backed by a single anonymous mmap region.
func New(cfg Config) (*Heap, error) {
	pageSize := unix.Getpagesize()
	logicalBytes := cfg.RootSlots*WordSize +
		2*cfg.SemispaceSize +
		cfg.OldPages*PageObjectAreaSize +
		cfg.CodePages*PageObjectAreaSize +
		cfg.MapPages*PageObjectAreaSize
	// Round up to whole OS pages, matching how a real paged space reserves
	// its backing memory.
	arenaBytes := ((logicalBytes + pageSize - 1) / pageSize) * pageSize

	arena, err := unix.Mmap(-1, 0, arenaBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("heap: mmap %d bytes: %w", arenaBytes, err)
	}

	h := &Heap{arena: arena, arenaEnd: Address(len(arena))}

	cursor := Address(0)
	h.rootsBase = cursor
	h.rootsCap = cfg.RootSlots
	cursor = cursor.Add(cfg.RootSlots * WordSize)

	h.New = newNewSpace(h, cursor, cfg.SemispaceSize)
	cursor = cursor.Add(2 * cfg.SemispaceSize)

	h.Old = newPagedSpace(h, OldSpaceID, cursor, cfg.OldPages)
	cursor = cursor.Add(cfg.OldPages * PageObjectAreaSize)

	h.Code = newPagedSpace(h, CodeSpaceID, cursor, cfg.CodePages)
	cursor = cursor.Add(cfg.CodePages * PageObjectAreaSize)

	h.MapSpace = newPagedSpace(h, MapSpaceID, cursor, cfg.MapPages)
	cursor = cursor.Add(cfg.MapPages * PageObjectAreaSize)

	h.LO = newLargeObjectSpace(h, Address(len(arena)))

	if err := h.bootstrapMetaMap(); err != nil {
		_ = h.Close()
		return nil, err
	}
	fillerMap, err := h.NewMap(h.metaMap, ByteArrayInstanceType, 0)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("heap: allocating filler map: %w", err)
	}
	h.fillerMap = fillerMap
	return h, nil
}

// FillerMap returns the Map describing the pointer-free filler objects the
// non-compacting sweeper writes over reclaimed new-space garbage.
func (h *Heap) FillerMap() Address { return h.fillerMap }

// bootstrapMetaMap allocates the self-describing "meta-map": the Map
// object that is itself the map of every Map object.
func (h *Heap) bootstrapMetaMap() error {
	addr, ok := h.MapSpace.Allocate(MapObjectSize)
	if !ok {
		return fmt.Errorf("heap: map space too small for meta-map")
	}
	h.metaMap = addr
	h.SetMap(addr, addr)
	h.writeWord(addr.Add(WordSize), uint64(MapInstanceType))
	h.writeWord(addr.Add(2*WordSize), uint64(MapObjectSize))
	return nil
}

// MetaMap returns the map of every Map object.
func (h *Heap) MetaMap() Address { return h.metaMap }

// Close releases the backing mmap region.
func (h *Heap) Close() error {
	if h.arena == nil {
		return nil
	}
	err := unix.Munmap(h.arena)
	h.arena = nil
	return err
}

// Spaces returns the three paged spaces (old, code, map). New space and the
// large-object space do not satisfy Space and are not included.
func (h *Heap) Spaces() []Space {
	return []Space{h.Old, h.Code, h.MapSpace}
}

// SpaceOf reports which space owns a, including the non-paged new and
// large-object spaces.
func (h *Heap) SpaceOf(a Address) SpaceID {
	switch {
	case h.New.Contains(a):
		return NewSpaceID
	case h.Old.Contains(a):
		return OldSpaceID
	case h.Code.Contains(a):
		return CodeSpaceID
	case h.MapSpace.Contains(a):
		return MapSpaceID
	default:
		return LOSpaceID
	}
}

// InstanceTypeOf returns the instance type of the live object at objAddr.
func (h *Heap) InstanceTypeOf(objAddr Address) InstanceType {
	mapAddr := h.currentMapAddr(objAddr)
	return h.layout(mapAddr).InstanceType
}

// bytesAt returns an n-byte window at a, dispatching to the shared arena
// or to a large object's own buffer.
func (h *Heap) bytesAt(a Address, n int) []byte {
	if int(a)+n <= len(h.arena) {
		return h.arena[a : int(a)+n]
	}
	obj, ok := h.LO.objectCovering(a)
	if !ok {
		panic(fmt.Sprintf("heap: address %#x out of range", uintptr(a)))
	}
	off := a.Sub(obj.addr)
	return obj.buf[off : off+n]
}

// --- Roots ---

// NewRoot allocates a strong root slot initialized to v and returns its
// address; the slot can be read with RootValue and is rewritten in place
// by the pointer updater like any other slot.
func (h *Heap) NewRoot(v Address) Address {
	slot := h.allocRootSlot()
	h.writeAddr(slot, v)
	h.strong = append(h.strong, slot)
	return slot
}

// NewWeakRoot allocates a weak root slot. Weak roots are visited by
// UpdatePointer like strong roots (spec.md §4.6) but are not traced by the
// mark phase.
func (h *Heap) NewWeakRoot(v Address) Address {
	slot := h.allocRootSlot()
	h.writeAddr(slot, v)
	h.weak = append(h.weak, slot)
	return slot
}

func (h *Heap) allocRootSlot() Address {
	if h.rootsUsed >= h.rootsCap {
		panic("heap: root slot capacity exhausted")
	}
	slot := h.rootsBase.Add(h.rootsUsed * WordSize)
	h.rootsUsed++
	return slot
}

// StrongRoots returns every strong root slot address.
func (h *Heap) StrongRoots() []Address { return h.strong }

// WeakRoots returns every weak root slot address.
func (h *Heap) WeakRoots() []Address { return h.weak }

// RootValue reads the object address currently stored in a root slot.
func (h *Heap) RootValue(slot Address) Address { return h.readAddr(slot) }

// SetRootValue overwrites a root slot, used by tests to mutate the graph
// between collections.
func (h *Heap) SetRootValue(slot, v Address) { h.writeAddr(slot, v) }

// CopyBytes copies n bytes from src to dst, used by the relocation phase to
// physically move an object's contents into its forwarded destination.
// Go's builtin copy is memmove-safe for overlapping slices, which matters
// here since in-place compaction routinely moves an object a short distance
// within the same page.
func (h *Heap) CopyBytes(dst, src Address, n int) {
	copy(h.bytesAt(dst, n), h.bytesAt(src, n))
}
