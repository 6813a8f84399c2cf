package heap

// SpaceID names one of the heap's five spaces (spec.md §3).
type SpaceID int

const (
	NewSpaceID SpaceID = iota
	OldSpaceID
	CodeSpaceID
	MapSpaceID
	LOSpaceID
)

func (id SpaceID) String() string {
	switch id {
	case NewSpaceID:
		return "new"
	case OldSpaceID:
		return "old"
	case CodeSpaceID:
		return "code"
	case MapSpaceID:
		return "map"
	case LOSpaceID:
		return "large-object"
	default:
		return "unknown"
	}
}

// Compactable reports whether id names a space that the collector may
// relocate objects within.
func (id SpaceID) Compactable() bool {
	switch id {
	case OldSpaceID, CodeSpaceID, MapSpaceID:
		return true
	default:
		return false
	}
}

// PageObjectAreaSize is the logical page granularity paged spaces are
// divided into for forwarding-encoding purposes (distinct from the real OS
// page size the backing arena is mmap'd in multiples of; see heap.go). It
// is kept small enough that realistic test fixtures exercise cross-page
// forwarding (§8 scenario 6) without needing enormous heaps.
const PageObjectAreaSize = 2048

// Allocator is satisfied by every space that can hand out raw byte ranges,
// used by the Object constructors in object.go to populate a heap before a
// collection runs.
type Allocator interface {
	Allocate(size int) (Address, bool)
}

// Space is the common interface every paged (old/code/map) space satisfies,
// matching spec.md §6's Space API.
type Space interface {
	Allocator

	ID() SpaceID
	PrepareForMarkCompact(compacting bool)
	Waste() int
	AvailableFree() int
	Size() int
	MCAllocateRaw(size int) (Address, bool)
	MCResetRelocationInfo()
	MCWriteRelocationInfoToPage()
	MCCommitRelocationInfo()
	MCSpaceOffsetForAddress(a Address) int
	Free(addr Address, size int)
	Pages() []*Page
	Contains(a Address) bool
}
