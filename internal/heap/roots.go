package heap

// ObjectGroup is a set of objects with "all live if any member is live"
// semantics, imposed by ownership relationships external to the plain
// pointer graph (spec.md §4.3 step 5).
type ObjectGroup struct {
	Members []Address
}

// AddObjectGroup registers a new object group for the next mark phase.
func (h *Heap) AddObjectGroup(members ...Address) {
	h.ObjectGroups = append(h.ObjectGroups, &ObjectGroup{Members: append([]Address(nil), members...)})
}

// WeakHandle models one global weak handle: a reference that does not by
// itself keep Referent alive, but whose OnNearDeath callback may choose to
// revive it to strong when the collector discovers it would otherwise die
// (spec.md §4.3 step 6).
type WeakHandle struct {
	Referent    Address
	OnNearDeath func(referent Address) (revive bool)
	Cleared     bool
}

// AddWeakHandle registers a new weak handle.
func (h *Heap) AddWeakHandle(referent Address, onNearDeath func(Address) bool) *WeakHandle {
	wh := &WeakHandle{Referent: referent, OnNearDeath: onNearDeath}
	h.WeakHandles = append(h.WeakHandles, wh)
	return wh
}

// SymbolTable is the reference model of the weak, resizable symbol table
// spec.md §4.3 steps 2 and 7 special-case: a FixedArray-shaped object whose
// leading PrefixSlots entries are ordinary strong references (visited like
// any object body) and whose remaining slots are weakly held symbols,
// pruned rather than traced.
type SymbolTable struct {
	Addr        Address
	PrefixSlots int
	Removed     int
}

// NewSymbolTable allocates a FixedArray-shaped symbol table with the given
// total slot count, the first prefixSlots of which are treated as strong.
func (h *Heap) NewSymbolTable(mapAddr Address, totalSlots, prefixSlots int, space Allocator) (*SymbolTable, error) {
	addr, err := h.NewFixedArray(mapAddr, totalSlots, space)
	if err != nil {
		return nil, err
	}
	t := &SymbolTable{Addr: addr, PrefixSlots: prefixSlots}
	h.SymbolTable = t
	return t, nil
}

// PrefixRange returns the [start, end) slot-address range of the table's
// strong prefix.
func (t *SymbolTable) PrefixRange() (start, end Address) {
	start = t.Addr.Add(VariableHeaderSize)
	return start, start.Add(t.PrefixSlots * WordSize)
}

// SlotRange returns the [start, end) slot-address range of the table's weak
// symbol slots, reading the table's current total length from the heap.
func (t *SymbolTable) SlotRange(h *Heap) (start, end Address) {
	total := h.PayloadBytes(t.Addr) / WordSize
	start = t.Addr.Add(VariableHeaderSize + t.PrefixSlots*WordSize)
	return start, t.Addr.Add(VariableHeaderSize + total*WordSize)
}

// Set stores v at symbol slot i (0-based from the start of the whole
// table, prefix included).
func (t *SymbolTable) Set(h *Heap, i int, v Address) {
	h.FixedArraySet(t.Addr, i, v)
}

// Get reads symbol slot i.
func (t *SymbolTable) Get(h *Heap, i int) Address {
	return h.FixedArrayGet(t.Addr, i)
}
