package heap

// FreeBlock is one entry of a paged space's free list, populated by the
// non-compacting sweeper (spec.md §4.8) and consumed by future bump
// allocation.
type FreeBlock struct {
	Addr Address
	Size int
}

// Page is one fixed-size chunk of a paged space's object area. Real V8
// pages carry substantially more bookkeeping; only the fields the
// mark-compact algorithm itself reads or writes are modeled here.
type Page struct {
	id    int
	start Address
	end   Address

	// mcFirstForwarded is the destination address of the first live object
	// encountered on this page during forwarding-address encoding (§4.5).
	// NullAddress is the sentinel for "no live objects were ever forwarded
	// out of this page" (§8: a page containing zero live objects).
	mcFirstForwarded Address

	// relocationTop is the high-water mark written back into the page
	// header once forwarding-address encoding has processed the whole
	// space (§4.5, final step): the destination-side allocation top as of
	// the end of encoding.
	relocationTop Address

	// usedByMC marks a page that forwarding-address encoding has allocated
	// into as a destination during this cycle, for the page-iterator filter
	// spec.md §6 calls out.
	usedByMC bool

	freeList []FreeBlock

	// rememberedCards holds the index of every CardSize-byte card in this
	// page's object area known to contain at least one pointer into new
	// space, rebuilt from scratch after every compacting cycle (spec.md
	// §4.7's RebuildRSets).
	rememberedCards map[int]bool
}

// CardSize is the granularity a page's remembered set tracks pointers at:
// a card is remembered, not an individual slot, trading precision for a
// bounded-size table independent of object count.
const CardSize = 128

// ResetRSet discards this page's remembered-set cards, ahead of a fresh
// rebuild.
func (p *Page) ResetRSet() { p.rememberedCards = nil }

// MarkCard records that the card containing the byte offset off (relative
// to the page's object area start) holds an old/code/map-to-new pointer.
func (p *Page) MarkCard(off int) {
	if p.rememberedCards == nil {
		p.rememberedCards = map[int]bool{}
	}
	p.rememberedCards[off/CardSize] = true
}

// HasCard reports whether the card at index idx is remembered.
func (p *Page) HasCard(idx int) bool { return p.rememberedCards[idx] }

// RememberedCardCount returns how many distinct cards are currently
// remembered on this page, for stats and tests.
func (p *Page) RememberedCardCount() int { return len(p.rememberedCards) }

// ID returns the page's index within its space, recoverable from a
// Forwarded map word's page-index field.
func (p *Page) ID() int { return p.id }

// Start returns the address of the first byte of the page's object area.
func (p *Page) Start() Address { return p.start }

// End returns the address one past the last byte of the page's object area.
func (p *Page) End() Address { return p.end }

// UsedByMC reports whether this page received relocation destinations
// during the current cycle.
func (p *Page) UsedByMC() bool { return p.usedByMC }

// MCFirstForwarded returns the page's recorded first-forwarded destination,
// or NullAddress if the page held no live objects at encoding time.
func (p *Page) MCFirstForwarded() Address { return p.mcFirstForwarded }

// SetMCFirstForwarded records dest as the destination of the first live
// object encountered on this page during forwarding-address encoding. Called
// by the gc package's forward-encoding pass (spec.md §4.5).
func (p *Page) SetMCFirstForwarded(dest Address) { p.mcFirstForwarded = dest }

// RelocationTop returns the page's high-water relocation mark.
func (p *Page) RelocationTop() Address { return p.relocationTop }

func (p *Page) resetRelocationInfo() {
	p.mcFirstForwarded = NullAddress
	p.relocationTop = NullAddress
	p.usedByMC = false
}

func (p *Page) objectAreaSize() int {
	return p.end.Sub(p.start)
}
