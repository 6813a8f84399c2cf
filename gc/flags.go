package gc

// Flags holds the runtime tunables spec.md §6 names. The zero value is the
// default configuration: compaction decided by the fragmentation heuristic,
// no IC/map-cache cleanup, no tracing, no verification.
type Flags struct {
	// AlwaysCompact forces every cycle to compact, overriding the
	// fragmentation heuristic. Mutually exclusive with NeverCompact.
	AlwaysCompact bool
	// NeverCompact forces every cycle to sweep in place, overriding both
	// the heuristic and AlwaysCompact.
	NeverCompact bool
	// CleanupICsAtGC flushes inline caches encountered during marking.
	CleanupICsAtGC bool
	// CleanupCachesInMapsAtGC clears code caches embedded in Map objects
	// when marking them. The reference object model carries no such cache,
	// so this flag is accepted for interface completeness but is a no-op;
	// see DESIGN.md.
	CleanupCachesInMapsAtGC bool
	// Verbose traces each forwarding/relocation/update event through the
	// configured Tracer.
	Verbose bool
	// VerifyGlobalGC recounts marked bytes after the mark phase and confirms
	// no compactable object is left Forwarded after relocation, panicking
	// (spec.md §7: fatal assertion) on either mismatch.
	VerifyGlobalGC bool
}

// resolveCompacting applies the fragmentation heuristic of spec.md §4.1:
// frag = (waste + free) / (size + waste + free) over old+code; compact if
// frag > 50%, unless overridden by NeverCompact/AlwaysCompact.
func (f Flags) resolveCompacting(wasteOldCode, freeOldCode, sizeOldCode int) (compacting bool, fragPercent float64) {
	denom := sizeOldCode + wasteOldCode + freeOldCode
	if denom > 0 {
		fragPercent = float64(wasteOldCode+freeOldCode) / float64(denom) * 100
	}
	switch {
	case f.NeverCompact:
		return false, fragPercent
	case f.AlwaysCompact:
		return true, fragPercent
	default:
		return fragPercent > 50, fragPercent
	}
}
