package heap

// Address is a logical byte offset into a Heap's address space. It does not
// carry any Go pointer semantics: object bytes are always accessed through
// Heap methods, never through unsafe.Pointer arithmetic, so that arbitrary
// (possibly stale, possibly forwarded) addresses can be handled defensively
// during the phases that rewrite them.
type Address uintptr

// NullAddress is never a valid object address; every real space's
// object-area starts strictly above it.
const NullAddress Address = 0

// WordSize is the size in bytes of a map word, and of every pointer-valued
// field in an object body.
const WordSize = 8

// Add returns a+n.
func (a Address) Add(n int) Address { return a + Address(n) }

// Sub returns the signed distance from b to a, in bytes.
func (a Address) Sub(b Address) int { return int(a) - int(b) }

// IsNull reports whether a is the null address.
func (a Address) IsNull() bool { return a == NullAddress }
