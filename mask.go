package ecs

import (
	"encoding/binary"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// maskWords sizes Mask at 256 bits (4 x 64-bit words), mirroring the
// teacher's bitmask256. DefaultMaxComponents (below) keeps the default
// *usable* ceiling at the spec's 64, leaving the top three words as
// configured headroom rather than a hard limit baked into the type.
const maskWords = 4

// DefaultMaxComponents is spec.md's MAX_COMPONENTS default: the number of
// distinct component types a Registry will hand out ids for unless
// configured wider (up to maskWords*64).
const DefaultMaxComponents = 64

// groupWords groups two uint64 words (16 bytes) per spec's description of
// a SIMD path operating over 16-byte groups. Go has no portable intrinsic
// for this without cgo/assembly (see DESIGN.md), so the grouping is
// expressed structurally: each step folds one 16-byte group at a time and
// exits as soon as a group disproves the predicate, exactly mirroring the
// short-circuit behavior the real SIMD compare-and-mask would give.
const groupWords = 2

// Mask is a fixed-width component bitset. The zero Mask is empty.
type Mask [maskWords]uint64

// Set marks bit id. Out-of-range ids are a no-op.
func (m *Mask) Set(id ComponentID) {
	if int(id) >= maskWords*64 {
		return
	}
	m[id/64] |= 1 << (id % 64)
}

// Reset clears bit id. Out-of-range ids are a no-op.
func (m *Mask) Reset(id ComponentID) {
	if int(id) >= maskWords*64 {
		return
	}
	m[id/64] &^= 1 << (id % 64)
}

// Test reports whether bit id is set. Out-of-range ids report false.
func (m Mask) Test(id ComponentID) bool {
	if int(id) >= maskWords*64 {
		return false
	}
	return m[id/64]&(1<<(id%64)) != 0
}

// Count returns the population count (number of set bits).
func (m Mask) Count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// Any reports whether any bit is set.
func (m Mask) Any() bool {
	for i := 0; i < maskWords; i += groupWords {
		if m[i] != 0 || m[i+1] != 0 {
			return true
		}
	}
	return false
}

// None reports whether no bit is set.
func (m Mask) None() bool { return !m.Any() }

// ContainsAll reports whether m is a superset of other: (m & other) == other.
// Walks in 16-byte (2-word) groups, short-circuiting on the first group
// that disproves the subset relation.
func (m Mask) ContainsAll(other Mask) bool {
	for i := 0; i < maskWords; i += groupWords {
		if m[i]&other[i] != other[i] {
			return false
		}
		if m[i+1]&other[i+1] != other[i+1] {
			return false
		}
	}
	return true
}

// ContainsAny reports whether m and other share any set bit.
func (m Mask) ContainsAny(other Mask) bool {
	for i := 0; i < maskWords; i += groupWords {
		if m[i]&other[i] != 0 || m[i+1]&other[i+1] != 0 {
			return true
		}
	}
	return false
}

// ContainsNone reports whether m and other share no set bits.
func (m Mask) ContainsNone(other Mask) bool { return !m.ContainsAny(other) }

// And returns the bitwise intersection of m and other.
func (m Mask) And(other Mask) Mask {
	var out Mask
	for i := range m {
		out[i] = m[i] & other[i]
	}
	return out
}

// Or returns the bitwise union of m and other.
func (m Mask) Or(other Mask) Mask {
	var out Mask
	for i := range m {
		out[i] = m[i] | other[i]
	}
	return out
}

// AndNot returns m with every bit set in other cleared.
func (m Mask) AndNot(other Mask) Mask {
	var out Mask
	for i := range m {
		out[i] = m[i] &^ other[i]
	}
	return out
}

// Hash returns a deterministic 64-bit hash of the mask, independent of host
// endianness: each word is serialized little-endian before mixing so the
// result does not vary with the host's native byte order.
func (m Mask) Hash() uint64 {
	var buf [maskWords * 8]byte
	for i, w := range m {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return xxhash.Sum64(buf[:])
}
