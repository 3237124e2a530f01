package ecs

import "fmt"

// indexBits is the width of an Entity's index field; the remaining 8 bits
// hold the version.
const (
	indexBits    = 24
	versionBits  = 8
	maxIndex     = 1<<indexBits - 1
	versionNull  = 0
	versionTomb  = 1<<versionBits - 1
	versionFirst = 1
	versionLast  = versionTomb - 1
)

// Entity is a 32-bit packed (index, version) handle. The zero Entity is the
// null sentinel: Index() == 0, Version() == versionNull, Valid relative to
// any pool always reports false for it.
type Entity uint32

// NullEntity is the sentinel for "no entity".
const NullEntity Entity = 0

func newEntity(index uint32, version uint8) Entity {
	return Entity(index<<versionBits | uint32(version))
}

// Index returns the entity's 24-bit index.
func (e Entity) Index() uint32 { return uint32(e) >> versionBits }

// Version returns the entity's 8-bit version tag.
func (e Entity) Version() uint8 { return uint8(e) }

// IsNull reports whether e is the null sentinel.
func (e Entity) IsNull() bool { return e == NullEntity }

func (e Entity) String() string {
	return fmt.Sprintf("Entity(%d:%d)", e.Index(), e.Version())
}

// EntityPool hands out entity indices and tracks the live/tombstone/free
// state of the version table. Version 0 is reserved (null); version 255 is
// reserved (tombstone, a destroyed-but-not-yet-reused index). Recycling
// walks versionFirst..versionLast and wraps, so null and tombstone are never
// reissued.
type EntityPool struct {
	versions []uint8
	free     []freeSlot
}

type freeSlot struct {
	index       uint32
	nextVersion uint8
}

// NewEntityPool creates an empty pool.
func NewEntityPool() *EntityPool {
	return &EntityPool{}
}

// Create allocates a new entity, reusing a freed index when available.
func (p *EntityPool) Create() (Entity, error) {
	if n := len(p.free); n > 0 {
		slot := p.free[n-1]
		p.free = p.free[:n-1]
		p.versions[slot.index] = slot.nextVersion
		return newEntity(slot.index, slot.nextVersion), nil
	}
	index := len(p.versions)
	if index > maxIndex {
		return NullEntity, fmt.Errorf("ecs: entity index space exhausted (max %d live indices)", maxIndex+1)
	}
	p.versions = append(p.versions, versionFirst)
	return newEntity(uint32(index), versionFirst), nil
}

// Valid reports whether e currently refers to a live entity.
func (p *EntityPool) Valid(e Entity) bool {
	if e.IsNull() {
		return false
	}
	idx := e.Index()
	if int(idx) >= len(p.versions) {
		return false
	}
	v := p.versions[idx]
	return v == e.Version() && v != versionNull && v != versionTomb
}

// Destroy retires e: its index is tombstoned and pushed onto the free
// stack with the next version to hand out. Returns false if e was not
// live (idempotent no-op, matching spec's InvalidHandle policy).
func (p *EntityPool) Destroy(e Entity) bool {
	if !p.Valid(e) {
		return false
	}
	idx := e.Index()
	next := nextVersion(e.Version())
	p.versions[idx] = versionTomb
	p.free = append(p.free, freeSlot{index: idx, nextVersion: next})
	return true
}

func nextVersion(v uint8) uint8 {
	if v >= versionLast {
		return versionFirst
	}
	return v + 1
}

// Len returns the number of index slots ever allocated (live + tombstoned,
// not counting the free stack itself as a separate dimension).
func (p *EntityPool) Len() int { return len(p.versions) }
