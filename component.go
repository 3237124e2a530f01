package ecs

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// ComponentID is a compact unsigned identifier assigned at first
// registration, monotonic from 0. A Registry keeps every descriptor in one
// slice indexed by id; its fast threshold decides which ids an archetype's
// edge cache keeps in an array and which fall through to a map (edge.go).
type ComponentID uint32

// Descriptor is the immutable per-type metadata spec.md §3/§4 describes in
// place of a vtable: stable hash, size/alignment, flags, and
// construct/move/destruct function pointers. Every place the original would
// call T::construct/T::move_construct/T::destruct on a raw pointer, a
// Chunk's column instead calls the matching Descriptor method — byteColumn
// and reflectColumn (see chunk.go) both route Zero/CopyFrom through these
// three pointers, whether or not the type is Trivial; only the pointer
// arithmetic used to locate dst/src differs between a raw byte buffer and a
// reflect-backed typed slice.
type Descriptor struct {
	ID      ComponentID
	Type    reflect.Type
	Name    string
	Hash    uint64
	Size    uintptr
	Align   uintptr
	Trivial bool // no pointers anywhere in the type; safe for raw memmove/memclr
	Empty   bool // zero-size; add/batch-add skip the column-construct call entirely

	construct      func(dst unsafe.Pointer)
	moveConstruct  func(dst, src unsafe.Pointer)
	destruct       func(dst unsafe.Pointer)
}

// Construct default-constructs (zero-initializes) one element at dst. Valid
// for every descriptor: both byteColumn and reflectColumn call it from
// Zero (see chunk.go).
func (d *Descriptor) Construct(dst unsafe.Pointer) { d.construct(dst) }

// MoveConstruct move-constructs at dst from src, per spec's "move-construct
// at destination, then destruct at source" protocol.
func (d *Descriptor) MoveConstruct(dst, src unsafe.Pointer) { d.moveConstruct(dst, src) }

// Destruct destructs the element at dst.
func (d *Descriptor) Destruct(dst unsafe.Pointer) { d.destruct(dst) }

// Registry is an instance-local component-type registry (spec.md's "Design
// Notes" replace the original's process-wide static registry with an
// instance owned by each storage/world so separately-constructed registries
// never collide).
type Registry struct {
	descriptors []*Descriptor
	byType      map[reflect.Type]ComponentID
	byHash      map[uint64]ComponentID
	fastThresh  int
	maxTypes    int
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// FastThreshold is spec.md's configurable array/map split point for
	// component-id lookup. Default 256.
	FastThreshold int
	// MaxComponents bounds how many distinct types may be registered; must
	// not exceed maskWords*64. Default DefaultMaxComponents (64).
	MaxComponents int
}

// NewRegistry creates an empty registry with default options.
func NewRegistry() *Registry {
	return NewRegistryWithOptions(RegistryOptions{})
}

// NewRegistryWithOptions creates an empty registry.
func NewRegistryWithOptions(opts RegistryOptions) *Registry {
	if opts.FastThreshold <= 0 {
		opts.FastThreshold = 256
	}
	if opts.MaxComponents <= 0 {
		opts.MaxComponents = DefaultMaxComponents
	}
	if opts.MaxComponents > maskWords*64 {
		opts.MaxComponents = maskWords * 64
	}
	return &Registry{
		byType:     make(map[reflect.Type]ComponentID),
		byHash:     make(map[uint64]ComponentID),
		fastThresh: opts.FastThreshold,
		maxTypes:   opts.MaxComponents,
	}
}

// Len returns the number of registered component types.
func (r *Registry) Len() int { return len(r.descriptors) }

// Descriptor returns the descriptor for id, or nil if id is unassigned.
func (r *Registry) Descriptor(id ComponentID) *Descriptor {
	if int(id) >= len(r.descriptors) {
		return nil
	}
	return r.descriptors[id]
}

// FastThreshold reports the configured array/map split point.
func (r *Registry) FastThreshold() int { return r.fastThresh }

// RegisterComponent registers component type T and returns its id.
// Idempotent by stable hash: registering the same type twice (even across
// distinct calls with the same T) returns the existing id. Returns an error
// if the registry is full or if T's stable hash collides with a distinct
// already-registered type (spec.md's total-function / never-partially-commit
// guarantee: a hash collision is reported, not silently ignored).
func RegisterComponent[T any](r *Registry) (ComponentID, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type instantiated with no concrete value; reflect
		// cannot describe it structurally. Components must be concrete types.
		return 0, fmt.Errorf("ecs: component type must be concrete, got interface-like zero value")
	}
	if id, ok := r.byType[t]; ok {
		return id, nil
	}

	h := typeHash(t)
	if existing, ok := r.byHash[h]; ok {
		return 0, fmt.Errorf("ecs: stable hash collision between %s and %s (hash %#x)", t, r.descriptors[existing].Type, h)
	}

	if len(r.descriptors) >= r.maxTypes {
		return 0, fmt.Errorf("ecs: component registry full (max %d types)", r.maxTypes)
	}

	id := ComponentID(len(r.descriptors))
	desc := &Descriptor{
		ID:    id,
		Type:  t,
		Name:  t.String(),
		Hash:  h,
		Size:  t.Size(),
		Align: uintptr(t.Align()),
		Empty: t.Size() == 0,
	}
	desc.Trivial = isTrivial(t)
	installOps[T](desc)

	r.descriptors = append(r.descriptors, desc)
	r.byType[t] = id
	r.byHash[h] = id
	return id, nil
}

// MustRegisterComponent is RegisterComponent but panics on error; useful at
// program init for components that are statically known to be distinct.
func MustRegisterComponent[T any](r *Registry) ComponentID {
	id, err := RegisterComponent[T](r)
	if err != nil {
		panic(err)
	}
	return id
}

// ComponentIDFor returns the id for T if already registered.
func ComponentIDFor[T any](r *Registry) (ComponentID, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	id, ok := r.byType[t]
	return id, ok
}

func typeHash(t reflect.Type) uint64 {
	return xxhash.Sum64String(t.PkgPath() + "." + t.String())
}

func installOps[T any](d *Descriptor) {
	d.construct = func(dst unsafe.Pointer) {
		var zero T
		*(*T)(dst) = zero
	}
	d.moveConstruct = func(dst, src unsafe.Pointer) {
		*(*T)(dst) = *(*T)(src)
	}
	d.destruct = func(dst unsafe.Pointer) {
		var zero T
		*(*T)(dst) = zero
	}
}

// isTrivial reports whether t contains no pointers anywhere in its value
// (recursively through structs and fixed-size arrays), meaning raw
// memmove/memclr over its bytes is safe and Go's garbage collector need
// never scan the region. Slices, maps, channels, funcs, interfaces and
// strings all disqualify a type — their archetype column is a
// reflect-created typed slice instead (see chunk.go), never a raw byte
// buffer.
func isTrivial(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return isTrivial(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isTrivial(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
