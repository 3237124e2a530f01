package ecs

import (
	"reflect"
	"unsafe"
)

// defaultTaglessChunkCapacity is the row capacity used for chunks whose
// archetype has no Trivial, non-empty component (so there is no raw byte
// budget to divide rows by) — e.g. an archetype made entirely of tag
// (empty) components, or one holding only non-trivial component types.
// Matches spec.md's note that empty/tag components impose no chunk
// capacity constraint.
const defaultTaglessChunkCapacity = 1024

func alignUp(size, align uintptr) uintptr {
	if align <= 1 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}

// column is one archetype chunk's storage for a single component type: a
// fixed-capacity array of exactly chunk.capacity elements, indexed by row.
//
// Two implementations exist (see DESIGN.md's Open Question resolution):
// byteColumn is a raw pooled-byte-block view used for Trivial component
// types, matching spec.md's literal contiguous-memory layout; reflectColumn
// is a reflect-created typed slice used for every other component type, so
// Go's garbage collector can see and track pointers the component holds.
type column interface {
	// Ptr returns an unsafe pointer to the element at row, valid until the
	// next structural mutation of the owning chunk.
	Ptr(row int) unsafe.Pointer
	// CopyFrom move-copies the element at srcRow of src into dstRow of this
	// column. src must share this column's descriptor.
	CopyFrom(dstRow int, src column, srcRow int)
	// Zero default-constructs (or clears) the element at row.
	Zero(row int)
}

// byteColumn is a raw-byte column view, either a sub-slice of a
// pool-acquired chunk buffer (non-empty Trivial types) or an unbacked
// zero-size column (empty Trivial tag types, which need no storage at
// all).
type byteColumn struct {
	desc   *Descriptor
	stride uintptr
	data   []byte
}

func newByteColumn(desc *Descriptor, data []byte, stride uintptr) *byteColumn {
	return &byteColumn{desc: desc, data: data, stride: stride}
}

func (c *byteColumn) Ptr(row int) unsafe.Pointer {
	if c.desc.Size == 0 {
		return unsafe.Pointer(c.desc) // any non-nil, never dereferenced for a zero-size type
	}
	return unsafe.Pointer(&c.data[uintptr(row)*c.stride])
}

func (c *byteColumn) CopyFrom(dstRow int, src column, srcRow int) {
	if c.desc.Size == 0 {
		return
	}
	s := src.(*byteColumn)
	dst := unsafe.Pointer(&c.data[uintptr(dstRow)*c.stride])
	from := unsafe.Pointer(&s.data[uintptr(srcRow)*s.stride])
	c.desc.MoveConstruct(dst, from)
}

func (c *byteColumn) Zero(row int) {
	if c.desc.Size == 0 {
		return
	}
	c.desc.Construct(unsafe.Pointer(&c.data[uintptr(row)*c.stride]))
}

// reflectColumn is a GC-visible typed-slice column for non-trivial
// (pointer-containing) component types, fixed at exactly capacity
// elements for the lifetime of the chunk.
type reflectColumn struct {
	desc  *Descriptor
	slice reflect.Value
}

func newReflectColumn(desc *Descriptor, capacity int) *reflectColumn {
	return &reflectColumn{desc: desc, slice: reflect.MakeSlice(reflect.SliceOf(desc.Type), capacity, capacity)}
}

func (c *reflectColumn) Ptr(row int) unsafe.Pointer {
	return unsafe.Pointer(c.slice.Index(row).UnsafeAddr())
}

func (c *reflectColumn) CopyFrom(dstRow int, src column, srcRow int) {
	s := src.(*reflectColumn)
	dst := unsafe.Pointer(c.slice.Index(dstRow).UnsafeAddr())
	from := unsafe.Pointer(s.slice.Index(srcRow).UnsafeAddr())
	c.desc.MoveConstruct(dst, from)
}

func (c *reflectColumn) Zero(row int) {
	c.desc.Construct(unsafe.Pointer(c.slice.Index(row).UnsafeAddr()))
}

// Get reads the value at row as T. T must match the column's registered
// component type; callers (storage.go, query.go) guarantee this by
// construction since the column was obtained via a ComponentID lookup.
func getColumn[T any](col column, row int) *T {
	return (*T)(col.Ptr(row))
}

// Chunk is one fixed-capacity Struct-of-Arrays block of an archetype
// (spec.md §4.3/§4.4). Its row capacity is chosen so the Trivial-typed
// columns fit exactly inside one pool-acquired buffer; non-trivial
// columns are allocated with the same row capacity independently.
type Chunk struct {
	pool     *ChunkPool
	raw      []byte
	capacity int
	count    int
	entities []Entity
	columns  []column
}

// newChunk acquires backing storage and lays out one column per descriptor,
// in the same order as the owning archetype's component id list.
func newChunk(pool *ChunkPool, descs []*Descriptor) (*Chunk, error) {
	var stride uintptr
	for _, d := range descs {
		if d.Trivial && d.Size > 0 {
			stride += alignUp(d.Size, d.Align)
		}
	}

	c := &Chunk{pool: pool}
	if stride == 0 {
		c.capacity = defaultTaglessChunkCapacity
	} else {
		raw, err := pool.Acquire()
		if err != nil {
			return nil, err
		}
		c.raw = raw
		c.capacity = len(raw) / int(stride)
		if c.capacity == 0 {
			c.capacity = 1
		}
	}

	c.entities = make([]Entity, 0, c.capacity)
	c.columns = make([]column, len(descs))
	var offset uintptr
	for i, d := range descs {
		switch {
		case d.Trivial && d.Size > 0:
			aligned := alignUp(d.Size, d.Align)
			span := aligned * uintptr(c.capacity)
			c.columns[i] = newByteColumn(d, c.raw[offset:offset+span], aligned)
			offset += span
		case d.Trivial:
			c.columns[i] = newByteColumn(d, nil, 0)
		default:
			c.columns[i] = newReflectColumn(d, c.capacity)
		}
	}
	return c, nil
}

// Len returns the number of occupied rows.
func (c *Chunk) Len() int { return c.count }

// Full reports whether the chunk has no remaining row capacity.
func (c *Chunk) Full() bool { return c.count >= c.capacity }

// Column returns the column at slot i.
func (c *Chunk) Column(i int) column { return c.columns[i] }

// Entities returns the live entity handles, one per occupied row.
func (c *Chunk) Entities() []Entity { return c.entities[:c.count] }

// AppendEntity reserves the next row for e, default-constructing every
// column. Caller must have checked !Full().
func (c *Chunk) AppendEntity(e Entity) int {
	row := c.count
	c.entities = c.entities[:row+1]
	c.entities[row] = e
	for _, col := range c.columns {
		col.Zero(row)
	}
	c.count++
	return row
}

// RemoveSwap removes row by swapping the last occupied row into its place
// (spec.md's O(1) swap-pop removal). Returns the entity that was moved
// into row, or NullEntity if row was already the last occupied row.
func (c *Chunk) RemoveSwap(row int) Entity {
	last := c.count - 1
	moved := NullEntity
	if row != last {
		moved = c.entities[last]
		c.entities[row] = moved
		for _, col := range c.columns {
			col.CopyFrom(row, col, last)
		}
	}
	for _, col := range c.columns {
		col.Zero(last)
	}
	c.entities = c.entities[:last]
	c.count--
	return moved
}

// release returns the chunk's pooled buffer, if any, to its pool.
func (c *Chunk) release() {
	if c.pool != nil && c.raw != nil {
		c.pool.Release(c.raw, false)
		c.raw = nil
	}
}
