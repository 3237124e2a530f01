package ecs

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// AllocFlags are hints passed to an Allocator.
type AllocFlags struct {
	HugePages bool // request huge-page backing when the platform supports it
	Zero      bool // caller requires the returned block be zeroed
}

// Block is a raw aligned memory block returned by an Allocator.
type Block struct {
	Bytes         []byte
	UsedHugePages bool
}

// Allocator is the out-of-scope platform memory-allocation collaborator
// (spec.md §1): a huge-page-aware allocator returning raw aligned blocks.
// The engine only ever asks for power-of-two, cache-line-aligned blocks.
type Allocator interface {
	Allocate(size uintptr, alignment uintptr, flags AllocFlags) (Block, error)
	Free(b Block)
}

// HeapAllocator is the default Allocator, backed by the Go heap. It cannot
// honor HugePages (no portable Go API for that without cgo) — the flag is
// accepted and UsedHugePages is always reported false — and Free is a
// no-op: Go's garbage collector reclaims the backing array once the pool
// drops its last reference. Real huge-page-aware allocation is out of
// scope per spec.md §1; this exists only so ChunkPool has a working
// default.
type HeapAllocator struct{}

// Allocate returns a zeroed block of at least size bytes whose data pointer
// is aligned to alignment (alignment must be a power of two).
func (HeapAllocator) Allocate(size, alignment uintptr, flags AllocFlags) (Block, error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return Block{}, fmt.Errorf("ecs: alignment %d is not a power of two", alignment)
	}
	buf := make([]byte, size+alignment)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	offset := (alignment - addr%alignment) % alignment
	return Block{Bytes: buf[offset : offset+size]}, nil
}

// Free is a no-op for HeapAllocator; see type doc.
func (HeapAllocator) Free(Block) {}

const (
	minChunkSize = 4 * 1024
	maxChunkSize = 1024 * 1024
	// DefaultChunkSize is spec.md's default archetype chunk size.
	DefaultChunkSize = 16 * 1024
)

// ChunkPoolOptions configures a ChunkPool.
type ChunkPoolOptions struct {
	ChunkSize      uintptr   // power of two in [4KiB, 1MiB]; default DefaultChunkSize
	ChunksPerBlock int       // chunks requested per platform-allocator call; default 64
	MaxChunks      int       // 0 means unbounded
	HugePages      bool      // hint forwarded to the allocator
	Allocator      Allocator // default HeapAllocator{}
}

// PoolStats is the chunk pool's public statistics surface (spec.md §6).
// Counters are read with relaxed atomic loads: visible with
// eventual-consistency semantics only, matching spec.md §5.
type PoolStats struct {
	TotalChunks     int64
	ChunksInUse     int64
	ChunksFree      int64
	BlocksAllocated int64
	Acquires        int64
	Releases        int64
	AcquireFailures int64
}

// ChunkPool is a fixed-chunk-size allocator: a free list backed by blocks
// of chunksPerBlock contiguous chunks drawn from an Allocator.
//
// The C++ original threads the free list through each released chunk's
// first machine word — an intrusive singly-linked list needing no separate
// allocation. Go's collector does not scan arbitrary []byte content for
// pointers, so writing a live next-pointer into chunk bytes would be unsafe
// (the GC could reclaim or move referents the pool still needs); this port
// keeps the free list as an ordinary Go slice stack of chunk handles
// instead. Behaviorally it is the same LIFO free list spec.md describes,
// just backed by a GC-visible slice rather than raw bytes.
type ChunkPool struct {
	allocator      Allocator
	chunkSize      uintptr
	chunksPerBlock int
	maxChunks      int
	hugePages      bool

	blocks []Block
	free   []*pooledChunk

	totalChunks     atomic.Int64
	chunksInUse     atomic.Int64
	blocksAllocated atomic.Int64
	acquires        atomic.Int64
	releases        atomic.Int64
	acquireFailures atomic.Int64
}

type pooledChunk struct {
	bytes []byte
}

// NewChunkPool creates a pool with default options (16 KiB chunks, 64
// chunks per block, unbounded).
func NewChunkPool() *ChunkPool {
	return NewChunkPoolWithOptions(ChunkPoolOptions{})
}

// NewChunkPoolWithOptions creates a pool per opts.
func NewChunkPoolWithOptions(opts ChunkPoolOptions) *ChunkPool {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize < minChunkSize || opts.ChunkSize > maxChunkSize || opts.ChunkSize&(opts.ChunkSize-1) != 0 {
		panic(fmt.Sprintf("ecs: chunk size %d must be a power of two in [%d, %d]", opts.ChunkSize, minChunkSize, maxChunkSize))
	}
	if opts.ChunksPerBlock <= 0 {
		opts.ChunksPerBlock = 64
	}
	if opts.Allocator == nil {
		opts.Allocator = HeapAllocator{}
	}
	return &ChunkPool{
		allocator:      opts.Allocator,
		chunkSize:      opts.ChunkSize,
		chunksPerBlock: opts.ChunksPerBlock,
		maxChunks:      opts.MaxChunks,
		hugePages:      opts.HugePages,
	}
}

// ChunkSize returns the pool's fixed chunk size.
func (p *ChunkPool) ChunkSize() uintptr { return p.chunkSize }

// Acquire pops a chunk from the free list, allocating a fresh block (and
// threading its other chunks onto the free list) if empty. Returns an
// error (AllocationExhausted) if maxChunks would be exceeded or the
// platform allocator fails.
func (p *ChunkPool) Acquire() ([]byte, error) {
	if len(p.free) == 0 {
		if err := p.refill(); err != nil {
			p.acquireFailures.Add(1)
			return nil, err
		}
	}
	n := len(p.free)
	c := p.free[n-1]
	p.free = p.free[:n-1]
	p.chunksInUse.Add(1)
	p.acquires.Add(1)
	return c.bytes, nil
}

// AcquireBatch pulls n chunks, refilling from fresh blocks as needed and
// taking new-block chunks directly into the result rather than round-
// tripping them through the free list (spec.md §4.3: "avoids free-list
// churn on bulk allocations").
func (p *ChunkPool) AcquireBatch(n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([][]byte, 0, n)
	for len(out) < n && len(p.free) > 0 {
		last := len(p.free) - 1
		out = append(out, p.free[last].bytes)
		p.free = p.free[:last]
	}
	for len(out) < n {
		block, chunks, err := p.allocateBlock()
		if err != nil {
			p.acquireFailures.Add(1)
			p.chunksInUse.Add(int64(len(out)))
			p.acquires.Add(int64(len(out)))
			return out, err
		}
		_ = block
		need := n - len(out)
		take := len(chunks)
		if take > need {
			take = need
		}
		for i := 0; i < take; i++ {
			out = append(out, chunks[i].bytes)
		}
		for i := take; i < len(chunks); i++ {
			p.free = append(p.free, chunks[i])
		}
	}
	p.chunksInUse.Add(int64(len(out)))
	p.acquires.Add(int64(len(out)))
	return out, nil
}

func (p *ChunkPool) refill() error {
	_, chunks, err := p.allocateBlock()
	if err != nil {
		return err
	}
	p.free = append(p.free, chunks...)
	return nil
}

func (p *ChunkPool) allocateBlock() (Block, []*pooledChunk, error) {
	chunksPerBlock := p.chunksPerBlock
	if p.maxChunks > 0 {
		allowed := p.maxChunks - int(p.totalChunks.Load())
		if allowed <= 0 {
			return Block{}, nil, fmt.Errorf("ecs: chunk pool exhausted (max %d chunks)", p.maxChunks)
		}
		if allowed < chunksPerBlock {
			chunksPerBlock = allowed
		}
	}
	size := p.chunkSize * uintptr(chunksPerBlock)
	block, err := p.allocator.Allocate(size, cacheLineSize, AllocFlags{HugePages: p.hugePages, Zero: true})
	if err != nil {
		return Block{}, nil, fmt.Errorf("ecs: chunk pool block allocation failed: %w", err)
	}
	p.blocks = append(p.blocks, block)
	p.blocksAllocated.Add(1)

	chunks := make([]*pooledChunk, chunksPerBlock)
	for i := 0; i < chunksPerBlock; i++ {
		start := uintptr(i) * p.chunkSize
		chunks[i] = &pooledChunk{bytes: block.Bytes[start : start+p.chunkSize]}
	}
	p.totalChunks.Add(int64(chunksPerBlock))
	return block, chunks, nil
}

// Release pushes chunk back onto the free list. If zero is true the chunk
// held sensitive data and is cleared before reuse.
func (p *ChunkPool) Release(chunk []byte, zero bool) {
	if zero {
		clear(chunk)
	}
	p.free = append(p.free, &pooledChunk{bytes: chunk})
	p.chunksInUse.Add(-1)
	p.releases.Add(1)
}

// Owns reports whether p points into memory owned by this pool, at a
// chunk-aligned offset.
func (p *ChunkPool) Owns(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	for _, b := range p.blocks {
		if len(b.Bytes) == 0 {
			continue
		}
		base := uintptr(unsafe.Pointer(&b.Bytes[0]))
		end := base + uintptr(len(b.Bytes))
		if addr >= base && addr < end && (addr-base)%p.chunkSize == 0 {
			return true
		}
	}
	return false
}

// Stats returns a point-in-time snapshot of the pool's counters.
func (p *ChunkPool) Stats() PoolStats {
	total := p.totalChunks.Load()
	inUse := p.chunksInUse.Load()
	return PoolStats{
		TotalChunks:     total,
		ChunksInUse:     inUse,
		ChunksFree:      total - inUse,
		BlocksAllocated: p.blocksAllocated.Load(),
		Acquires:        p.acquires.Load(),
		Releases:        p.releases.Load(),
		AcquireFailures: p.acquireFailures.Load(),
	}
}

const cacheLineSize = 64
