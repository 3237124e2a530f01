package ecs

import "sort"

// ArchetypeID is a stable identifier for an Archetype, assigned in creation
// order.
type ArchetypeID uint32

// Archetype owns the ordered chunk list for one exact component mask
// (spec.md §4.1 "Archetype"). Invariant: for every live entity located at
// (a, chunkIdx, row), chunks[chunkIdx].entities[row] == e and
// chunks[chunkIdx].count > row. Every chunk before firstNonFullChunk is
// full; chunks from that index onward may have vacancies. Trailing empty
// chunks beyond the first are released back to the pool — the first chunk
// of an archetype is always retained, even when the archetype holds no
// entities, so a frequently-emptied-and-refilled archetype does not thrash
// the chunk pool.
type Archetype struct {
	id           ArchetypeID
	mask         Mask
	componentIDs []ComponentID
	descriptors  []*Descriptor
	slotOf       []int32 // indexed by ComponentID, -1 if absent from this archetype
	pool         *ChunkPool

	chunks           []*Chunk
	firstNonFullChunk int
	count            int
	peakCount        int

	// emptyGenerations counts consecutive Storage.CleanupEmptyArchetypes
	// observations that found this archetype empty (spec.md §4.6's
	// empty_duration metric, resolved per DESIGN.md as a call-counted
	// generation rather than a wall-clock duration — see Astra's
	// ArchetypeStorage m_emptyGenerations).
	emptyGenerations int

	edges *archetypeEdges // lazily populated transition edge cache (C8)
}

func newArchetype(id ArchetypeID, mask Mask, componentIDs []ComponentID, descriptors []*Descriptor, maxComponents int, pool *ChunkPool) *Archetype {
	slotOf := make([]int32, maxComponents)
	for i := range slotOf {
		slotOf[i] = -1
	}
	for i, cid := range componentIDs {
		slotOf[cid] = int32(i)
	}
	a := &Archetype{
		id:           id,
		mask:         mask,
		componentIDs: componentIDs,
		descriptors:  descriptors,
		slotOf:       slotOf,
		pool:         pool,
	}
	return a
}

// Mask returns the archetype's exact component mask.
func (a *Archetype) Mask() Mask { return a.mask }

// ID returns the archetype's stable id.
func (a *Archetype) ID() ArchetypeID { return a.id }

// Count returns the number of live entities across all chunks.
func (a *Archetype) Count() int { return a.count }

// Slot returns the column index for id within this archetype, or -1 if the
// archetype does not include id.
func (a *Archetype) Slot(id ComponentID) int {
	if int(id) >= len(a.slotOf) {
		return -1
	}
	return int(a.slotOf[id])
}

// Has reports whether the archetype includes component id.
func (a *Archetype) Has(id ComponentID) bool { return a.Slot(id) >= 0 }

// ComponentIDs returns the archetype's sorted component id list.
func (a *Archetype) ComponentIDs() []ComponentID { return a.componentIDs }

// ChunkCount returns the number of chunks currently owned (including empty
// trailing-retained ones).
func (a *Archetype) ChunkCount() int { return len(a.chunks) }

// ChunkAt returns chunk i.
func (a *Archetype) ChunkAt(i int) *Chunk { return a.chunks[i] }

// AddEntity places e into the archetype's first chunk with room, allocating
// a fresh chunk from the pool if every existing chunk is full. Returns the
// chunk index and row the entity now occupies.
func (a *Archetype) AddEntity(e Entity) (chunkIdx, row int, err error) {
	if a.firstNonFullChunk >= len(a.chunks) {
		c, err := newChunk(a.pool, a.descriptors)
		if err != nil {
			return 0, 0, err
		}
		a.chunks = append(a.chunks, c)
	}
	idx := a.firstNonFullChunk
	c := a.chunks[idx]
	row = c.AppendEntity(e)
	a.count++
	if a.count > a.peakCount {
		a.peakCount = a.count
	}
	for a.firstNonFullChunk < len(a.chunks) && a.chunks[a.firstNonFullChunk].Full() {
		a.firstNonFullChunk++
	}
	return idx, row, nil
}

// RemoveEntity removes the entity at (chunkIdx, row) via swap-with-last,
// releasing any now-empty trailing chunks back to the pool (the first
// chunk is always retained). Returns the entity that was swapped into
// (chunkIdx, row), or NullEntity if none was (row was already last).
func (a *Archetype) RemoveEntity(chunkIdx, row int) Entity {
	moved := a.chunks[chunkIdx].RemoveSwap(row)
	a.count--
	if chunkIdx < a.firstNonFullChunk {
		a.firstNonFullChunk = chunkIdx
	}
	a.compactTrailing()
	return moved
}

func (a *Archetype) compactTrailing() {
	for len(a.chunks) > 1 && a.chunks[len(a.chunks)-1].Len() == 0 {
		last := len(a.chunks) - 1
		a.chunks[last].release()
		a.chunks = a.chunks[:last]
	}
	if a.firstNonFullChunk > len(a.chunks) {
		a.firstNonFullChunk = len(a.chunks)
	}
}

// markCleanupObserved updates the empty-generation counter; called once per
// Storage.CleanupEmptyArchetypes sweep.
func (a *Archetype) markCleanupObserved() {
	if a.count == 0 {
		a.emptyGenerations++
	} else {
		a.emptyGenerations = 0
	}
}

// MovedEntry describes one entity that changed (chunk, row) location as a
// result of Archetype.Coalesce, so a caller holding an entity→location map
// (Storage) can update it.
type MovedEntry struct {
	Entity   Entity
	OldChunk int
	OldRow   int
	NewChunk int
	NewRow   int
}

// CoalesceResult is the outcome of one Archetype.Coalesce call.
type CoalesceResult struct {
	ChunksFreed  int
	MovedEntries []MovedEntry
}

// Coalesce implements spec.md §4.5's on-demand chunk-coalescing operation:
// chunks below 50% utilization (excluding the always-retained first chunk)
// are identified and visited ascending by occupancy (emptiest first), their
// occupied rows moved one at a time into any chunk with free space that is
// not itself one of the under-50% chunks, and
// chunks left fully empty by the process (again excluding the first) are
// erased. Erasure is a swap-with-last-plus-truncate against a.chunks (the
// same trick compactTrailing uses for trailing-only removal), so only the
// one chunk swapped into the erased slot changes index; every entity in it
// is reported as a MovedEntry with an unchanged row and the new chunk index.
func (a *Archetype) Coalesce() CoalesceResult {
	type candidate struct {
		idx   int
		chunk *Chunk
	}
	var sources []candidate
	isSource := make(map[int]bool)
	for i := 1; i < len(a.chunks); i++ {
		c := a.chunks[i]
		if c.capacity > 0 && c.Len()*2 < c.capacity {
			sources = append(sources, candidate{idx: i, chunk: c})
			isSource[i] = true
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].chunk.Len() < sources[j].chunk.Len() })

	// Destinations are drawn only from chunks that are not themselves
	// under-50%-utilized sources, so two underfull chunks never ping-pong
	// entities back and forth instead of actually consolidating.
	var moved []MovedEntry
	for _, src := range sources {
		for src.chunk.Len() > 0 {
			lastRow := src.chunk.Len() - 1
			dstIdx, dst := a.destinationWithRoom(isSource)
			if dst == nil {
				break
			}
			e := src.chunk.Entities()[lastRow]
			newRow := dst.AppendEntity(e)
			for slot := range a.componentIDs {
				dst.Column(slot).CopyFrom(newRow, src.chunk.Column(slot), lastRow)
			}
			src.chunk.RemoveSwap(lastRow)
			moved = append(moved, MovedEntry{Entity: e, OldChunk: src.idx, OldRow: lastRow, NewChunk: dstIdx, NewRow: newRow})
		}
	}

	freed := 0
	for i := len(a.chunks) - 1; i >= 1; i-- {
		c := a.chunks[i]
		if c.Len() != 0 {
			continue
		}
		last := len(a.chunks) - 1
		if i != last {
			swapped := a.chunks[last]
			a.chunks[i] = swapped
			for row, e := range swapped.Entities() {
				moved = append(moved, MovedEntry{Entity: e, OldChunk: last, OldRow: row, NewChunk: i, NewRow: row})
			}
		}
		c.release()
		a.chunks = a.chunks[:last]
		freed++
	}

	a.firstNonFullChunk = 0
	for a.firstNonFullChunk < len(a.chunks) && a.chunks[a.firstNonFullChunk].Full() {
		a.firstNonFullChunk++
	}
	return CoalesceResult{ChunksFreed: freed, MovedEntries: moved}
}

// destinationWithRoom returns the first chunk not in exclude with spare
// capacity, or (-1, nil) if none has room.
func (a *Archetype) destinationWithRoom(exclude map[int]bool) (int, *Chunk) {
	for i, c := range a.chunks {
		if exclude[i] {
			continue
		}
		if c.Len() < c.capacity {
			return i, c
		}
	}
	return -1, nil
}
