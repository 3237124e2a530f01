package ecs

import (
	"log/slog"
	"math/bits"
)

// entityLocation pins a live entity to its archetype, chunk, and row
// within that chunk.
type entityLocation struct {
	archetype *Archetype
	chunk     int
	row       int
	live      bool
}

// Storage is the ECS world: entity identity, the archetype graph, and the
// chunk pool they share (spec.md §4.6 "Archetype graph and storage").
// Grounded on the teacher's World (world.go), generalized from the
// teacher's fixed benchmark-only component set to the registry-driven
// model spec.md describes, and split into the smaller
// archetype.go/chunk.go/edge.go files the teacher keeps separate
// concerns in.
type Storage struct {
	registry  *Registry
	pool      *ChunkPool
	entities  *EntityPool
	locations []entityLocation

	archetypeByMask *SwissMap[Mask, *Archetype]
	archetypes      []*Archetype
	root            *Archetype
	nextArchetypeID ArchetypeID

	Resources Resources
	logger    *slog.Logger
}

// NewStorage creates a Storage using registry for component lookups and
// cfg for pool/logging configuration.
func NewStorage(registry *Registry, cfg Config) *Storage {
	if registry == nil {
		registry = NewRegistry()
	}
	pool := cfg.ChunkPool
	if pool == nil {
		pool = NewChunkPool()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Storage{
		registry:        registry,
		pool:            pool,
		entities:        NewEntityPool(),
		archetypeByMask: NewSwissMap[Mask, *Archetype](Mask.Hash),
		logger:          logger,
	}
	s.root = s.getOrCreateArchetype(Mask{})
	return s
}

func componentIDsForMask(mask Mask) []ComponentID {
	ids := make([]ComponentID, 0, mask.Count())
	for word := 0; word < maskWords; word++ {
		w := mask[word]
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			ids = append(ids, ComponentID(word*64+bit))
			w &= w - 1
		}
	}
	return ids
}

func (s *Storage) getOrCreateArchetype(mask Mask) *Archetype {
	if a, ok := s.archetypeByMask.Get(mask); ok {
		return a
	}
	ids := componentIDsForMask(mask)
	descs := make([]*Descriptor, len(ids))
	for i, id := range ids {
		descs[i] = s.registry.Descriptor(id)
	}
	a := newArchetype(s.nextArchetypeID, mask, ids, descs, s.registry.maxTypes, s.pool)
	s.nextArchetypeID++
	s.archetypeByMask.Put(mask, a)
	s.archetypes = append(s.archetypes, a)
	s.logger.Debug("ecs: archetype created", "id", a.id, "components", len(ids))
	return a
}

func (s *Storage) setLocation(e Entity, a *Archetype, chunk, row int) {
	idx := int(e.Index())
	if idx >= len(s.locations) {
		s.locations = extendSlice(s.locations, idx+1-len(s.locations))
	}
	s.locations[idx] = entityLocation{archetype: a, chunk: chunk, row: row, live: true}
}

func (s *Storage) clearLocation(e Entity) {
	idx := int(e.Index())
	if idx < len(s.locations) {
		s.locations[idx] = entityLocation{}
	}
}

func (s *Storage) locationOf(e Entity) (entityLocation, bool) {
	idx := int(e.Index())
	if idx >= len(s.locations) {
		return entityLocation{}, false
	}
	loc := s.locations[idx]
	return loc, loc.live
}

// Valid reports whether e currently refers to a live entity.
func (s *Storage) Valid(e Entity) bool { return s.entities.Valid(e) }

// Registry returns the storage's component registry.
func (s *Storage) Registry() *Registry { return s.registry }

// CreateEntity creates a new entity with no components, in the root
// archetype.
func (s *Storage) CreateEntity() (Entity, error) {
	e, err := s.entities.Create()
	if err != nil {
		return NullEntity, err
	}
	chunkIdx, row, err := s.root.AddEntity(e)
	if err != nil {
		s.entities.Destroy(e)
		return NullEntity, wrapAllocErr("CreateEntity", err)
	}
	s.setLocation(e, s.root, chunkIdx, row)
	s.checkInvariants("CreateEntity")
	return e, nil
}

// CreateEntities creates count new entities in the root archetype. On
// allocation exhaustion it returns the prefix of entities successfully
// created alongside the error (spec.md §7's documented partial-completion
// case), and already-created entities remain valid.
func (s *Storage) CreateEntities(count int) ([]Entity, error) {
	if count <= 0 {
		return nil, nil
	}
	out := make([]Entity, 0, count)
	for i := 0; i < count; i++ {
		e, err := s.CreateEntity()
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// DestroyEntity retires e. Returns false for an invalid/stale handle
// (spec's InvalidHandle policy: silent no-op).
func (s *Storage) DestroyEntity(e Entity) bool {
	if !s.entities.Valid(e) {
		return false
	}
	loc, _ := s.locationOf(e)
	moved := loc.archetype.RemoveEntity(loc.chunk, loc.row)
	if !moved.IsNull() {
		s.setLocation(moved, loc.archetype, loc.chunk, loc.row)
	}
	s.entities.Destroy(e)
	s.clearLocation(e)
	s.checkInvariants("DestroyEntity")
	return true
}

// DestroyEntities retires every entity in es, skipping stale handles.
func (s *Storage) DestroyEntities(es []Entity) {
	for _, e := range es {
		s.DestroyEntity(e)
	}
}

func (s *Storage) resolveAddEdge(old *Archetype, id ComponentID) *edgeTarget {
	threshold := s.registry.FastThreshold()
	if t, ok := old.edgeAdd(id, threshold); ok {
		return t
	}
	newMask := old.mask
	newMask.Set(id)
	target := s.getOrCreateArchetype(newMask)
	copies := computeCopies(old.componentIDs, old.Slot, target.componentIDs, target.Slot)
	t := &edgeTarget{archetype: target, copies: copies}
	old.setEdgeAdd(id, threshold, t)
	return t
}

func (s *Storage) resolveRemoveEdge(old *Archetype, id ComponentID) *edgeTarget {
	threshold := s.registry.FastThreshold()
	if t, ok := old.edgeRemove(id, threshold); ok {
		return t
	}
	newMask := old.mask
	newMask.Reset(id)
	target := s.getOrCreateArchetype(newMask)
	// target.componentIDs is a strict subset of old.componentIDs (every id
	// except the removed one); look each up by slot in both archetypes
	// directly — old is the source, target the destination.
	copies := computeCopies(target.componentIDs, old.Slot, target.componentIDs, target.Slot)
	t := &edgeTarget{archetype: target, copies: copies}
	old.setEdgeRemove(id, threshold, t)
	return t
}

// relocate moves entity e at loc from loc.archetype to dst, running
// copies to bring over shared components, and returns the new location.
// Columns not covered by copies keep the default-constructed value the
// destination row got when it was appended (the caller is adding a
// component and sets it, or removing one and the column simply doesn't
// exist in dst).
func (s *Storage) relocate(e Entity, loc entityLocation, dst *Archetype, copies []copyOp) (chunkIdx, row int, err error) {
	chunkIdx, row, err = dst.AddEntity(e)
	if err != nil {
		return 0, 0, err
	}
	dstChunk := dst.ChunkAt(chunkIdx)
	srcChunk := loc.archetype.ChunkAt(loc.chunk)
	for _, op := range copies {
		dstChunk.Column(op.toSlot).CopyFrom(row, srcChunk.Column(op.fromSlot), loc.row)
	}
	moved := loc.archetype.RemoveEntity(loc.chunk, loc.row)
	if !moved.IsNull() {
		s.setLocation(moved, loc.archetype, loc.chunk, loc.row)
	}
	s.setLocation(e, dst, chunkIdx, row)
	s.checkInvariants("relocate")
	return chunkIdx, row, nil
}

// HasComponent reports whether e currently carries component id.
func (s *Storage) HasComponent(e Entity, id ComponentID) bool {
	loc, ok := s.locationOf(e)
	if !ok {
		return false
	}
	return loc.archetype.Has(id)
}

// AddComponent registers id's value as T on e and relocates e to the
// neighboring archetype that includes id. Returns a pointer to the stored
// value. Returns (nil, nil) for an invalid entity or one that already
// carries id (spec's ComponentAlreadyPresent: a no-op, not an error).
// Returns (nil, err) only on chunk-pool allocation exhaustion.
func AddComponent[T any](s *Storage, e Entity, id ComponentID, value T) (*T, error) {
	loc, ok := s.locationOf(e)
	if !ok {
		return nil, nil
	}
	if loc.archetype.Has(id) {
		return nil, nil
	}
	edge := s.resolveAddEdge(loc.archetype, id)
	chunkIdx, row, err := s.relocate(e, loc, edge.archetype, edge.copies)
	if err != nil {
		return nil, wrapAllocErr("AddComponent", err)
	}
	slot := edge.archetype.Slot(id)
	col := edge.archetype.ChunkAt(chunkIdx).Column(slot)
	ptr := getColumn[T](col, row)
	*ptr = value
	return ptr, nil
}

// RemoveComponent drops component id from e, relocating e to the
// neighboring archetype without it. Returns false for an invalid entity
// or one that does not carry id (spec's ComponentAbsent no-op). Returns
// an error only on chunk-pool allocation exhaustion, in which case e is
// left entirely at its original location.
func RemoveComponent(s *Storage, e Entity, id ComponentID) (bool, error) {
	loc, ok := s.locationOf(e)
	if !ok {
		return false, nil
	}
	if !loc.archetype.Has(id) {
		return false, nil
	}
	edge := s.resolveRemoveEdge(loc.archetype, id)
	_, _, err := s.relocate(e, loc, edge.archetype, edge.copies)
	if err != nil {
		return false, wrapAllocErr("RemoveComponent", err)
	}
	return true, nil
}

// GetComponent returns a pointer to e's value for component id, and
// whether it was present.
func GetComponent[T any](s *Storage, e Entity, id ComponentID) (*T, bool) {
	loc, ok := s.locationOf(e)
	if !ok {
		return nil, false
	}
	slot := loc.archetype.Slot(id)
	if slot < 0 {
		return nil, false
	}
	col := loc.archetype.ChunkAt(loc.chunk).Column(slot)
	return getColumn[T](col, loc.row), true
}

// SetComponent overwrites e's value for component id in place, without
// any structural move. Returns false if e lacks id.
func SetComponent[T any](s *Storage, e Entity, id ComponentID, value T) bool {
	ptr, ok := GetComponent[T](s, e, id)
	if !ok {
		return false
	}
	*ptr = value
	return true
}

// AddComponents applies AddComponent with the same value to every entity
// in es, skipping entities already carrying id or invalid. Stops and
// returns an error on the first allocation exhaustion, leaving prior
// entities in es relocated and the remainder untouched.
func AddComponents[T any](s *Storage, es []Entity, id ComponentID, value T) error {
	for _, e := range es {
		if _, err := AddComponent[T](s, e, id, value); err != nil {
			return err
		}
	}
	return nil
}

// RemoveComponents applies RemoveComponent to every entity in es.
func RemoveComponents(s *Storage, es []Entity, id ComponentID) error {
	for _, e := range es {
		if _, err := RemoveComponent(s, e, id); err != nil {
			return err
		}
	}
	return nil
}

// PoolStats returns the underlying chunk pool's statistics.
func (s *Storage) PoolStats() PoolStats { return s.pool.Stats() }

// CleanupEmptyArchetypes scans non-root archetypes for cleanup candidates
// (spec.md §4.6): current count zero, observed empty for at least
// opts.EmptyGenerations consecutive sweeps, and peak count within
// opts.PeakBound (0 = unbounded). Removes at most opts.MaxToRemove,
// never taking the total archetype count below opts.MinToKeep. Returns
// the number of archetypes removed.
func (s *Storage) CleanupEmptyArchetypes(opts CleanupOptions) int {
	if opts.EmptyGenerations <= 0 {
		opts.EmptyGenerations = 1
	}
	type candidate struct {
		idx int
		a   *Archetype
	}
	var candidates []candidate
	for i, a := range s.archetypes {
		if a == s.root {
			continue
		}
		a.markCleanupObserved()
		if a.count != 0 {
			continue
		}
		if a.emptyGenerations < opts.EmptyGenerations {
			continue
		}
		if opts.PeakBound > 0 && a.peakCount > opts.PeakBound {
			continue
		}
		candidates = append(candidates, candidate{idx: i, a: a})
	}

	removed := 0
	removedSet := make(map[*Archetype]bool, len(candidates))
	for _, c := range candidates {
		if opts.MaxToRemove > 0 && removed >= opts.MaxToRemove {
			break
		}
		if opts.MinToKeep > 0 && len(s.archetypes)-removed <= opts.MinToKeep {
			break
		}
		removedSet[c.a] = true
		removed++
	}
	s.logger.Debug("ecs: archetype cleanup swept", "candidates", len(candidates), "removed", removed)
	if removed == 0 {
		return 0
	}

	for _, a := range s.archetypes {
		if removedSet[a] || a.edges == nil {
			continue
		}
		scrubEdges(a, removedSet)
	}

	kept := s.archetypes[:0]
	for _, a := range s.archetypes {
		if removedSet[a] {
			s.logger.Warn("ecs: archetype removed by cleanup", "id", a.id, "peak_count", a.peakCount)
			for i := 0; i < a.ChunkCount(); i++ {
				a.ChunkAt(i).release()
			}
			s.archetypeByMask.Delete(a.mask)
			continue
		}
		kept = append(kept, a)
	}
	s.archetypes = kept
	s.checkInvariants("CleanupEmptyArchetypes")
	return removed
}

func scrubEdges(a *Archetype, victims map[*Archetype]bool) {
	for i, t := range a.edges.addFast {
		if t != nil && victims[t.archetype] {
			a.edges.addFast[i] = nil
		}
	}
	for i, t := range a.edges.removeFast {
		if t != nil && victims[t.archetype] {
			a.edges.removeFast[i] = nil
		}
	}
	for id, t := range a.edges.addSlow {
		if victims[t.archetype] {
			delete(a.edges.addSlow, id)
		}
	}
	for id, t := range a.edges.removeSlow {
		if victims[t.archetype] {
			delete(a.edges.removeSlow, id)
		}
	}
}

// Archetypes returns the live archetype list, root first.
func (s *Storage) Archetypes() []*Archetype { return s.archetypes }

// CoalesceArchetype runs Archetype.Coalesce on a and applies the resulting
// MovedEntries to the entity→location map, so every relocated entity keeps
// resolving to its real chunk and row afterward (spec.md §4.5's coalesce
// operation). Returns the same result Archetype.Coalesce produced.
func (s *Storage) CoalesceArchetype(a *Archetype) CoalesceResult {
	result := a.Coalesce()
	for _, m := range result.MovedEntries {
		s.setLocation(m.Entity, a, m.NewChunk, m.NewRow)
	}
	s.logger.Debug("ecs: archetype coalesced", "id", a.id, "chunks_freed", result.ChunksFreed, "entities_moved", len(result.MovedEntries))
	s.checkInvariants("CoalesceArchetype")
	return result
}
