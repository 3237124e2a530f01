package ecs

import "fmt"

// checkInvariants re-verifies the spec.md §8 universal invariants that are
// cheap to re-derive from live state, and panics on the first violation
// found. Called after every structural mutation when DebugChecks is true;
// a no-op otherwise, so release builds pay nothing for it.
func (s *Storage) checkInvariants(op string) {
	if !DebugChecks {
		return
	}
	for idx, loc := range s.locations {
		if !loc.live {
			continue
		}
		e := newEntity(uint32(idx), s.entities.versions[idx])
		if !s.entities.Valid(e) {
			panic(fmt.Sprintf("ecs: %s left location entry live for a non-live entity index %d", op, idx))
		}
		if loc.chunk < 0 || loc.chunk >= loc.archetype.ChunkCount() {
			panic(fmt.Sprintf("ecs: %s left entity %s pointing at out-of-range chunk %d", op, e, loc.chunk))
		}
		c := loc.archetype.ChunkAt(loc.chunk)
		if loc.row < 0 || loc.row >= c.Len() {
			panic(fmt.Sprintf("ecs: %s left entity %s pointing at out-of-range row %d", op, e, loc.row))
		}
		if got := c.Entities()[loc.row]; got != e {
			panic(fmt.Sprintf("ecs: %s broke the entity map: (archetype %d, chunk %d, row %d) holds %s, not %s", op, loc.archetype.id, loc.chunk, loc.row, got, e))
		}
	}

	for _, a := range s.archetypes {
		sum := 0
		for i := 0; i < a.ChunkCount(); i++ {
			c := a.ChunkAt(i)
			sum += c.Len()
			if i < a.firstNonFullChunk && !c.Full() {
				panic(fmt.Sprintf("ecs: %s left archetype %d chunk %d short of full below firstNonFullChunk", op, a.id, i))
			}
		}
		if sum != a.Count() {
			panic(fmt.Sprintf("ecs: %s left archetype %d chunk counts summing to %d, Count() reports %d", op, a.id, sum, a.Count()))
		}
		if n := a.ChunkCount(); n > 1 && a.ChunkAt(n-1).Len() == 0 {
			panic(fmt.Sprintf("ecs: %s left archetype %d with a trailing empty non-first chunk", op, a.id))
		}
	}
}
