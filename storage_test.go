package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sPosition struct{ X, Y float32 }
type sVelocity struct{ X, Y float32 }
type sTag struct{}

func newTestStorage(t *testing.T) (*Storage, ComponentID, ComponentID) {
	t.Helper()
	registry := NewRegistry()
	pos := MustRegisterComponent[sPosition](registry)
	vel := MustRegisterComponent[sVelocity](registry)
	storage := NewStorage(registry, DefaultConfig())
	return storage, pos, vel
}

func TestCreateEntityStartsInRootArchetype(t *testing.T) {
	storage, _, _ := newTestStorage(t)
	e, err := storage.CreateEntity()
	require.NoError(t, err)
	require.True(t, storage.Valid(e))
	require.Equal(t, 0, len(storage.root.componentIDs))
	loc, ok := storage.locationOf(e)
	require.True(t, ok)
	require.Same(t, storage.root, loc.archetype)
}

// TestCreateAddReadComponent matches the "create, add, read" scenario:
// after AddComponent, GetComponent returns the stored value by pointer.
func TestCreateAddReadComponent(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	ptr, err := AddComponent(storage, e, pos, sPosition{X: 1, Y: 2})
	require.NoError(t, err)
	require.NotNil(t, ptr)

	got, ok := GetComponent[sPosition](storage, e, pos)
	require.True(t, ok)
	require.Equal(t, sPosition{X: 1, Y: 2}, *got)
}

func TestAddComponentAlreadyPresentIsNoOp(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 1})
	ptr, err := AddComponent(storage, e, pos, sPosition{X: 99})
	require.NoError(t, err)
	require.Nil(t, ptr)

	got, _ := GetComponent[sPosition](storage, e, pos)
	require.Equal(t, float32(1), got.X, "value from the first Add must survive, not be overwritten")
}

func TestAddComponentInvalidEntityIsNoOp(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	stale := newEntity(999, 1)
	ptr, err := AddComponent(storage, stale, pos, sPosition{})
	require.NoError(t, err)
	require.Nil(t, ptr)
}

// TestArchetypeRelocationPreservesMoveConstructedValue matches the scenario
// where adding a component relocates an entity to a neighboring archetype
// and every previously-set component value survives the move.
func TestArchetypeRelocationPreservesMoveConstructedValue(t *testing.T) {
	storage, pos, vel := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 3, Y: 4})
	before, _ := storage.locationOf(e)

	AddComponent(storage, e, vel, sVelocity{X: 5, Y: 6})
	after, _ := storage.locationOf(e)
	require.NotSame(t, before.archetype, after.archetype, "adding a component must relocate to a different archetype")

	gotPos, ok := GetComponent[sPosition](storage, e, pos)
	require.True(t, ok)
	require.Equal(t, sPosition{X: 3, Y: 4}, *gotPos, "the position value must survive relocation")

	gotVel, ok := GetComponent[sVelocity](storage, e, vel)
	require.True(t, ok)
	require.Equal(t, sVelocity{X: 5, Y: 6}, *gotVel)
}

func TestRemoveComponentRelocatesAndDrops(t *testing.T) {
	storage, pos, vel := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 1})
	AddComponent(storage, e, vel, sVelocity{X: 2})

	removed, err := RemoveComponent(storage, e, vel)
	require.NoError(t, err)
	require.True(t, removed)
	require.False(t, storage.HasComponent(e, vel))
	require.True(t, storage.HasComponent(e, pos))

	_, ok := GetComponent[sVelocity](storage, e, vel)
	require.False(t, ok)
}

func TestRemoveComponentAbsentIsNoOp(t *testing.T) {
	storage, pos, vel := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{})
	removed, err := RemoveComponent(storage, e, vel)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestSetComponentInPlaceNoRelocation(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 1})
	loc1, _ := storage.locationOf(e)

	ok := SetComponent(storage, e, pos, sPosition{X: 42})
	require.True(t, ok)
	loc2, _ := storage.locationOf(e)
	require.Equal(t, loc1, loc2, "SetComponent must not move the entity")

	got, _ := GetComponent[sPosition](storage, e, pos)
	require.Equal(t, float32(42), got.X)
}

// TestDestroyEntitySwapRemoveSemantics matches the swap-remove scenario:
// destroying a non-last entity in a chunk relocates the last entity into
// the freed row, and that entity's component data is preserved.
func TestDestroyEntitySwapRemoveSemantics(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e1, _ := storage.CreateEntity()
	AddComponent(storage, e1, pos, sPosition{X: 1})
	e2, _ := storage.CreateEntity()
	AddComponent(storage, e2, pos, sPosition{X: 2})
	e3, _ := storage.CreateEntity()
	AddComponent(storage, e3, pos, sPosition{X: 3})

	require.True(t, storage.DestroyEntity(e1))
	require.False(t, storage.Valid(e1))
	require.True(t, storage.Valid(e2))
	require.True(t, storage.Valid(e3))

	got2, ok := GetComponent[sPosition](storage, e2, pos)
	require.True(t, ok)
	require.Equal(t, float32(2), got2.X)
	got3, ok := GetComponent[sPosition](storage, e3, pos)
	require.True(t, ok)
	require.Equal(t, float32(3), got3.X)
}

func TestDestroyEntityInvalidHandleIsNoOp(t *testing.T) {
	storage, _, _ := newTestStorage(t)
	require.False(t, storage.DestroyEntity(NullEntity))
	require.False(t, storage.DestroyEntity(newEntity(12345, 1)))
}

func TestCreateEntitiesBatch(t *testing.T) {
	storage, _, _ := newTestStorage(t)
	es, err := storage.CreateEntities(10)
	require.NoError(t, err)
	require.Len(t, es, 10)
	for _, e := range es {
		require.True(t, storage.Valid(e))
	}
}

func TestAddComponentsBatch(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	es, _ := storage.CreateEntities(5)
	err := AddComponents(storage, es, pos, sPosition{X: 7})
	require.NoError(t, err)
	for _, e := range es {
		got, ok := GetComponent[sPosition](storage, e, pos)
		require.True(t, ok)
		require.Equal(t, float32(7), got.X)
	}
}

func TestRemoveComponentsBatch(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	es, _ := storage.CreateEntities(5)
	AddComponents(storage, es, pos, sPosition{})
	err := RemoveComponents(storage, es, pos)
	require.NoError(t, err)
	for _, e := range es {
		require.False(t, storage.HasComponent(e, pos))
	}
}

func TestEdgeCacheReusedOnRepeatedTransitions(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e1, _ := storage.CreateEntity()
	AddComponent(storage, e1, pos, sPosition{})
	rootEdges := storage.root.edges
	require.NotNil(t, rootEdges)

	e2, _ := storage.CreateEntity()
	AddComponent(storage, e2, pos, sPosition{})
	require.Same(t, rootEdges, storage.root.edges, "the same archetype's edge cache object is reused across entities")
}

func TestCleanupEmptyArchetypesRemovesAfterGenerations(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{})
	RemoveComponent(storage, e, pos)

	var target *Archetype
	for _, a := range storage.Archetypes() {
		if a != storage.root && a.Count() == 0 && len(a.componentIDs) > 0 {
			target = a
		}
	}
	require.NotNil(t, target)

	removed := storage.CleanupEmptyArchetypes(CleanupOptions{EmptyGenerations: 2})
	require.Equal(t, 0, removed, "not yet observed empty for enough generations")
	removed = storage.CleanupEmptyArchetypes(CleanupOptions{EmptyGenerations: 2})
	require.Equal(t, 1, removed)

	for _, a := range storage.Archetypes() {
		require.NotSame(t, target, a)
	}
}

func TestCleanupEmptyArchetypesRespectsMinToKeep(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{})
	RemoveComponent(storage, e, pos)

	storage.CleanupEmptyArchetypes(CleanupOptions{EmptyGenerations: 1})
	before := len(storage.Archetypes())
	removed := storage.CleanupEmptyArchetypes(CleanupOptions{EmptyGenerations: 1, MinToKeep: before})
	require.Equal(t, 0, removed)
}

func TestCleanupEmptyArchetypesNeverRemovesRoot(t *testing.T) {
	storage, _, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	storage.DestroyEntity(e)
	storage.CleanupEmptyArchetypes(CleanupOptions{EmptyGenerations: 1})
	storage.CleanupEmptyArchetypes(CleanupOptions{EmptyGenerations: 1})
	require.Contains(t, storage.Archetypes(), storage.root)
}

func TestCoalesceArchetypeUpdatesEntityLocations(t *testing.T) {
	registry := NewRegistry()
	posID := MustRegisterComponent[sPosition](registry)
	storage := NewStorage(registry, Config{ChunkPool: NewChunkPoolWithOptions(ChunkPoolOptions{ChunkSize: minChunkSize})})

	byChunk := make(map[int][]Entity)
	var arch *Archetype
	create := func(x float32) Entity {
		e, _ := storage.CreateEntity()
		AddComponent(storage, e, posID, sPosition{X: x})
		loc, _ := storage.locationOf(e)
		arch = loc.archetype
		byChunk[loc.chunk] = append(byChunk[loc.chunk], e)
		return e
	}

	// Fill chunk 0 to capacity.
	for len(byChunk[1]) == 0 {
		create(0)
	}
	capacity := len(byChunk[0])
	require.Greater(t, capacity, 3, "need enough room to express under/over 50% distinctly")

	// Fill chunk 1 to capacity.
	for len(byChunk[1]) < capacity {
		create(9)
	}
	survivor := byChunk[1][0]

	// Chunk 2: more than half full, leaving free rows as a destination.
	for len(byChunk[2]) < capacity/2+1 {
		create(3)
	}

	// Drain chunk 1 down to the single survivor.
	for _, e := range byChunk[1][1:] {
		storage.DestroyEntity(e)
	}
	survivorLoc, _ := storage.locationOf(survivor)
	require.Equal(t, 1, survivorLoc.chunk)

	result := storage.CoalesceArchetype(arch)
	require.Equal(t, 1, result.ChunksFreed)

	got, ok := GetComponent[sPosition](storage, survivor, posID)
	require.True(t, ok)
	require.Equal(t, float32(9), got.X, "coalescing must preserve the survivor's component value")
	newLoc, _ := storage.locationOf(survivor)
	require.Equal(t, 1, newLoc.chunk, "the survivor moved into chunk 2, which was then swapped into erased slot 1; the location map must follow both moves")
}

func TestDebugChecksPassesOnHealthyMutationSequence(t *testing.T) {
	old := DebugChecks
	DebugChecks = true
	defer func() { DebugChecks = old }()

	storage, pos, vel := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 1})
	AddComponent(storage, e, vel, sVelocity{X: 2})
	RemoveComponent(storage, e, pos)
	storage.DestroyEntity(e)
}

func TestDebugChecksPanicsOnInvariantViolation(t *testing.T) {
	old := DebugChecks
	DebugChecks = true
	defer func() { DebugChecks = old }()

	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 1})

	// Corrupt the location map directly (no Storage method ever leaves
	// this particular inconsistency behind) to confirm checkInvariants
	// actually catches a map entry pointing at the wrong row.
	idx := int(e.Index())
	storage.locations[idx].row = 999
	require.Panics(t, func() { storage.checkInvariants("test") })
}

func TestDebugChecksDisabledByDefaultSkipsCorruptedState(t *testing.T) {
	require.False(t, DebugChecks, "DebugChecks must default to false")
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{X: 1})
	storage.locations[int(e.Index())].row = 999
	require.NotPanics(t, func() { storage.checkInvariants("test") }, "checkInvariants must be a no-op when DebugChecks is false")
}

func TestPoolStatsReflectsChunkPool(t *testing.T) {
	storage, pos, _ := newTestStorage(t)
	e, _ := storage.CreateEntity()
	AddComponent(storage, e, pos, sPosition{})
	stats := storage.PoolStats()
	require.GreaterOrEqual(t, stats.TotalChunks, int64(1))
}
