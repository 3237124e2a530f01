package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArchetypeEdgeAddCachesTarget(t *testing.T) {
	r := NewRegistry()
	posID := MustRegisterComponent[cPos](r)
	velID := MustRegisterComponent[cTag](r)
	pool := NewChunkPool()
	a := newTestArchetype(t, r, pool, posID)

	_, found := a.edgeAdd(velID, 256)
	require.False(t, found)

	target := &edgeTarget{archetype: newTestArchetype(t, r, pool, posID, velID)}
	a.setEdgeAdd(velID, 256, target)

	got, found := a.edgeAdd(velID, 256)
	require.True(t, found)
	require.Same(t, target, got)
}

func TestArchetypeEdgeRemoveCachesTarget(t *testing.T) {
	r := NewRegistry()
	posID := MustRegisterComponent[cPos](r)
	velID := MustRegisterComponent[cTag](r)
	pool := NewChunkPool()
	a := newTestArchetype(t, r, pool, posID, velID)

	_, found := a.edgeRemove(velID, 256)
	require.False(t, found)

	target := &edgeTarget{archetype: newTestArchetype(t, r, pool, posID)}
	a.setEdgeRemove(velID, 256, target)

	got, found := a.edgeRemove(velID, 256)
	require.True(t, found)
	require.Same(t, target, got)
}

func TestArchetypeEdgeFastSlowSplit(t *testing.T) {
	r := NewRegistry()
	posID := MustRegisterComponent[cPos](r)
	pool := NewChunkPool()
	a := newTestArchetype(t, r, pool, posID)

	fastID := ComponentID(3)
	slowID := ComponentID(300)
	fastTarget := &edgeTarget{}
	slowTarget := &edgeTarget{}

	a.setEdgeAdd(fastID, 256, fastTarget)
	a.setEdgeAdd(slowID, 256, slowTarget)

	require.Same(t, fastTarget, a.edges.addFast[fastID])
	got, ok := a.edges.addSlow[slowID]
	require.True(t, ok)
	require.Same(t, slowTarget, got)
}

func TestComputeCopiesOnlySharedComponents(t *testing.T) {
	r := NewRegistry()
	posID := MustRegisterComponent[cPos](r)
	tagID := MustRegisterComponent[cTag](r)
	pool := NewChunkPool()
	from := newTestArchetype(t, r, pool, posID)
	to := newTestArchetype(t, r, pool, posID, tagID)

	copies := computeCopies(from.componentIDs, from.Slot, to.componentIDs, to.Slot)
	require.Len(t, copies, 1)
	require.Equal(t, from.Slot(posID), copies[0].fromSlot)
	require.Equal(t, to.Slot(posID), copies[0].toSlot)
}
