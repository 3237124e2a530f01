/*
Package ecs is an archetype-based Entity-Component-System data engine.

Entities are packed (index, version) handles stored in dense, columnar
storage grouped by the exact set of component types each entity carries
(an "archetype"). Structural mutation (adding or removing a component)
relocates an entity's row to a neighboring archetype; a swiss-table-style
hash map backs the mask-to-archetype lookup, while entity-to-location is a
dense slice indexed by entity index.
Views walk the archetypes that satisfy a query and iterate their chunks
column by column; a deferred command buffer lets callers queue structural
mutation while a view is open; a system scheduler groups systems that
declare non-conflicting component reads/writes into parallel batches.

Basic usage:

	registry := ecs.NewRegistry()
	position := ecs.MustRegisterComponent[Position](registry)
	velocity := ecs.MustRegisterComponent[Velocity](registry)

	storage := ecs.NewStorage(registry, ecs.DefaultConfig())
	e, _ := storage.CreateEntity()
	ecs.AddComponent(storage, e, position, Position{X: 1})
	ecs.AddComponent(storage, e, velocity, Velocity{X: 1})

	view := ecs.NewView(storage, ecs.NewQuery().Require(position, velocity))
	for it := view.Iter(); it.Next(); {
		pos := ecs.Get[Position](it, position)
		vel := ecs.Get[Velocity](it, velocity)
		pos.X += vel.X
	}

The storage core is single-writer: structural mutation must not overlap
with concurrent iteration or with other structural mutation. The system
scheduler and command buffer exist to make that safe to coordinate across
many systems without every system hand-rolling its own locking.
*/
package ecs
