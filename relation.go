package ecs

import "sync"

// relation.go provides the single parent/child relationship spec.md §4.8's
// command buffer needs for set_parent/remove_parent. Spec.md §1 lists the
// full relationship-graph bookkeeping (parent/child/link adjacency maps)
// as explicitly out of scope ("thin wrapping over the core storage"); this
// file is exactly that thin wrapping and nothing more — a Parent
// component plus three helpers, no adjacency index, no link graph, no
// child-enumeration. add_link/remove_link from spec.md's command list are
// not implemented at all.

// Parent holds the entity a child is attached to. Entity is a plain
// uint32-backed handle, so Parent is trivial and stored in a byteColumn
// like any other scalar component.
type Parent struct {
	Entity Entity
}

var (
	parentOnce sync.Map   // *Registry -> ComponentID
	parentMu   sync.Mutex // guards lazy registration races
)

// ParentComponentID returns the Parent component's id for s's registry,
// registering it on first use.
func ParentComponentID(s *Storage) ComponentID {
	if id, ok := parentOnce.Load(s.registry); ok {
		return id.(ComponentID)
	}
	parentMu.Lock()
	defer parentMu.Unlock()
	if id, ok := parentOnce.Load(s.registry); ok {
		return id.(ComponentID)
	}
	if id, ok := ComponentIDFor[Parent](s.registry); ok {
		parentOnce.Store(s.registry, id)
		return id
	}
	id := MustRegisterComponent[Parent](s.registry)
	parentOnce.Store(s.registry, id)
	return id
}

// SetParent attaches child to parent, replacing any existing parent.
// An entity may be its own parent; no cycle detection is performed, since
// the adjacency graph this would require is out of scope.
func SetParent(s *Storage, child, parent Entity) {
	id := ParentComponentID(s)
	if SetComponent(s, child, id, Parent{Entity: parent}) {
		return
	}
	AddComponent(s, child, id, Parent{Entity: parent})
}

// RemoveParent detaches child from its parent, if any.
func RemoveParent(s *Storage, child Entity) (bool, error) {
	return RemoveComponent(s, child, ParentComponentID(s))
}

// GetParent returns child's parent entity and true, or the zero Entity
// and false if child has no parent.
func GetParent(s *Storage, child Entity) (Entity, bool) {
	p, ok := GetComponent[Parent](s, child, ParentComponentID(s))
	if !ok {
		return NullEntity, false
	}
	return p.Entity, true
}
