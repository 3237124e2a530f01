package ecs

import "sort"

// Query is a reusable archetype filter built from required, optional,
// excluded, any-of, and one-of component terms (spec.md §4.7). Grounded
// on the teacher's CreateQueryN generated-arity pattern (query.go,
// filter.go), generalized to one non-generated type driven entirely by
// masks, since spec.md's term set (Optional/Not/AnyOf/OneOf) is richer
// than the teacher's plain required-only queries.
type Query struct {
	required Mask
	excluded Mask
	optional Mask
	optIDs   []ComponentID
	anyOf    []Mask
	oneOf    []Mask
}

// NewQuery creates an empty query (matches every archetype until terms are
// added).
func NewQuery() *Query { return &Query{} }

// Require adds bare (required) terms: ids must all be present.
func (q *Query) Require(ids ...ComponentID) *Query {
	for _, id := range ids {
		q.required.Set(id)
	}
	return q
}

// Optional adds Optional<T> terms: included in iteration when present,
// yielding a nil pointer from Get when absent, but never excludes an
// archetype from matching.
func (q *Query) Optional(ids ...ComponentID) *Query {
	for _, id := range ids {
		q.optional.Set(id)
		q.optIDs = append(q.optIDs, id)
	}
	return q
}

// Exclude adds Not<T> terms: archetypes carrying any of ids are excluded.
func (q *Query) Exclude(ids ...ComponentID) *Query {
	for _, id := range ids {
		q.excluded.Set(id)
	}
	return q
}

// AnyOf adds an AnyOf<T...> group: a matching archetype's mask must
// intersect this group in at least one bit.
func (q *Query) AnyOf(ids ...ComponentID) *Query {
	var m Mask
	for _, id := range ids {
		m.Set(id)
	}
	q.anyOf = append(q.anyOf, m)
	return q
}

// OneOf adds a OneOf<T...> group: a matching archetype's mask must
// intersect this group in exactly one bit.
func (q *Query) OneOf(ids ...ComponentID) *Query {
	var m Mask
	for _, id := range ids {
		m.Set(id)
	}
	q.oneOf = append(q.oneOf, m)
	return q
}

func (q *Query) matches(mask Mask) bool {
	if !mask.ContainsAll(q.required) {
		return false
	}
	if !mask.ContainsNone(q.excluded) {
		return false
	}
	for _, g := range q.anyOf {
		if !mask.ContainsAny(g) {
			return false
		}
	}
	for _, g := range q.oneOf {
		if mask.And(g).Count() != 1 {
			return false
		}
	}
	return true
}

// OptionalIDs returns the component ids registered via Optional, in
// registration order.
func (q *Query) OptionalIDs() []ComponentID { return q.optIDs }

// View is a snapshot of the archetypes matching a Query at construction
// time, ordered large-first (spec.md §4.7: "sorting descending by entity
// count improves branch-prediction stability"). Re-create a View after
// structural mutation; it does not track later archetype creation.
type View struct {
	storage *Storage
	query   *Query
	matched []*Archetype
}

// NewView scans storage's archetypes and builds a View for query.
func NewView(storage *Storage, query *Query) *View {
	matched := make([]*Archetype, 0, len(storage.archetypes))
	for _, a := range storage.archetypes {
		if a.Count() == 0 {
			continue
		}
		if query.matches(a.mask) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Count() > matched[j].Count() })
	return &View{storage: storage, query: query, matched: matched}
}

// ArchetypeCount returns the number of archetypes this view matched.
func (v *View) ArchetypeCount() int { return len(v.matched) }

// ChunkCount returns the number of chunks in the archIdx'th matched
// archetype — used by parallel dispatch to partition work by chunk
// (spec.md §4.7's parallel-dispatch variant).
func (v *View) ChunkCount(archIdx int) int { return v.matched[archIdx].ChunkCount() }

// Iter returns a fresh sequential iterator over every matched row,
// chunk-ascending then row-ascending within each archetype, archetypes in
// the view's large-first order.
func (v *View) Iter() *Iterator {
	return &Iterator{view: v, row: -1}
}

// Iterator walks a View's matched archetypes row by row.
type Iterator struct {
	view     *View
	archIdx  int
	chunkIdx int
	row      int
}

// Next advances to the next row, returning false once iteration is
// exhausted.
func (it *Iterator) Next() bool {
	for it.archIdx < len(it.view.matched) {
		arch := it.view.matched[it.archIdx]
		if it.chunkIdx >= arch.ChunkCount() {
			it.archIdx++
			it.chunkIdx = 0
			it.row = -1
			continue
		}
		chunk := arch.ChunkAt(it.chunkIdx)
		it.row++
		if it.row < chunk.Len() {
			return true
		}
		it.chunkIdx++
		it.row = -1
	}
	return false
}

// Entity returns the entity at the iterator's current row.
func (it *Iterator) Entity() Entity {
	return it.currentChunk().Entities()[it.row]
}

// Archetype returns the archetype the iterator is currently positioned
// in.
func (it *Iterator) Archetype() *Archetype { return it.view.matched[it.archIdx] }

func (it *Iterator) currentChunk() *Chunk {
	return it.view.matched[it.archIdx].ChunkAt(it.chunkIdx)
}

// Get returns a pointer to the current row's value for component id, or
// nil if the current archetype does not carry id (the Optional<T>
// degrade-gracefully case).
func Get[T any](it *Iterator, id ComponentID) *T {
	slot := it.Archetype().Slot(id)
	if slot < 0 {
		return nil
	}
	return getColumn[T](it.currentChunk().Column(slot), it.row)
}

// RangeChunk exposes one chunk of one matched archetype by index, for
// callers implementing their own parallel dispatch (spec.md §4.7's
// for_each_range): archIdx selects the matched archetype, chunkIdx one of
// its chunks. f is called once per occupied row in that chunk.
func (v *View) RangeChunk(archIdx, chunkIdx int, f func(row int, e Entity)) {
	chunk := v.matched[archIdx].ChunkAt(chunkIdx)
	entities := chunk.Entities()
	for row := range entities {
		f(row, entities[row])
	}
}
