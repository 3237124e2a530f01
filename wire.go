package ecs

// wire.go documents the per-archetype persisted wire format precisely
// (spec.md §6), without implementing an encoder: "wire and CLI are out
// of scope" for this core, but the layout the core would write is part
// of its contract and worth keeping in typed form rather than prose
// alone, so a future encoder has something concrete to target.
//
// Layout (spec.md §6):
//
//	archetype block := mask_words
//	                  | entity_count
//	                  | entities_per_chunk
//	                  | chunk_count
//	                  | descriptor_count
//	                  | descriptor_record[descriptor_count]
//	                  | chunk_block[chunk_count]
//
//	descriptor_record := stable_hash | size | alignment | version
//
//	chunk_block := chunk_entity_count | entity[chunk_entity_count] | column_data...
//
// Trivially-copyable columns are written as one block (a header
// advertising compressed and original sizes, then the bytes); non-trivial
// columns are serialized per element via the descriptor's custom
// function. The compressed-block threshold is an encoder policy, not a
// wire requirement, so it has no field here.

// WireDescriptorRecord is one descriptor_record entry: enough to
// recognize a component type across a save/load boundary without
// depending on the loading process's in-memory type registration order.
type WireDescriptorRecord struct {
	StableHash uint64
	Size       uint32
	Alignment  uint32
	Version    uint32
}

// WireChunkHeader precedes one chunk's entity list and column data.
type WireChunkHeader struct {
	EntityCount uint32
}

// WireArchetypeHeader precedes an archetype's descriptor records and
// chunk blocks.
type WireArchetypeHeader struct {
	MaskWords        [maskWords]uint64
	EntityCount      uint32
	EntitiesPerChunk uint32
	ChunkCount       uint32
	DescriptorCount  uint32
}

// WireHeader computes a's archetype_block header and descriptor_record
// list as they would appear on the wire. It performs no I/O and compresses
// nothing; an encoder combines this with each chunk's raw or
// per-element-serialized column bytes.
func (a *Archetype) WireHeader() (WireArchetypeHeader, []WireDescriptorRecord) {
	capacity := 0
	if len(a.chunks) > 0 {
		capacity = a.chunks[0].capacity
	}
	header := WireArchetypeHeader{
		MaskWords:        [maskWords]uint64(a.mask),
		EntityCount:      uint32(a.count),
		EntitiesPerChunk: uint32(capacity),
		ChunkCount:       uint32(len(a.chunks)),
		DescriptorCount:  uint32(len(a.descriptors)),
	}
	records := make([]WireDescriptorRecord, len(a.descriptors))
	for i, d := range a.descriptors {
		records[i] = WireDescriptorRecord{
			StableHash: d.Hash,
			Size:       uint32(d.Size),
			Alignment:  uint32(d.Align),
			Version:    1,
		}
	}
	return header, records
}
