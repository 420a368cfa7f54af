// Package radix implements the bucketized, tag-filtered hash index.
//
// # Layout
//
// The table is a flat array of fixed-capacity buckets addressed by the
// high bits of a key's 64-bit hash. Each bucket holds 64 slots, an
// atomic occupancy mask (one bit per live slot), an atomic claims mask
// (writer reservations), a tag byte per slot packed into atomic words,
// and per-slot atomic key and value words.
//
// # Concurrency Model
//
// Readers perform one acquire load of a bucket's occupancy mask and
// bit-scan it circularly from the hash-preferred slot, comparing the
// cheap tag byte before the key word. Writers reserve a slot in the
// claims mask (CAS), fully write tag, key and value, and only then
// publish the slot with a single compare-and-swap on the occupancy
// mask. Because every record write happens before its publication
// store, and every reader pairs that store with an acquire load, no
// reader can observe a partially-written record. Replacing an existing
// key's record flips the old and new occupancy bits in one mask
// transition, so concurrent readers see the old record or the new one,
// never both and never neither.
//
// There are no locks anywhere in this package; growth coordination
// (seal, drain, rebuild, publish) is driven by the owning store.
package radix
