package radix

import (
	"errors"
	"iter"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

var (
	// ErrNeedsGrowth is returned when a bucket is saturated. The caller
	// hands the table to the growth path and retries.
	ErrNeedsGrowth = errors.New("radix: bucket saturated")
	// ErrContention is returned when the bounded publish retries are
	// exhausted. The caller retries the whole operation.
	ErrContention = errors.New("radix: publish retries exhausted")
	// ErrValueReserved is returned when a value word uses the reserved
	// tombstone bit.
	ErrValueReserved = errors.New("radix: value uses reserved bit")
)

const (
	// tagBits is the width of the per-slot tag taken from the low hash
	// bits; the preferred slot comes from the bits directly above it.
	tagBits = 8

	// maxBuckets bounds growth; at 64 slots per bucket this is already
	// two billion records.
	maxBuckets = 1 << 25
)

// Table is a lock-free bucketized hash index mapping uint64 keys to
// 63-bit value words. Get, Upsert, Delete and Scan are safe for
// concurrent use; growth is coordinated externally via Seal and Grow.
type Table struct {
	hash       func(uint64) uint64
	buckets    []bucket
	bucketBits uint
	generation uint64

	live       atomic.Int64
	tombstones atomic.Uint64

	// sealed and writers implement the quiescence protocol: growth
	// seals the table, then waits for in-flight mutators to drain
	// before rehashing. See Seal.
	sealed  atomic.Bool
	writers atomic.Int64
}

// New creates a table with at least numBuckets buckets (rounded up to a
// power of two) routing through the given 64-bit hash function.
func New(numBuckets int, hash func(uint64) uint64) *Table {
	return newTable(numBuckets, hash, 0)
}

func newTable(numBuckets int, hash func(uint64) uint64, generation uint64) *Table {
	if numBuckets < 1 {
		numBuckets = 1
	}
	bucketBits := uint(bits.Len(uint(numBuckets - 1)))

	return &Table{
		hash:       hash,
		buckets:    make([]bucket, 1<<bucketBits),
		bucketBits: bucketBits,
		generation: generation,
	}
}

// route partitions a hash into bucket (high bits), preferred slot
// (middle bits) and tag (low bits).
func (t *Table) route(h uint64) (*bucket, int, uint8) {
	idx := h >> (64 - t.bucketBits) // bucketBits==0 shifts to zero
	return &t.buckets[idx], int(h>>tagBits) & (BucketCapacity - 1), uint8(h)
}

// Get returns the value word for key.
func (t *Table) Get(key uint64) (uint64, bool) {
	h := t.hash(key)
	b, home, tag := t.route(h)

	for attempt := 0; attempt < BucketCapacity; attempt++ {
		mask := b.occupied.Load()
		i, found := b.findLive(mask, home, tag, key)
		if !found {
			return 0, false
		}

		v := b.vals[i].Load()
		// Re-check the key after the value load: a reader working from
		// an older mask snapshot may race a slot being recycled. A
		// stable key means v was current for this key at some point in
		// the interval, which is all old-or-new semantics require.
		if b.keys[i].Load() == key && v&tombstoneBit == 0 {
			return v, true
		}
		// Slot recycled underneath us; rescan with a fresh snapshot.
	}
	return 0, false
}

// Upsert inserts or replaces the record for key. The value word must
// stay within ValueMask.
//
// A fresh slot is always claimed and fully written before publication.
// If the key already exists, the occupancy mask transitions
// old-bit-out/new-bit-in in a single compare-and-swap, so concurrent
// readers observe exactly one of the two records. The CAS retries only
// on benign races with unrelated slots in the same bucket, bounded by
// the bucket capacity.
func (t *Table) Upsert(key, val uint64) error {
	if val&^ValueMask != 0 {
		return ErrValueReserved
	}

	h := t.hash(key)
	b, home, tag := t.route(h)

	j, ok := b.claim(home)
	if !ok {
		return ErrNeedsGrowth
	}

	// Write everything before the publish CAS below makes it visible.
	b.setTag(j, tag)
	b.keys[j].Store(key)
	b.vals[j].Store(val)

	newBit := uint64(1) << j
	for retry := 0; retry < BucketCapacity; retry++ {
		mask := b.occupied.Load()
		if i, found := b.findLive(mask, home, tag, key); found {
			oldBit := uint64(1) << i
			if b.occupied.CompareAndSwap(mask, mask&^oldBit|newBit) {
				b.releaseClaim(i)
				return nil
			}
			continue
		}
		if b.occupied.CompareAndSwap(mask, mask|newBit) {
			t.live.Add(1)
			return nil
		}
	}

	b.releaseClaim(j)
	return ErrContention
}

// Delete removes the record for key. It reports whether a live entry
// was found and removed.
func (t *Table) Delete(key uint64) (bool, error) {
	h := t.hash(key)
	b, home, tag := t.route(h)

	for retry := 0; retry < BucketCapacity; retry++ {
		mask := b.occupied.Load()
		i, found := b.findLive(mask, home, tag, key)
		if !found {
			return false, nil
		}

		bit := uint64(1) << i
		if b.occupied.CompareAndSwap(mask, mask&^bit) {
			// Tombstone before releasing the claim: the slot cannot be
			// recycled while the flag is being set.
			b.vals[i].Or(tombstoneBit)
			t.tombstones.Add(1)
			t.live.Add(-1)
			b.releaseClaim(i)
			return true, nil
		}
	}
	return false, ErrContention
}

// Scan returns a single-pass iterator over all live records. Each
// bucket's occupancy mask is captured once when the iterator reaches
// it, so the sequence is a per-bucket point-in-time view: mutations to
// a bucket after its capture are not reflected for that bucket.
func (t *Table) Scan() iter.Seq2[uint64, uint64] {
	return func(yield func(uint64, uint64) bool) {
		for bi := range t.buckets {
			b := &t.buckets[bi]
			mask := b.occupied.Load()
			for mask != 0 {
				i := bits.TrailingZeros64(mask)
				mask &= mask - 1

				k := b.keys[i].Load()
				v := b.vals[i].Load()
				if v&tombstoneBit != 0 || b.keys[i].Load() != k {
					continue // recycled under the snapshot
				}
				if !yield(k, v) {
					return
				}
			}
		}
	}
}

// Len returns the number of live records.
func (t *Table) Len() int {
	return int(t.live.Load())
}

// NumBuckets returns the bucket count.
func (t *Table) NumBuckets() int {
	return len(t.buckets)
}

// Generation returns the table's growth generation, starting at 0.
func (t *Table) Generation() uint64 {
	return t.generation
}

// MemoryBytes returns the heap footprint of the bucket array, used for
// allocation gating before growth.
func (t *Table) MemoryBytes() int64 {
	return int64(len(t.buckets)) * int64(unsafe.Sizeof(bucket{}))
}

// Stats is a point-in-time view of table occupancy.
type Stats struct {
	Buckets    int
	Capacity   int
	Live       int64
	Tombstones uint64
	Generation uint64
}

// Stats returns a snapshot of table occupancy.
func (t *Table) Stats() Stats {
	return Stats{
		Buckets:    len(t.buckets),
		Capacity:   len(t.buckets) * BucketCapacity,
		Live:       t.live.Load(),
		Tombstones: t.tombstones.Load(),
		Generation: t.generation,
	}
}
