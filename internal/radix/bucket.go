package radix

import (
	"math/bits"
	"sync/atomic"
)

const (
	// BucketCapacity is the number of slots per bucket. One occupancy
	// word, so every publish and un-publish is a single atomic.
	BucketCapacity = 64

	// tagWords packs one tag byte per slot into atomic words.
	tagWords = BucketCapacity / 8

	// tombstoneBit marks a value word as logically deleted. Callers may
	// use the remaining 63 bits freely.
	tombstoneBit = uint64(1) << 63
)

// ValueMask covers the value-word bits available to callers; the top bit
// is reserved for tombstone bookkeeping.
const ValueMask = tombstoneBit - 1

type bucket struct {
	// occupied is the only atomic a reader touches: a set bit marks a
	// fully-written, published slot.
	occupied atomic.Uint64

	// claims is a superset of occupied. A writer owns a slot's memory
	// from the moment its claim CAS succeeds until the claim is
	// released, which keeps two upserts from electing the same empty
	// slot. Readers never load it.
	claims atomic.Uint64

	tags [tagWords]atomic.Uint64
	keys [BucketCapacity]atomic.Uint64
	vals [BucketCapacity]atomic.Uint64
}

func (b *bucket) tag(i int) uint8 {
	w := b.tags[i>>3].Load()
	return uint8(w >> ((i & 7) * 8))
}

// setTag replaces slot i's tag byte. Only the slot's claimant calls
// this; the CAS loop is for siblings updating other bytes of the word.
func (b *bucket) setTag(i int, tag uint8) {
	word := &b.tags[i>>3]
	shift := uint((i & 7) * 8)
	mask := uint64(0xff) << shift
	for {
		old := word.Load()
		if word.CompareAndSwap(old, old&^mask|uint64(tag)<<shift) {
			return
		}
	}
}

// claim reserves a free slot, scanning circularly from the preferred
// position. Returns false when the bucket is saturated.
func (b *bucket) claim(home int) (int, bool) {
	for {
		claims := b.claims.Load()
		free := ^claims
		if free == 0 {
			return 0, false
		}
		rot := bits.RotateLeft64(free, -home)
		i := (home + bits.TrailingZeros64(rot)) & (BucketCapacity - 1)
		if b.claims.CompareAndSwap(claims, claims|uint64(1)<<i) {
			return i, true
		}
	}
}

func (b *bucket) releaseClaim(i int) {
	b.claims.And(^(uint64(1) << i))
}

// findLive scans the given occupancy snapshot circularly from home for
// key, filtering on the tag byte before the full key compare. The first
// match in probe order wins.
func (b *bucket) findLive(mask uint64, home int, tag uint8, key uint64) (int, bool) {
	rot := bits.RotateLeft64(mask, -home)
	for rot != 0 {
		i := (home + bits.TrailingZeros64(rot)) & (BucketCapacity - 1)
		if b.tag(i) == tag && b.keys[i].Load() == key {
			return i, true
		}
		rot &= rot - 1
	}
	return 0, false
}
