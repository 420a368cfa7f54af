package gravix

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// Hasher maps record keys to the 64-bit hash the table routes on. All
// 64 bits are consumed: the high bits pick the bucket, the low bits the
// preferred slot and tag, so a Hasher must mix well across the whole
// word.
type Hasher interface {
	Hash(key uint64) uint64
}

// HasherFunc adapts a plain function to the Hasher interface.
type HasherFunc func(key uint64) uint64

// Hash implements Hasher.
func (f HasherFunc) Hash(key uint64) uint64 { return f(key) }

type murmurHasher struct{}

func (murmurHasher) Hash(key uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return murmur3.Sum64(b[:])
}

// DefaultHasher returns the murmur3-based Hasher used when none is
// configured.
func DefaultHasher() Hasher {
	return murmurHasher{}
}
