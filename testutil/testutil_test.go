package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)

	assert.Equal(t, a.Bytes(64), b.Bytes(64))
	assert.Equal(t, a.Keys(100), b.Keys(100))

	a.Reset()
	c := NewRNG(42)
	assert.Equal(t, c.Bytes(64), a.Bytes(64))
}

func TestKeysDistinct(t *testing.T) {
	keys := NewRNG(1).Keys(10000)
	require.Len(t, keys, 10000)

	seen := make(map[uint64]struct{}, len(keys))
	for _, k := range keys {
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %d", k)
		seen[k] = struct{}{}
	}
}

func TestCompressibleBytesAlphabet(t *testing.T) {
	b := NewRNG(7).CompressibleBytes(4096)
	require.Len(t, b, 4096)
	for i, ch := range b {
		require.GreaterOrEqual(t, ch, byte('a'), "index %d", i)
		require.LessOrEqual(t, ch, byte('h'), "index %d", i)
	}
}
