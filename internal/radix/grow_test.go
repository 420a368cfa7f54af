package radix

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrowPreservesRecords(t *testing.T) {
	tbl := New(2, mix64)

	// Fill until a bucket saturates.
	var inserted []uint64
	key := uint64(0)
	for {
		err := tbl.Upsert(key, valueFor(key))
		if errors.Is(err, ErrNeedsGrowth) {
			break
		}
		require.NoError(t, err)
		inserted = append(inserted, key)
		key++
	}
	require.NotEmpty(t, inserted)

	tbl.Seal()
	next, err := tbl.Grow(2)
	require.NoError(t, err)

	assert.Equal(t, tbl.Generation()+1, next.Generation())
	assert.GreaterOrEqual(t, next.NumBuckets(), 2*tbl.NumBuckets())
	assert.Equal(t, len(inserted), next.Len())

	for _, k := range inserted {
		v, found := next.Get(k)
		require.True(t, found, "key %d lost in growth", k)
		assert.Equal(t, valueFor(k), v)
	}

	// The blocked insert succeeds on the grown table.
	require.NoError(t, next.Upsert(key, valueFor(key)))
}

func TestGrowSkipsTombstones(t *testing.T) {
	tbl := New(2, mix64)
	for k := uint64(0); k < 100; k++ {
		require.NoError(t, tbl.Upsert(k, k))
	}
	for k := uint64(0); k < 50; k++ {
		removed, err := tbl.Delete(k)
		require.NoError(t, err)
		require.True(t, removed)
	}

	tbl.Seal()
	next, err := tbl.Grow(2)
	require.NoError(t, err)

	assert.Equal(t, 50, next.Len())
	for k := uint64(0); k < 50; k++ {
		_, found := next.Get(k)
		assert.False(t, found, "deleted key %d resurrected", k)
	}
	for k := uint64(50); k < 100; k++ {
		v, found := next.Get(k)
		require.True(t, found)
		assert.Equal(t, k, v)
	}
	assert.Equal(t, uint64(0), next.Stats().Tombstones)
}

func TestGrowDegenerateHash(t *testing.T) {
	// Every key collapses to bucket 0 slot 0 regardless of table size.
	// Growth still completes and preserves every record; it just cannot
	// relieve the saturation.
	tbl := New(1, func(uint64) uint64 { return 0 })
	for k := uint64(0); k < BucketCapacity; k++ {
		require.NoError(t, tbl.Upsert(k, k))
	}
	require.ErrorIs(t, tbl.Upsert(64, 64), ErrNeedsGrowth)

	tbl.Seal()
	next, err := tbl.Grow(2)
	require.NoError(t, err)
	assert.Equal(t, BucketCapacity, next.Len())
	for k := uint64(0); k < BucketCapacity; k++ {
		v, found := next.Get(k)
		require.True(t, found)
		assert.Equal(t, k, v)
	}
	assert.ErrorIs(t, next.Upsert(64, 64), ErrNeedsGrowth)
}

func TestSealBlocksWriters(t *testing.T) {
	tbl := New(4, mix64)

	require.True(t, tbl.BeginWrite())
	tbl.EndWrite()

	var sealed sync.WaitGroup
	sealed.Add(1)
	require.True(t, tbl.BeginWrite())
	go func() {
		defer sealed.Done()
		tbl.Seal() // blocks until the in-flight writer drains
	}()
	tbl.EndWrite()
	sealed.Wait()

	assert.False(t, tbl.BeginWrite())

	tbl.Unseal()
	require.True(t, tbl.BeginWrite())
	tbl.EndWrite()
}

func TestGrowFactorFloor(t *testing.T) {
	tbl := New(4, mix64)
	for k := uint64(0); k < 32; k++ {
		require.NoError(t, tbl.Upsert(k, k))
	}

	tbl.Seal()
	next, err := tbl.Grow(0)
	require.NoError(t, err)
	assert.Equal(t, 8, next.NumBuckets())
	assert.Equal(t, 32, next.Len())
}
