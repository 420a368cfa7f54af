package pagestore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gravix/internal/resource"
)

func TestAppendRead(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ref, err := s.Append([]byte("hello"))
	require.NoError(t, err)
	require.NotEqual(t, Ref(0), ref)

	got, err := s.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestAppendEmptyValue(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ref, err := s.Append(nil)
	require.NoError(t, err)

	got, err := s.Read(ref)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadInvalidRef(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Read(0)
	assert.ErrorIs(t, err, ErrInvalidRef)

	// Page far beyond the allocated range.
	_, err = s.Read(Ref(uint64(4096) << s.pageBits))
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestPageRollover(t *testing.T) {
	s, err := New(WithPageSize(MinPageSize))
	require.NoError(t, err)
	defer s.Close()

	value := make([]byte, 1000)
	for i := range value {
		value[i] = byte(i)
	}

	var refs []Ref
	for i := 0; i < 50; i++ {
		ref, err := s.Append(value)
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	stats := s.Stats()
	assert.Greater(t, stats.Pages, uint64(1), "expected rollover into multiple pages")
	assert.Equal(t, uint64(50), stats.Appends)

	for _, ref := range refs {
		got, err := s.Read(ref)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestValueTooLarge(t *testing.T) {
	s, err := New(WithPageSize(MinPageSize))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(make([]byte, s.PageSize()+1))
	var tooLarge *ErrValueTooLarge
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, s.PageSize()+1, tooLarge.Size)
}

func TestConcurrentAppendUniqueRefs(t *testing.T) {
	s, err := New(WithPageSize(MinPageSize))
	require.NoError(t, err)
	defer s.Close()

	const (
		workers = 8
		perG    = 500
	)

	results := make([][]Ref, workers)
	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			refs := make([]Ref, 0, perG)
			var buf [16]byte
			for i := 0; i < perG; i++ {
				binary.LittleEndian.PutUint64(buf[:8], uint64(g))
				binary.LittleEndian.PutUint64(buf[8:], uint64(i))
				ref, err := s.Append(buf[:])
				if err != nil {
					t.Error(err)
					return
				}
				refs = append(refs, ref)
			}
			results[g] = refs
		}(g)
	}
	wg.Wait()

	seen := make(map[Ref]struct{}, workers*perG)
	for g, refs := range results {
		require.Len(t, refs, perG)
		for i, ref := range refs {
			_, dup := seen[ref]
			require.False(t, dup, "duplicate ref %v", ref)
			seen[ref] = struct{}{}

			got, err := s.Read(ref)
			require.NoError(t, err)
			require.Len(t, got, 16)
			assert.Equal(t, uint64(g), binary.LittleEndian.Uint64(got[:8]))
			assert.Equal(t, uint64(i), binary.LittleEndian.Uint64(got[8:]))
		}
	}
}

func TestOffHeapPages(t *testing.T) {
	s, err := New(WithPageSize(MinPageSize), WithOffHeap(true))
	require.NoError(t, err)

	var refs []Ref
	value := bytes.Repeat([]byte{0x42}, 600)
	for i := 0; i < 20; i++ {
		ref, err := s.Append(value)
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	for _, ref := range refs {
		got, err := s.Read(ref)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}

	require.NoError(t, s.Close())

	_, err = s.Append(value)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Read(refs[0])
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseDrainsInflightOps(t *testing.T) {
	// Close must not unmap page memory while a Read or Append is still
	// inside it. Off-heap pages plus compressed payloads keep readers in
	// the page scan long enough to race the teardown.
	s, err := New(
		WithOffHeap(true),
		WithCompression(CompressionS2),
		WithCompressionThreshold(64),
	)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("graph-document "), 20000)
	var refs []Ref
	for i := 0; i < 8; i++ {
		ref, err := s.Append(payload)
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	started := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				got, err := s.Read(refs[(g+i)%len(refs)])
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				if !assert.Len(t, got, len(payload)) {
					return
				}
				once.Do(func() { close(started) })
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if _, err := s.Append(payload); err != nil {
				assert.ErrorIs(t, err, ErrClosed)
				return
			}
		}
	}()

	<-started
	require.NoError(t, s.Close())
	wg.Wait()

	_, err = s.Read(refs[0])
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAllocationFailure(t *testing.T) {
	// Budget covers the initial page only; the first rollover must fail
	// without corrupting records committed so far.
	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: MinPageSize})
	s, err := New(WithPageSize(MinPageSize), WithController(ctrl))
	require.NoError(t, err)
	defer s.Close()

	value := make([]byte, 1024)
	var refs []Ref
	for {
		ref, err := s.Append(value)
		if err != nil {
			assert.ErrorIs(t, err, ErrAllocationFailed)
			assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
			break
		}
		refs = append(refs, ref)
	}

	require.NotEmpty(t, refs)
	for _, ref := range refs {
		got, err := s.Read(ref)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestStats(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Pages)
	assert.Equal(t, uint64(s.PageSize()), stats.BytesReserved)
	assert.Equal(t, uint64(0), stats.Appends)

	_, err = s.Append([]byte("x"))
	require.NoError(t, err)

	stats = s.Stats()
	assert.Equal(t, uint64(1), stats.Appends)
	assert.Greater(t, stats.BytesUsed, uint64(0))
}

func TestPageSizeRounding(t *testing.T) {
	s, err := New(WithPageSize(5000))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 8192, s.PageSize())

	s2, err := New(WithPageSize(1))
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, MinPageSize, s2.PageSize())
}

func TestCompressionRoundtrip(t *testing.T) {
	for _, codec := range []Compression{CompressionLZ4, CompressionS2} {
		t.Run(fmt.Sprintf("codec=%d", codec), func(t *testing.T) {
			s, err := New(WithCompression(codec), WithCompressionThreshold(64))
			require.NoError(t, err)
			defer s.Close()

			// Highly compressible payload.
			compressible := bytes.Repeat([]byte("graph-document "), 200)
			ref, err := s.Append(compressible)
			require.NoError(t, err)

			got, err := s.Read(ref)
			require.NoError(t, err)
			assert.Equal(t, compressible, got)

			// Compression actually happened: used bytes stay well below raw size.
			assert.Less(t, s.Stats().BytesUsed, uint64(len(compressible)))

			// Below-threshold payloads are stored raw.
			small := []byte("tiny")
			ref, err = s.Append(small)
			require.NoError(t, err)
			got, err = s.Read(ref)
			require.NoError(t, err)
			assert.Equal(t, small, got)
		})
	}
}

func TestIncompressibleFallback(t *testing.T) {
	s, err := New(WithCompression(CompressionLZ4), WithCompressionThreshold(64))
	require.NoError(t, err)
	defer s.Close()

	// Pseudo-random bytes do not compress; the store must fall back to raw.
	value := make([]byte, 4096)
	x := uint64(0x9e3779b97f4a7c15)
	for i := range value {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		value[i] = byte(x)
	}

	ref, err := s.Append(value)
	require.NoError(t, err)

	got, err := s.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}
