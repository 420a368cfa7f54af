package pagestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/gravix/internal/mmap"
	"github.com/hupe1980/gravix/internal/resource"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("pagestore: closed")
	// ErrInvalidRef is returned when a reference does not resolve to a
	// committed record.
	ErrInvalidRef = errors.New("pagestore: invalid reference")
	// ErrCorruptRecord is returned when a record header cannot be parsed.
	ErrCorruptRecord = errors.New("pagestore: corrupt record")
	// ErrMaxPagesExceeded is returned when the store exceeds the maximum
	// number of pages.
	ErrMaxPagesExceeded = errors.New("pagestore: max pages exceeded")
	// ErrAllocationFailed wraps any failure to allocate a new page.
	ErrAllocationFailed = errors.New("pagestore: allocation failed")
)

// ErrValueTooLarge indicates a payload that cannot fit into a single page.
type ErrValueTooLarge struct {
	Size int
	Max  int
}

func (e *ErrValueTooLarge) Error() string {
	return fmt.Sprintf("pagestore: value of %d bytes exceeds page capacity %d", e.Size, e.Max)
}

const (
	// DefaultPageSize is the default page capacity (1 MiB).
	DefaultPageSize = 1 << 20
	// MinPageSize is the smallest allowed page capacity.
	MinPageSize = 1 << 12
	// MaxPages limits the number of pages per store.
	// 64 GiB addressable space with 1 MiB pages.
	MaxPages = 65536
)

// Ref is a stable reference to a committed record: the page index in the
// high bits and the byte offset within the page in the low bits. The zero
// Ref never refers to a record (offset 0 of page 0 is reserved).
type Ref uint64

// Stats tracks store usage.
type Stats struct {
	Pages         uint64 // active page count
	BytesReserved uint64 // total page memory reserved
	BytesUsed     uint64 // committed record bytes (headers included)
	Appends       uint64 // cumulative append count
}

type atomicStats struct {
	BytesReserved atomic.Uint64
	BytesUsed     atomic.Uint64
	Appends       atomic.Uint64
}

type page struct {
	data    []byte
	mapping *mmap.Mapping // non-nil when the page is mmap-backed
	cursor  atomic.Int64  // accessed concurrently without locks
	index   uint32
}

// Store is a segmented append-only value store.
type Store struct {
	pageSize  int
	pageBits  uint
	pageMask  uint64
	offHeap   bool
	codec     Compression
	threshold int
	ctrl      *resource.Controller

	pages     [MaxPages]atomic.Pointer[page]
	pageCount atomic.Uint32
	active    atomic.Pointer[page]
	mu        sync.Mutex
	closed    atomic.Bool
	refs      atomic.Int64 // in-flight Append/Read operations
	stats     atomicStats
}

// Option is a configuration option for Store.
type Option func(*Store)

// WithPageSize sets the page capacity. The value is rounded up to the
// next power of two and clamped to MinPageSize.
func WithPageSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithOffHeap backs pages with anonymous mappings instead of Go-heap
// slices, keeping page memory out of the garbage collector's scan set.
func WithOffHeap(enabled bool) Option {
	return func(s *Store) {
		s.offHeap = enabled
	}
}

// WithCompression selects the codec applied to payloads at or above the
// compression threshold.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithCompressionThreshold sets the minimum payload size (in bytes) that
// is considered for compression.
func WithCompressionThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithController sets the resource controller consulted before every
// page allocation.
func WithController(c *resource.Controller) Option {
	return func(s *Store) {
		s.ctrl = c
	}
}

// New creates a new Store and allocates its first page.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		pageSize:  DefaultPageSize,
		codec:     CompressionNone,
		threshold: DefaultCompressionThreshold,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.pageSize < MinPageSize {
		s.pageSize = MinPageSize
	}
	// Round up to a power of two so offsets pack into low bits.
	s.pageBits = uint(bits.Len(uint(s.pageSize - 1)))
	s.pageSize = 1 << s.pageBits
	s.pageMask = uint64(s.pageSize - 1)

	s.mu.Lock()
	err := s.allocPageLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Reserve offset 0 of page 0 so the zero Ref stays invalid.
	s.active.Load().cursor.Store(1)

	return s, nil
}

// incRef pins the store's pages for one operation. It fails once the
// store is closed; the increment-then-check order pairs with Close's
// close-then-drain, so no operation can still touch page memory after
// the drain completes.
func (s *Store) incRef() bool {
	s.refs.Add(1)
	if s.closed.Load() {
		s.refs.Add(-1)
		return false
	}
	return true
}

func (s *Store) decRef() {
	s.refs.Add(-1)
}

// Append commits value and returns a stable reference to it.
func (s *Store) Append(value []byte) (Ref, error) {
	if !s.incRef() {
		return 0, ErrClosed
	}
	defer s.decRef()

	buf, err := s.encode(value)
	if err != nil {
		return 0, err
	}
	if len(buf) > s.pageSize {
		return 0, &ErrValueTooLarge{Size: len(value), Max: s.pageSize}
	}

	size := int64(len(buf))
	for {
		p := s.active.Load()
		if p == nil {
			return 0, ErrClosed
		}

		// Single fetch-and-add reserves the range. Overshooting the page
		// capacity is harmless: the cursor of a full page only grows.
		end := p.cursor.Add(size)
		start := end - size
		if end <= int64(len(p.data)) {
			copy(p.data[start:end], buf)
			s.stats.BytesUsed.Add(uint64(size))
			s.stats.Appends.Add(1)
			return Ref(uint64(p.index)<<s.pageBits | uint64(start)), nil
		}

		if err := s.rollPage(p); err != nil {
			return 0, err
		}
	}
}

// Read resolves ref and returns the committed payload.
//
// For uncompressed records the returned slice aliases page memory and is
// valid until Close; compressed records are returned in a fresh buffer.
func (s *Store) Read(ref Ref) ([]byte, error) {
	if !s.incRef() {
		return nil, ErrClosed
	}
	defer s.decRef()

	idx := uint64(ref) >> s.pageBits
	off := uint64(ref) & s.pageMask

	if ref == 0 || idx >= uint64(s.pageCount.Load()) {
		return nil, ErrInvalidRef
	}
	p := s.pages[idx].Load()
	if p == nil || off >= uint64(len(p.data)) {
		return nil, ErrInvalidRef
	}

	return s.decode(p.data[off:])
}

// rollPage installs a fresh active page if p is still the active one.
func (s *Store) rollPage(full *page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() != full {
		return nil // Someone else rolled already; retry against the new page.
	}
	return s.allocPageLocked()
}

func (s *Store) allocPageLocked() error {
	idx := s.pageCount.Load()
	if idx >= MaxPages {
		return fmt.Errorf("%w: %w", ErrAllocationFailed, ErrMaxPagesExceeded)
	}

	if err := s.ctrl.AcquireMemory(int64(s.pageSize)); err != nil {
		return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	p := &page{index: idx}
	if s.offHeap {
		mapping, err := mmap.MapAnon(s.pageSize)
		if err != nil {
			s.ctrl.ReleaseMemory(int64(s.pageSize))
			return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		p.mapping = mapping
		p.data = mapping.Bytes()
	} else {
		p.data = make([]byte, s.pageSize)
	}

	s.pages[idx].Store(p)
	s.stats.BytesReserved.Add(uint64(s.pageSize))

	// Count must be visible before the page becomes active so Read never
	// rejects a reference handed out against the new page.
	s.pageCount.Add(1)
	s.active.Store(p)

	return nil
}

// Stats returns a snapshot of store usage.
func (s *Store) Stats() Stats {
	return Stats{
		Pages:         uint64(s.pageCount.Load()),
		BytesReserved: s.stats.BytesReserved.Load(),
		BytesUsed:     s.stats.BytesUsed.Load(),
		Appends:       s.stats.Appends.Load(),
	}
}

// PageSize returns the effective page capacity.
func (s *Store) PageSize() int {
	return s.pageSize
}

// Close tears down the store, releasing all page memory. Refs become
// invalid. Close is idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	// Drain in-flight operations before unmapping: an Append or Read that
	// got its reference in before the flag flipped may still be inside
	// page memory.
	for s.refs.Load() > 0 {
		runtime.Gosched()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	count := int(s.pageCount.Load())
	for i := 0; i < count; i++ {
		p := s.pages[i].Load()
		if p != nil && p.mapping != nil {
			if err := p.mapping.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		s.pages[i].Store(nil)
	}

	s.ctrl.ReleaseMemory(int64(s.stats.BytesReserved.Load()))
	s.stats.BytesReserved.Store(0)
	s.pageCount.Store(0)
	s.active.Store(nil)

	return firstErr
}

// encode prepends the record header: codec byte, stored length, and the
// raw length when the payload is compressed.
func (s *Store) encode(value []byte) ([]byte, error) {
	codec := s.codec
	if codec != CompressionNone && len(value) >= s.threshold {
		comp, err := compressBlock(codec, value)
		if err != nil {
			return nil, err
		}
		if comp != nil && len(comp) < len(value) {
			buf := make([]byte, 0, len(comp)+2*binary.MaxVarintLen64+1)
			buf = append(buf, byte(codec))
			buf = binary.AppendUvarint(buf, uint64(len(comp)))
			buf = binary.AppendUvarint(buf, uint64(len(value)))
			return append(buf, comp...), nil
		}
		// Incompressible payload, store raw.
	}

	buf := make([]byte, 0, len(value)+binary.MaxVarintLen64+1)
	buf = append(buf, byte(CompressionNone))
	buf = binary.AppendUvarint(buf, uint64(len(value)))
	return append(buf, value...), nil
}

func (s *Store) decode(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrCorruptRecord
	}
	codec := Compression(b[0])
	rest := b[1:]

	storedLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, ErrCorruptRecord
	}
	rest = rest[n:]

	if codec == CompressionNone {
		if storedLen > uint64(len(rest)) {
			return nil, ErrCorruptRecord
		}
		return rest[:storedLen:storedLen], nil
	}

	rawLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, ErrCorruptRecord
	}
	rest = rest[n:]
	if storedLen > uint64(len(rest)) {
		return nil, ErrCorruptRecord
	}

	return decompressBlock(codec, rest[:storedLen], int(rawLen))
}
