package gravix

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/gravix/internal/pagestore"
	"github.com/hupe1980/gravix/internal/radix"
	"github.com/hupe1980/gravix/internal/resource"
)

const (
	// DefaultInitialBuckets is the starting table size when
	// WithInitialBuckets is not given. 16 buckets hold 1024 records.
	DefaultInitialBuckets = 16

	// contentionRetries bounds how often an operation is replayed after
	// losing a publish race before ErrContention surfaces to the caller.
	contentionRetries = 16
)

// Store composes the bucket table with the value store and coordinates
// table growth. All exported methods are safe for concurrent use.
type Store struct {
	hasher  Hasher
	values  *pagestore.Store
	ctrl    *resource.Controller
	metrics MetricsCollector
	logger  *Logger

	table  atomic.Pointer[radix.Table]
	growMu sync.Mutex // serializes growth cycles
	closed atomic.Bool
}

// New creates a Store.
func New(optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	var ctrl *resource.Controller
	if o.resourceConfig != nil {
		ctrl = resource.NewController(*o.resourceConfig)
	}

	psOpts := []pagestore.Option{
		pagestore.WithPageSize(o.pageSize),
		pagestore.WithCompression(o.compression),
		pagestore.WithOffHeap(o.offHeap),
		pagestore.WithController(ctrl),
	}
	if o.compressionThreshold > 0 {
		psOpts = append(psOpts, pagestore.WithCompressionThreshold(o.compressionThreshold))
	}

	values, err := pagestore.New(psOpts...)
	if err != nil {
		return nil, translateError(err)
	}

	tbl := radix.New(o.initialBuckets, o.hasher.Hash)
	if err := ctrl.AcquireMemory(tbl.MemoryBytes()); err != nil {
		_ = values.Close()
		return nil, translateError(err)
	}

	s := &Store{
		hasher:  o.hasher,
		values:  values,
		ctrl:    ctrl,
		metrics: o.metricsCollector,
		logger:  o.logger,
	}
	s.table.Store(tbl)

	return s, nil
}

// Get returns the value stored for key. A missing key is reported as
// (nil, false, nil), never as an error.
//
// For values held in the value store the returned slice may alias store
// memory; treat it as read-only and do not use it after Close.
func (s *Store) Get(ctx context.Context, key uint64) ([]byte, bool, error) {
	start := time.Now()

	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	word, found := s.table.Load().Get(key)
	if !found {
		s.metrics.RecordGet(false, time.Since(start))
		return nil, false, nil
	}

	val, err := s.materialize(word)
	if err != nil {
		err = translateError(err)
		s.logger.ErrorContext(ctx, "get failed", "key", key, "error", err)
		return nil, false, err
	}

	s.metrics.RecordGet(true, time.Since(start))
	return val, true, nil
}

// Upsert inserts or replaces the value for key. Concurrent readers of
// the same key observe either the previous value or the new one, never a
// mixture and never a transient miss.
func (s *Store) Upsert(ctx context.Context, key uint64, value []byte) error {
	start := time.Now()
	err := s.upsert(ctx, key, value)
	s.metrics.RecordUpsert(time.Since(start), err)
	s.logger.LogUpsert(ctx, key, len(value), err)
	return err
}

func (s *Store) upsert(ctx context.Context, key uint64, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var word uint64
	if len(value) <= MaxInlineValue {
		word = encodeInline(value)
	} else {
		ref, err := s.values.Append(value)
		if err != nil {
			return translateError(err)
		}
		word = uint64(ref)
	}

	for attempt := 0; attempt < contentionRetries; attempt++ {
		tbl, err := s.beginWrite()
		if err != nil {
			return err
		}
		err = tbl.Upsert(key, word)
		tbl.EndWrite()

		switch {
		case err == nil:
			return nil
		case errors.Is(err, radix.ErrNeedsGrowth):
			if gerr := s.grow(ctx, tbl); gerr != nil {
				return gerr
			}
		case errors.Is(err, radix.ErrContention):
			// Lost every publish race in a hot bucket; replay.
		default:
			return translateError(err)
		}
	}
	return fmt.Errorf("%w: upsert of key %d", ErrContention, key)
}

// Delete removes the value for key. It reports whether a value was
// present.
func (s *Store) Delete(ctx context.Context, key uint64) (bool, error) {
	start := time.Now()
	removed, err := s.delete(key)
	s.metrics.RecordDelete(time.Since(start), err)
	s.logger.LogDelete(ctx, key, removed, err)
	return removed, err
}

func (s *Store) delete(key uint64) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	for attempt := 0; attempt < contentionRetries; attempt++ {
		tbl, err := s.beginWrite()
		if err != nil {
			return false, err
		}
		removed, err := tbl.Delete(key)
		tbl.EndWrite()

		if errors.Is(err, radix.ErrContention) {
			continue
		}
		return removed, translateError(err)
	}
	return false, fmt.Errorf("%w: delete of key %d", ErrContention, key)
}

// Iterate returns a single-pass iterator over all live records. Each
// bucket is captured once when the iterator reaches it, so the sequence
// is a per-bucket point-in-time view; it is not restartable.
func (s *Store) Iterate() iter.Seq2[uint64, []byte] {
	return func(yield func(uint64, []byte) bool) {
		start := time.Now()
		yielded := 0
		defer func() {
			s.metrics.RecordIterate(yielded, time.Since(start))
		}()

		if s.closed.Load() {
			return
		}
		for key, word := range s.table.Load().Scan() {
			val, err := s.materialize(word)
			if err != nil {
				return // store closed mid-iteration
			}
			if !yield(key, val) {
				return
			}
			yielded++
		}
	}
}

// LiveKeys returns a bitmap of all live keys, captured with Iterate's
// per-bucket snapshot semantics. The bitmap is the currency of the
// document layer's set algebra (filtering, diffing, bulk expiry).
func (s *Store) LiveKeys() *roaring64.Bitmap {
	bm := roaring64.New()
	if s.closed.Load() {
		return bm
	}
	for key := range s.table.Load().Scan() {
		bm.Add(key)
	}
	return bm
}

// Len returns the number of live records.
func (s *Store) Len() int {
	if s.closed.Load() {
		return 0
	}
	return s.table.Load().Len()
}

// StoreStats is a point-in-time view of index and value-store usage.
type StoreStats struct {
	Buckets     int    // current bucket count
	Capacity    int    // record capacity of the current table
	Live        int64  // live record count
	Tombstones  uint64 // deletions awaiting compaction
	Generation  uint64 // growth generation of the current table
	Pages       uint64 // value-store page count
	PageBytes   uint64 // value-store memory reserved
	ValueBytes  uint64 // committed value bytes (headers included)
	Appends     uint64 // cumulative value-store appends
	MemoryUsage int64  // tracked memory when a resource budget is set
}

// Stats returns a snapshot of store usage.
func (s *Store) Stats() StoreStats {
	ts := s.table.Load().Stats()
	ps := s.values.Stats()
	return StoreStats{
		Buckets:     ts.Buckets,
		Capacity:    ts.Capacity,
		Live:        ts.Live,
		Tombstones:  ts.Tombstones,
		Generation:  ts.Generation,
		Pages:       ps.Pages,
		PageBytes:   ps.BytesReserved,
		ValueBytes:  ps.BytesUsed,
		Appends:     ps.Appends,
		MemoryUsage: s.ctrl.MemoryUsage(),
	}
}

// Close tears down the store, releasing page memory and the resource
// budget. All subsequent operations return ErrClosed. Close is
// idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.ctrl.ReleaseMemory(s.table.Load().MemoryBytes())
	err := s.values.Close()
	s.logger.LogClose(context.Background(), err)
	return translateError(err)
}

// materialize turns a table value word into the stored payload.
func (s *Store) materialize(word uint64) ([]byte, error) {
	if isInline(word) {
		return decodeInline(word), nil
	}
	return s.values.Read(pagestore.Ref(word))
}

// beginWrite registers the caller as a mutator on the current table,
// waiting out an in-flight growth cycle if there is one.
func (s *Store) beginWrite() (*radix.Table, error) {
	for {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		tbl := s.table.Load()
		if tbl.BeginWrite() {
			return tbl, nil
		}
		// The table is sealed for growth. The coordinator's mutex doubles
		// as the wait barrier: once it is free, the new table is published.
		s.growMu.Lock()
		s.growMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
	}
}

// grow replaces old with a table at least twice its size. Concurrent
// callers that hit NeedsGrowth on the same table coalesce into one
// growth cycle; the losers find the table already replaced and return.
func (s *Store) grow(ctx context.Context, old *radix.Table) error {
	s.growMu.Lock()
	defer s.growMu.Unlock()

	cur := s.table.Load()
	if cur != old {
		return nil // another writer grew past this table already
	}

	start := time.Now()

	cur.Seal()
	next, err := cur.Grow(2)
	if err == nil {
		err = s.ctrl.AcquireMemory(next.MemoryBytes())
	}
	if err != nil {
		cur.Unseal()
		err = translateError(err)
		s.metrics.RecordGrowth(cur.NumBuckets(), time.Since(start), err)
		s.logger.LogGrowth(ctx, cur.NumBuckets(), 0, cur.Generation(), time.Since(start), err)
		return err
	}

	// Publish, then release the old table's budget. Readers still inside
	// the old table keep a valid snapshot until the GC retires it.
	s.table.Store(next)
	s.ctrl.ReleaseMemory(cur.MemoryBytes())

	duration := time.Since(start)
	s.metrics.RecordGrowth(next.NumBuckets(), duration, nil)
	s.logger.LogGrowth(ctx, cur.NumBuckets(), next.NumBuckets(), next.Generation(), duration, nil)

	return nil
}
