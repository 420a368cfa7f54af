package radix

import (
	"errors"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrTableLimit is returned when growth would exceed the maximum bucket
// count.
var ErrTableLimit = errors.New("radix: bucket table limit exceeded")

// BeginWrite registers an in-flight mutator. It returns false when the
// table has been sealed for growth; the caller reloads the current
// table and retries there.
func (t *Table) BeginWrite() bool {
	t.writers.Add(1)
	if t.sealed.Load() {
		t.writers.Add(-1)
		return false
	}
	return true
}

// EndWrite unregisters an in-flight mutator.
func (t *Table) EndWrite() {
	t.writers.Add(-1)
}

// Seal marks the table rejected for new mutators and waits until every
// in-flight mutator has drained. Readers are unaffected: the sealed
// table stays a valid snapshot until the grown table is published and
// the old one is dropped.
func (t *Table) Seal() {
	t.sealed.Store(true)
	for t.writers.Load() > 0 {
		runtime.Gosched()
	}
}

// Unseal reopens the table for mutators, used when growth fails and the
// triggering call must not strand the table.
func (t *Table) Unseal() {
	t.sealed.Store(false)
}

// Grow rebuilds every live record into a table with at least factor
// times as many buckets, rehashing old buckets in parallel. The
// receiver must be sealed and quiesced; it is left untouched.
func (t *Table) Grow(factor int) (*Table, error) {
	if factor < 2 {
		factor = 2
	}

	numBuckets := len(t.buckets) * factor
	for {
		if numBuckets > maxBuckets {
			return nil, ErrTableLimit
		}

		next := newTable(numBuckets, t.hash, t.generation+1)
		err := t.rehashInto(next)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, ErrNeedsGrowth) {
			// A pathological key set can saturate a target bucket even
			// after doubling; double again.
			numBuckets *= 2
			continue
		}
		if errors.Is(err, ErrContention) {
			continue // rebuild workers raced on one bucket, rerun
		}
		return nil, err
	}
}

// rehashInto reinserts all live records of t into next using the normal
// publish path, fanning the old bucket range out across workers.
func (t *Table) rehashInto(next *Table) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(t.buckets) {
		workers = len(t.buckets)
	}
	per := (len(t.buckets) + workers - 1) / workers

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		lo := w * per
		hi := min(lo+per, len(t.buckets))
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for bi := lo; bi < hi; bi++ {
				b := &t.buckets[bi]
				mask := b.occupied.Load()
				for mask != 0 {
					i := bits.TrailingZeros64(mask)
					mask &= mask - 1

					v := b.vals[i].Load()
					if v&tombstoneBit != 0 {
						continue
					}
					if err := next.Upsert(b.keys[i].Load(), v); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}
