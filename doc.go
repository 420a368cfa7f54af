// Package gravix provides the in-memory storage core of a graph-document
// database: a lock-free key/value index over a segmented append-only
// value store.
//
// The index is a bucketized hash table. Each bucket holds 64 records
// behind a single atomic occupancy mask, so readers take one atomic load
// per lookup and never block writers. Values up to 6 bytes are stored
// inline in the index itself; larger values go to the value store, which
// hands out stable references that never move for the store's lifetime.
//
// # Quick Start
//
//	ctx := context.Background()
//	store, err := gravix.New(
//	    gravix.WithInitialBuckets(1024),
//	    gravix.WithCompression(pagestore.CompressionS2),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer store.Close()
//
//	_ = store.Upsert(ctx, 42, []byte("node payload"))
//
//	val, found, _ := store.Get(ctx, 42)
//
//	for key, val := range store.Iterate() {
//	    process(key, val)
//	}
//
// # Concurrency
//
// Get, Upsert, Delete and Iterate are safe for concurrent use. When a
// bucket fills up the store transparently rebuilds the index into a
// larger table; concurrent readers keep working against the old table
// until the new one is published. Upsert can return ErrContention under
// extreme write pressure on a single bucket; the operation had no effect
// and may simply be retried.
//
// # Resource Limits
//
// Memory for value pages and index tables can be capped with
// WithResourceConfig. Allocations beyond the budget fail with
// ErrAllocationFailed instead of growing without bound, which keeps a
// misbehaving ingest loop from taking the process down.
package gravix
