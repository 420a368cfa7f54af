// Package pagestore implements the segmented append-only value store.
//
// # Concurrency Model
//
// The store supports concurrent Append and Read from any number of
// goroutines. Append reserves a byte range with a single fetch-and-add
// on the active page's write cursor; a mutex is taken only on the rare
// page-rollover path. Read is entirely lock-free: committed page
// regions are immutable for the store's lifetime, so resolved ranges
// can be read without synchronization.
//
// # Memory Management
//
// Pages are fixed-capacity (1 MiB default), allocated on demand and
// never freed individually. A returned Ref stays valid until Close
// tears the whole store down. There is deliberately no per-entry
// reclamation: logical deletion is the index's business (it drops its
// reference), and the store trades bounded dead bytes for the absence
// of any use-after-free hazard.
package pagestore
