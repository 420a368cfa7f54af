// Package mmap provides anonymous off-heap memory mappings.
//
// Pages of the value store can be backed by anonymous mappings instead
// of Go-heap slices. This keeps multi-gigabyte page arrays out of the
// garbage collector's scan set. Mappings are created once, never grown,
// and unmapped only when the owning store is torn down.
package mmap
