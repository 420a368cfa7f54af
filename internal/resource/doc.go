// Package resource gates heap allocation for pages and bucket tables.
//
// The index and value store never allocate directly; every page or
// table allocation is first cleared through a Controller. A nil
// Controller is valid and imposes no limits, so callers do not need
// nil checks at call sites.
package resource
