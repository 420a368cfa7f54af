// Package testutil provides testing utilities for gravix.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source plus helpers for
// generating keys and value payloads with controllable entropy.
//
// # Random Payload Generation
//
//	rng := testutil.NewRNG(seed)
//	val := rng.Bytes(1024)             // incompressible
//	val = rng.CompressibleBytes(1024)  // low-entropy, compresses well
//
// # Key Generation
//
//	keys := rng.Keys(10000) // distinct pseudo-random keys
package testutil
