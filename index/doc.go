// Package index implements the vector index used for semantic retrieval.
//
// Entries map a record id to the embedding of its summary plus a little
// metadata for filtering. The index keeps every entry in memory for brute
// force cosine search and persists them in a bbolt file so it survives
// restarts. The record store stays the source of truth: Rebuild replaces
// the whole index atomically from entries derived from processed records.
//
// All vectors in one index share a dimension. It is either fixed when the
// index is opened or adopted from the first write, and it is persisted.
// Writing or querying with any other dimension fails with
// ErrDimensionMismatch, which wraps core.ErrContractViolation.
package index
