// Package reindex rebuilds the vector index from the record store.
//
// Only processed records contribute entries. Their summaries are
// re-embedded in batches, with retry and exponential backoff around the
// embedding calls, and the finished set replaces the index in one atomic
// swap. Use it after changing embedding models or when the index file is
// lost.
package reindex
