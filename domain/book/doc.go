// Package book implements the in-memory level2 order book replica: two
// price-to-size side maps continually rewritten by a single feed-driven
// writer and read concurrently by any number of consumer goroutines.
//
// The side maps are skip lists whose links are updated with atomic
// stores, so reads take no lock; unlinked nodes go through epoch-based
// reclamation (infra/memory) before they are reused. The book operates
// as a single-writer system: only the processing goroutine may call the
// mutating methods, which is enforced by construction in the service
// layer rather than by locks here.
package book
