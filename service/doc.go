// Package service wires the pipeline together: a feed source fills the
// SPSC queue from one goroutine while a second goroutine drains it,
// decodes each payload, and applies the result to the book. It is the
// only write entry point into the book and owns both goroutine
// lifecycles.
package service
