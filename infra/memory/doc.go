// Package memory provides the primitives for safe reclamation of
// lock-free data structure nodes under concurrent readers: a per-owner
// epoch Domain with registered Reader handles, an SPSC RetireRing for
// unlinked nodes, and a typed Pool for recycling them.
//
// The contract is RCU-style: the single writer unlinks a node, stamps it
// with the current epoch, and pushes it onto the ring; the node is only
// handed back to the pool once no registered reader is still inside a
// read section that began at or before that epoch.
package memory
