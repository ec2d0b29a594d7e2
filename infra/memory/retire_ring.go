package memory

import "sync/atomic"

// RetireRing is a lock-free SPSC ring holding retired objects between
// unlink and reclamation. In this system the same goroutine produces and
// consumes, but the ring keeps the stricter SPSC discipline so callers
// never have to think about it.
type RetireRing struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []any
	mask  uint64
}

// NewRetireRing allocates a ring. Capacity must be a power of two.
func NewRetireRing(pow2 uint64) *RetireRing {
	if pow2 == 0 || pow2&(pow2-1) != 0 {
		panic("memory: retire ring capacity must be a power of two")
	}
	return &RetireRing{buf: make([]any, pow2), mask: pow2 - 1}
}

// Enqueue adds an object; returns false if the ring is full.
func (r *RetireRing) Enqueue(obj any) bool {
	h := r.head
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = obj
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// Dequeue removes the oldest object; returns nil if empty.
func (r *RetireRing) Dequeue() any {
	t := r.tail
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return nil
	}
	obj := r.buf[t&r.mask]
	r.buf[t&r.mask] = nil
	atomic.StoreUint64(&r.tail, t+1)
	return obj
}

func (r *RetireRing) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func (r *RetireRing) Cap() int { return len(r.buf) }
