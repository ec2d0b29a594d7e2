// Package queue implements the unbounded single-producer/single-consumer
// FIFO that decouples feed receipt from book mutation. The producer and
// consumer touch disjoint ends of a linked list, so neither ever waits on
// the other.
package queue

import "sync/atomic"

type node struct {
	payload []byte
	next    atomic.Pointer[node]
}

// Queue carries raw feed payloads in arrival order. Exactly one goroutine
// may call Enqueue and exactly one may call TryDequeue; that precondition
// is what makes the plain head/tail fields safe.
type Queue struct {
	head  *node // consumer-owned
	_pad1 [56]byte
	tail  *node // producer-owned
	_pad2 [56]byte
	size  atomic.Int64
	wake  chan struct{}
}

func New() *Queue {
	sentinel := &node{}
	return &Queue{
		head: sentinel,
		tail: sentinel,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends a payload. Never blocks; the list grows without bound
// if the consumer falls behind (known risk, accepted by design).
func (q *Queue) Enqueue(payload []byte) {
	n := &node{payload: payload}
	q.tail.next.Store(n)
	q.tail = n
	q.size.Add(1)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryDequeue returns the oldest payload, or ok=false immediately if the
// queue is empty. The caller decides whether to spin, yield, or park.
func (q *Queue) TryDequeue() ([]byte, bool) {
	n := q.head.next.Load()
	if n == nil {
		return nil, false
	}
	payload := n.payload
	n.payload = nil
	q.head = n
	q.size.Add(-1)
	return payload, true
}

// Wake receives a token after enqueues, letting an idle consumer park in
// a select instead of spinning. The channel holds at most one token, so a
// spurious wakeup on an already-drained queue is possible and harmless.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Len reports the queued message count, for observability only.
func (q *Queue) Len() int {
	return int(q.size.Load())
}
