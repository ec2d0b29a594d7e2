package memory

import (
	"sync"
	"sync/atomic"
)

// inactive marks a reader that is not inside a read section.
const inactive = ^uint64(0)

// Domain tracks the reclamation epoch for one lock-free structure (or a
// group of structures sharing a writer). Epochs only move forward.
type Domain struct {
	global atomic.Uint64

	mu      sync.Mutex
	readers []*Reader
}

func NewDomain() *Domain {
	return &Domain{}
}

// Register creates a reader handle bound to this domain. Every goroutine
// that reads a structure guarded by the domain must register before its
// first read and Close the handle when it is done.
func (d *Domain) Register() *Reader {
	r := &Reader{domain: d}
	r.epoch.Store(inactive)
	d.mu.Lock()
	d.readers = append(d.readers, r)
	d.mu.Unlock()
	return r
}

func (d *Domain) unregister(r *Reader) {
	d.mu.Lock()
	for i, other := range d.readers {
		if other == r {
			d.readers = append(d.readers[:i], d.readers[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// Epoch returns the current global epoch.
func (d *Domain) Epoch() uint64 {
	return d.global.Load()
}

// ReclaimablePool is the only requirement reclamation places on the
// object pool. It is intentionally type-erased.
type ReclaimablePool interface {
	PutAny(any)
}

// Retirable is what the retire ring holds: anything stamped with the
// epoch at which it was unlinked.
type Retirable interface {
	RetireEpoch() uint64
}

// AdvanceAndReclaim advances the epoch and recycles every retired object
// that no registered reader can still observe. Ring entries are FIFO, so
// the first unsafe object stops the pass. Returns the number reclaimed.
// Writer goroutine only.
func (d *Domain) AdvanceAndReclaim(ring *RetireRing, pool ReclaimablePool) int {
	d.global.Add(1)
	min := d.minReaderEpoch()

	reclaimed := 0
	for {
		obj := ring.Dequeue()
		if obj == nil {
			return reclaimed
		}
		if r, ok := obj.(Retirable); ok && min != inactive && r.RetireEpoch() >= min {
			// Oldest retiree is still visible; newer ones are too.
			_ = ring.Enqueue(obj)
			return reclaimed
		}
		pool.PutAny(obj)
		reclaimed++
	}
}

func (d *Domain) minReaderEpoch() uint64 {
	min := inactive
	d.mu.Lock()
	for _, r := range d.readers {
		if v := r.epoch.Load(); v < min {
			min = v
		}
	}
	d.mu.Unlock()
	return min
}
