package memory

import "sync/atomic"

// Reader marks the read sections of one goroutine. Enter/Exit are cheap
// (one atomic store each) and never block the writer.
type Reader struct {
	domain *Domain
	epoch  atomic.Uint64
}

// Enter pins the current epoch for the duration of a read section.
func (r *Reader) Enter() {
	r.epoch.Store(r.domain.global.Load())
}

// Exit marks the reader idle so reclamation can proceed past it.
func (r *Reader) Exit() {
	r.epoch.Store(inactive)
}

// Close deregisters the reader. The handle must not be used afterwards.
func (r *Reader) Close() {
	r.domain.unregister(r)
}
