package book

import (
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/theone-pang/gdaxbook/infra/memory"
)

// retireRingSize bounds how many unlinked nodes can await reclamation;
// overflow falls back to the garbage collector.
const retireRingSize = 1 << 16

// Book is the pair of side maps plus the one-shot readiness signal. It is
// single-writer: only the owning processing goroutine may call
// LoadSnapshot and ApplyChanges. Reads on the sides are lock-free and may
// come from any goroutine holding a registered Reader.
type Book struct {
	bids *SideMap
	asks *SideMap

	domain *memory.Domain
	ring   *memory.RetireRing
	pool   *memory.Pool[slnode]

	ready   atomic.Bool
	readyCh chan struct{}
}

func New() *Book {
	domain := memory.NewDomain()
	ring := memory.NewRetireRing(retireRingSize)
	pool := memory.NewPool(func() *slnode { return &slnode{} })
	descending := func(a, b decimal.Decimal) bool { return a.Cmp(b) > 0 }
	ascending := func(a, b decimal.Decimal) bool { return a.Cmp(b) < 0 }
	return &Book{
		bids:    newSideMap(descending, domain, ring, pool),
		asks:    newSideMap(ascending, domain, ring, pool),
		domain:  domain,
		ring:    ring,
		pool:    pool,
		readyCh: make(chan struct{}),
	}
}

func (b *Book) Bids() *SideMap { return b.bids }
func (b *Book) Asks() *SideMap { return b.asks }

// Ready reports whether the first snapshot has been applied.
func (b *Book) Ready() bool { return b.ready.Load() }

// ReadyCh is closed exactly once, when the book becomes ready.
func (b *Book) ReadyCh() <-chan struct{} { return b.readyCh }

// NewReader registers a reader with the book's reclamation domain. Every
// goroutine reading the sides must hold one and Close it when done.
func (b *Book) NewReader() *memory.Reader { return b.domain.Register() }

// LoadSnapshot replaces the full contents of both sides. A snapshot
// arriving after the book is already ready is a reset, not a merge: both
// sides are cleared first. Flips readiness on the first call.
func (b *Book) LoadSnapshot(bids, asks []Level) {
	if b.ready.Load() {
		b.bids.Clear()
		b.asks.Clear()
	}
	for _, l := range bids {
		b.bids.Insert(l.Price, l.Size)
	}
	for _, l := range asks {
		b.asks.Insert(l.Price, l.Size)
	}
	if b.ready.CompareAndSwap(false, true) {
		close(b.readyCh)
	}
}

// ApplyChanges applies one update's changes strictly in arrival order, so
// a later change for the same price wins. Zero size erases the level.
func (b *Book) ApplyChanges(changes []Change) {
	for _, c := range changes {
		side := b.asks
		if c.Side == Bid {
			side = b.bids
		}
		if c.Size.IsZero() {
			side.Erase(c.Price)
		} else {
			side.Update(c.Price, c.Size)
		}
	}
}

// Reclaim advances the epoch and recycles retired nodes no reader can
// still observe. Writer goroutine only.
func (b *Book) Reclaim() int {
	return b.domain.AdvanceAndReclaim(b.ring, b.pool)
}

// Retired reports how many nodes currently await reclamation.
func (b *Book) Retired() int { return b.ring.Len() }
