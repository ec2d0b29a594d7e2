package book

import (
	"math/rand"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/theone-pang/gdaxbook/infra/memory"
)

const maxHeight = 16

// slnode is one skip list entry. Price is immutable for the life of the
// node; size is replaced in place with an atomic pointer swap. Nodes are
// pooled, so a node must never be reset while a reader can still reach it
// - that is what the retire epoch protects.
type slnode struct {
	price       decimal.Decimal
	size        atomic.Pointer[decimal.Decimal]
	next        [maxHeight]atomic.Pointer[slnode]
	height      int
	retireEpoch uint64
}

// RetireEpoch satisfies memory.Retirable.
func (n *slnode) RetireEpoch() uint64 { return n.retireEpoch }

func (n *slnode) reset() {
	for i := range n.next {
		n.next[i].Store(nil)
	}
	n.price = decimal.Decimal{}
	n.size.Store(nil)
	n.height = 0
	n.retireEpoch = 0
}

// SideMap is a concurrent ordered map from price to size backing one side
// of the book. Exactly one goroutine mutates it (Insert/Update/Erase/
// Clear); any number of goroutines may call Lookup/Best/Ascend
// concurrently with those mutations, each between Reader.Enter and
// Reader.Exit on a reader registered with the owning book's domain.
//
// Ordering follows the side's priority: bids iterate highest price first,
// asks lowest price first.
type SideMap struct {
	head *slnode
	less func(a, b decimal.Decimal) bool
	size atomic.Int64

	domain *memory.Domain
	ring   *memory.RetireRing
	pool   *memory.Pool[slnode]
}

func newSideMap(
	less func(a, b decimal.Decimal) bool,
	domain *memory.Domain,
	ring *memory.RetireRing,
	pool *memory.Pool[slnode],
) *SideMap {
	return &SideMap{
		head:   &slnode{height: maxHeight},
		less:   less,
		domain: domain,
		ring:   ring,
		pool:   pool,
	}
}

// findPath locates the node at price, filling path with the predecessor
// at every height. Writer goroutine only.
func (m *SideMap) findPath(price decimal.Decimal, path *[maxHeight]*slnode) *slnode {
	x := m.head
	for lvl := maxHeight - 1; lvl >= 0; lvl-- {
		for {
			nxt := x.next[lvl].Load()
			if nxt == nil || !m.less(nxt.price, price) {
				break
			}
			x = nxt
		}
		path[lvl] = x
	}
	n := x.next[0].Load()
	if n != nil && n.price.Equal(price) {
		return n
	}
	return nil
}

// Insert adds or replaces the entry at price. Used during snapshot load.
func (m *SideMap) Insert(price, size decimal.Decimal) {
	m.put(price, size)
}

// Update replaces the size in place if price exists, otherwise inserts.
// Used for incremental updates with nonzero size.
func (m *SideMap) Update(price, size decimal.Decimal) {
	m.put(price, size)
}

func (m *SideMap) put(price, size decimal.Decimal) {
	var path [maxHeight]*slnode
	if n := m.findPath(price, &path); n != nil {
		s := size
		n.size.Store(&s)
		return
	}

	h := randHeight()
	n := m.pool.Get()
	n.reset()
	n.price = price
	n.height = h
	s := size
	n.size.Store(&s)
	for lvl := 0; lvl < h; lvl++ {
		n.next[lvl].Store(path[lvl].next[lvl].Load())
	}
	// Link bottom-up: the node is fully formed before it appears in the
	// base list, and the express lanes only ever point at reachable nodes.
	for lvl := 0; lvl < h; lvl++ {
		path[lvl].next[lvl].Store(n)
	}
	m.size.Add(1)
}

// Erase removes the entry at price. A missing price is a no-op, not an
// error: the feed may remove levels the snapshot never contained.
func (m *SideMap) Erase(price decimal.Decimal) bool {
	var path [maxHeight]*slnode
	n := m.findPath(price, &path)
	if n == nil {
		return false
	}
	// Unlink top-down so readers lose the express lanes before the base
	// list; the node's own pointers stay intact for readers inside it.
	for lvl := n.height - 1; lvl >= 0; lvl-- {
		path[lvl].next[lvl].Store(n.next[lvl].Load())
	}
	m.size.Add(-1)
	m.retire(n)
	return true
}

// Clear unlinks every entry, retiring all nodes. Used for full resets
// when the feed resends a snapshot.
func (m *SideMap) Clear() {
	n := m.head.next[0].Load()
	for lvl := maxHeight - 1; lvl >= 0; lvl-- {
		m.head.next[lvl].Store(nil)
	}
	for n != nil {
		nxt := n.next[0].Load()
		m.retire(n)
		n = nxt
	}
	m.size.Store(0)
}

func (m *SideMap) retire(n *slnode) {
	n.retireEpoch = m.domain.Epoch()
	// On a full ring the node is simply left to the garbage collector:
	// pooled reuse is an optimization, safety comes from never resetting
	// a node while a reader can still hold it.
	_ = m.ring.Enqueue(n)
}

// Lookup returns the size resting at price, if any. Safe for concurrent
// readers.
func (m *SideMap) Lookup(price decimal.Decimal) (decimal.Decimal, bool) {
	x := m.head
	for lvl := maxHeight - 1; lvl >= 0; lvl-- {
		for {
			nxt := x.next[lvl].Load()
			if nxt == nil || !m.less(nxt.price, price) {
				break
			}
			x = nxt
		}
	}
	n := x.next[0].Load()
	if n == nil || !n.price.Equal(price) {
		return decimal.Decimal{}, false
	}
	return *n.size.Load(), true
}

// Best returns the top of this side: highest bid or lowest ask.
func (m *SideMap) Best() (Level, bool) {
	n := m.head.next[0].Load()
	if n == nil {
		return Level{}, false
	}
	return Level{Price: n.price, Size: *n.size.Load()}, true
}

// Ascend walks the side in priority order until fn returns false. The
// walk is lazy and restartable; it observes a live structure, so entries
// mutated mid-walk reflect whichever state the walk reached first.
func (m *SideMap) Ascend(fn func(Level) bool) {
	for n := m.head.next[0].Load(); n != nil; n = n.next[0].Load() {
		if !fn(Level{Price: n.price, Size: *n.size.Load()}) {
			return
		}
	}
}

// Len reports the number of resting levels.
func (m *SideMap) Len() int {
	return int(m.size.Load())
}

func randHeight() int {
	h := 1
	for h < maxHeight && rand.Uint32()&1 == 0 {
		h++
	}
	return h
}
