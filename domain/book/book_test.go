package book

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func loadedBook() *Book {
	b := New()
	b.LoadSnapshot(
		[]Level{{Price: d("100.0"), Size: d("5")}, {Price: d("99.5"), Size: d("3")}},
		[]Level{{Price: d("100.5"), Size: d("2")}},
	)
	return b
}

func TestSnapshotLoad(t *testing.T) {
	b := loadedBook()

	if !b.Ready() {
		t.Error("book should be ready after first snapshot")
	}
	select {
	case <-b.ReadyCh():
	default:
		t.Error("ready channel should be closed")
	}
	if b.Bids().Len() != 2 || b.Asks().Len() != 1 {
		t.Errorf("expected 2 bids / 1 ask, got %d / %d", b.Bids().Len(), b.Asks().Len())
	}
	if size, ok := b.Bids().Lookup(d("100.0")); !ok || !size.Equal(d("5")) {
		t.Errorf("bid 100.0 = %v, %v; want 5, true", size, ok)
	}
	if size, ok := b.Bids().Lookup(d("99.5")); !ok || !size.Equal(d("3")) {
		t.Errorf("bid 99.5 = %v, %v; want 3, true", size, ok)
	}
	if size, ok := b.Asks().Lookup(d("100.5")); !ok || !size.Equal(d("2")) {
		t.Errorf("ask 100.5 = %v, %v; want 2, true", size, ok)
	}
}

func TestUpdateApplicationOrder(t *testing.T) {
	b := loadedBook()

	// Later entries for the same price win; zero removes.
	b.ApplyChanges([]Change{
		{Side: Bid, Price: d("100.0"), Size: d("7")},
		{Side: Bid, Price: d("100.0"), Size: d("0")},
	})

	if _, ok := b.Bids().Lookup(d("100.0")); ok {
		t.Error("price 100.0 should be absent after zero-size change")
	}
	if b.Bids().Len() != 1 {
		t.Errorf("expected 1 remaining bid, got %d", b.Bids().Len())
	}
}

func TestUpsertOnNewPrice(t *testing.T) {
	b := loadedBook()

	b.ApplyChanges([]Change{{Side: Ask, Price: d("101.0"), Size: d("4")}})

	if size, ok := b.Asks().Lookup(d("101.0")); !ok || !size.Equal(d("4")) {
		t.Errorf("ask 101.0 = %v, %v; want 4, true", size, ok)
	}
	if size, ok := b.Asks().Lookup(d("100.5")); !ok || !size.Equal(d("2")) {
		t.Error("existing ask 100.5 should be undisturbed")
	}
}

func TestIdempotentErase(t *testing.T) {
	b := loadedBook()

	if b.Bids().Erase(d("42.0")) {
		t.Error("erasing an absent price should report false")
	}
	// Removing an absent level via a zero-size change is a no-op too.
	b.ApplyChanges([]Change{{Side: Ask, Price: d("42.0"), Size: d("0")}})
	if b.Asks().Len() != 1 {
		t.Errorf("ask side should be untouched, got %d levels", b.Asks().Len())
	}
}

func TestRepeatSnapshotResets(t *testing.T) {
	b := loadedBook()

	b.LoadSnapshot(
		[]Level{{Price: d("50.0"), Size: d("1")}},
		[]Level{{Price: d("51.0"), Size: d("1")}},
	)

	if b.Bids().Len() != 1 || b.Asks().Len() != 1 {
		t.Errorf("reset should clear old levels, got %d / %d", b.Bids().Len(), b.Asks().Len())
	}
	if _, ok := b.Bids().Lookup(d("100.0")); ok {
		t.Error("pre-reset bid should be gone")
	}
	if !b.Ready() {
		t.Error("book must stay ready through a reset")
	}
}

func TestZeroSizeIsExact(t *testing.T) {
	b := loadedBook()

	// "0.00000000" must be treated as the removal sentinel, exactly.
	b.ApplyChanges([]Change{{Side: Bid, Price: d("99.5"), Size: d("0.00000000")}})
	if _, ok := b.Bids().Lookup(d("99.5")); ok {
		t.Error("textual zero with trailing decimals must erase the level")
	}

	// A tiny nonzero size must not.
	b.ApplyChanges([]Change{{Side: Bid, Price: d("100.0"), Size: d("0.00000001")}})
	if size, ok := b.Bids().Lookup(d("100.0")); !ok || !size.Equal(d("0.00000001")) {
		t.Errorf("tiny size should rest in the book, got %v, %v", size, ok)
	}
}

func TestConcurrentReadersDuringChurn(t *testing.T) {
	b := loadedBook()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := b.NewReader()
			defer r.Close()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r.Enter()
				b.Bids().Ascend(func(l Level) bool {
					if l.Size.Sign() <= 0 {
						t.Errorf("reader observed invalid size %v at %v", l.Size, l.Price)
						return false
					}
					return true
				})
				if size, ok := b.Bids().Lookup(d("100.0")); ok && size.Sign() <= 0 {
					t.Errorf("lookup observed invalid size %v", size)
				}
				_, _ = b.Bids().Best()
				r.Exit()
			}
		}()
	}

	// Single writer: interleave inserts and erases over a small band of
	// prices so readers constantly race against unlink and relink.
	for i := 0; i < 10000; i++ {
		price := decimal.NewFromInt(int64(10000 + i%64))
		if i%3 == 2 {
			b.Bids().Erase(price)
		} else {
			b.Bids().Update(price, decimal.NewFromInt(int64(i%7+1)))
		}
		if i%256 == 0 {
			b.Reclaim()
		}
	}

	close(stop)
	wg.Wait()
	b.Reclaim()
}
