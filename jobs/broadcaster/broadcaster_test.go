package broadcaster

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/theone-pang/gdaxbook/domain/book"
)

type capturePublisher struct {
	mu     sync.Mutex
	quotes []Quote
}

func (p *capturePublisher) Send(ctx context.Context, key, value []byte) error {
	var q Quote
	if err := json.Unmarshal(value, &q); err != nil {
		return err
	}
	p.mu.Lock()
	p.quotes = append(p.quotes, q)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.quotes)
}

func (p *capturePublisher) last() Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quotes[len(p.quotes)-1]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBroadcastsTopOfBookOnChange(t *testing.T) {
	b := book.New()
	b.LoadSnapshot(
		[]book.Level{{Price: dec("100.0"), Size: dec("5")}},
		[]book.Level{{Price: dec("100.5"), Size: dec("2")}},
	)

	pub := &capturePublisher{}
	bc := New(b, "BTC-USD", pub, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		bc.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return pub.count() == 1 }, "first quote never published")

	q := pub.last()
	if q.Product != "BTC-USD" {
		t.Errorf("product = %q", q.Product)
	}
	if !q.BidPrice.Equal(dec("100.0")) || !q.AskPrice.Equal(dec("100.5")) {
		t.Errorf("top = %v / %v", q.BidPrice, q.AskPrice)
	}
	if !q.Spread.Equal(dec("0.5")) {
		t.Errorf("spread = %v, want 0.5", q.Spread)
	}

	// Unchanged book: several ticks must not produce another quote.
	time.Sleep(50 * time.Millisecond)
	if pub.count() != 1 {
		t.Errorf("unchanged top republished, %d quotes", pub.count())
	}

	// Move the best ask and expect exactly one more quote.
	b.ApplyChanges([]book.Change{{Side: book.Ask, Price: dec("100.25"), Size: dec("1")}})
	waitFor(t, func() bool { return pub.count() == 2 }, "moved top never published")
	if q := pub.last(); !q.AskPrice.Equal(dec("100.25")) {
		t.Errorf("new ask price = %v, want 100.25", q.AskPrice)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop on cancel")
	}
}

func TestNoQuoteForOneSidedBook(t *testing.T) {
	b := book.New()
	b.LoadSnapshot([]book.Level{{Price: dec("100.0"), Size: dec("5")}}, nil)

	pub := &capturePublisher{}
	bc := New(b, "BTC-USD", pub, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	bc.Run(ctx)

	if pub.count() != 0 {
		t.Errorf("one-sided book should publish nothing, got %d", pub.count())
	}
}
