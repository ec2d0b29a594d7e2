// Package broadcaster periodically publishes the top of the book (best
// bid, best ask, spread) to a Kafka topic so downstream consumers that
// cannot hold the in-process maps still see price movement.
package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/theone-pang/gdaxbook/domain/book"
	"github.com/theone-pang/gdaxbook/infra/memory"
)

// BookView is the read surface the broadcaster needs from the facade.
type BookView interface {
	Bids() *book.SideMap
	Asks() *book.SideMap
	NewReader() *memory.Reader
}

// Publisher sends one encoded quote. Satisfied by infra/kafka.Producer.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}

// Quote is the published top-of-book event.
type Quote struct {
	Product  string          `json:"product"`
	BidPrice decimal.Decimal `json:"bid_price"`
	BidSize  decimal.Decimal `json:"bid_size"`
	AskPrice decimal.Decimal `json:"ask_price"`
	AskSize  decimal.Decimal `json:"ask_size"`
	Spread   decimal.Decimal `json:"spread"`
	Time     time.Time       `json:"time"`
}

type Broadcaster struct {
	view     BookView
	product  string
	pub      Publisher
	interval time.Duration
	log      zerolog.Logger

	last     Quote
	haveLast bool
}

func New(view BookView, product string, pub Publisher, interval time.Duration, log zerolog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		view:     view,
		product:  product,
		pub:      pub,
		interval: interval,
		log:      log.With().Str("job", "broadcaster").Logger(),
	}
}

// Run ticks until ctx is cancelled, publishing only when the top of the
// book moved since the last publish.
func (b *Broadcaster) Run(ctx context.Context) {
	reader := b.view.NewReader()
	defer reader.Close()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.log.Info().Dur("interval", b.interval).Msg("started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishOnce(ctx, reader)
		}
	}
}

func (b *Broadcaster) publishOnce(ctx context.Context, reader *memory.Reader) {
	reader.Enter()
	bid, haveBid := b.view.Bids().Best()
	ask, haveAsk := b.view.Asks().Best()
	reader.Exit()
	if !haveBid || !haveAsk {
		return
	}

	q := Quote{
		Product:  b.product,
		BidPrice: bid.Price,
		BidSize:  bid.Size,
		AskPrice: ask.Price,
		AskSize:  ask.Size,
		Spread:   ask.Price.Sub(bid.Price),
		Time:     time.Now().UTC(),
	}
	if b.haveLast && sameTop(q, b.last) {
		return
	}

	payload, err := json.Marshal(q)
	if err != nil {
		b.log.Error().Err(err).Msg("quote encode failed")
		return
	}
	if err := b.pub.Send(ctx, []byte(b.product), payload); err != nil {
		// Next tick retries with fresher data.
		b.log.Warn().Err(err).Msg("quote publish failed")
		return
	}
	b.last = q
	b.haveLast = true
}

func sameTop(a, b Quote) bool {
	return a.BidPrice.Equal(b.BidPrice) &&
		a.BidSize.Equal(b.BidSize) &&
		a.AskPrice.Equal(b.AskPrice) &&
		a.AskSize.Equal(b.AskSize)
}
