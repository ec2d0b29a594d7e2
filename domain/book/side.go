package book

import "github.com/shopspring/decimal"

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Level is one resting price level. Size is always positive; a zero size
// on the wire means removal and is never stored.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Change is one entry of an incremental update.
type Change struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}
