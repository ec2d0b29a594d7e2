// Package feed turns raw level2 feed payloads into book operations. It is
// pure: no I/O, no state, fully unit-testable.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/theone-pang/gdaxbook/domain/book"
)

type Kind uint8

const (
	// KindUnrecognized covers every message type the book does not
	// consume (subscription acks, heartbeats). Skipped, not an error.
	KindUnrecognized Kind = iota
	KindSnapshot
	KindUpdate
)

// Message is one decoded feed event. Bids/Asks are set for snapshots,
// Changes for updates, both preserving wire order.
type Message struct {
	Kind    Kind
	Bids    []book.Level
	Asks    []book.Level
	Changes []book.Change
}

// envelope matches the feed's wire shapes:
//
//	{"type":"snapshot","bids":[[price,size],...],"asks":[[price,size],...]}
//	{"type":"l2update","changes":[["buy"|"sell",price,size],...]}
//
// Prices and sizes are text-encoded decimals and are parsed at full
// precision: size comparison against zero must be exact.
type envelope struct {
	Type    string      `json:"type"`
	Bids    [][2]string `json:"bids"`
	Asks    [][2]string `json:"asks"`
	Changes [][3]string `json:"changes"`
}

// Decode parses one raw payload. A non-nil error means the message was
// malformed and should be skipped and counted; it is never fatal to the
// processing loop.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("feed: malformed payload: %w", err)
	}

	switch env.Type {
	case "snapshot":
		if env.Bids == nil || env.Asks == nil {
			return Message{}, fmt.Errorf("feed: snapshot missing bids or asks")
		}
		bids, err := parseLevels(env.Bids)
		if err != nil {
			return Message{}, fmt.Errorf("feed: snapshot bids: %w", err)
		}
		asks, err := parseLevels(env.Asks)
		if err != nil {
			return Message{}, fmt.Errorf("feed: snapshot asks: %w", err)
		}
		return Message{Kind: KindSnapshot, Bids: bids, Asks: asks}, nil

	case "l2update":
		if env.Changes == nil {
			return Message{}, fmt.Errorf("feed: l2update missing changes")
		}
		changes, err := parseChanges(env.Changes)
		if err != nil {
			return Message{}, fmt.Errorf("feed: l2update changes: %w", err)
		}
		return Message{Kind: KindUpdate, Changes: changes}, nil

	default:
		return Message{Kind: KindUnrecognized}, nil
	}
}

func parseLevels(pairs [][2]string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(pairs))
	for _, p := range pairs {
		price, err := decimal.NewFromString(p[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", p[0], err)
		}
		size, err := decimal.NewFromString(p[1])
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", p[1], err)
		}
		levels = append(levels, book.Level{Price: price, Size: size})
	}
	return levels, nil
}

func parseChanges(triples [][3]string) ([]book.Change, error) {
	changes := make([]book.Change, 0, len(triples))
	for _, t := range triples {
		var side book.Side
		switch t[0] {
		case "buy":
			side = book.Bid
		case "sell":
			side = book.Ask
		default:
			return nil, fmt.Errorf("unknown side %q", t[0])
		}
		price, err := decimal.NewFromString(t[1])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", t[1], err)
		}
		size, err := decimal.NewFromString(t[2])
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", t[2], err)
		}
		changes = append(changes, book.Change{Side: side, Price: price, Size: size})
	}
	return changes, nil
}
