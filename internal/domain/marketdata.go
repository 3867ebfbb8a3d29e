package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument identifies a tradable market on an exchange.
type Instrument struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

// String renders the instrument as "symbol @ exchange".
func (i Instrument) String() string {
	return i.Symbol + " @ " + i.Exchange
}

// DepthLevel aggregates every offer at one price. On the wire it is the
// tuple [quantity, price].
type DepthLevel struct {
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// MarshalJSON encodes the level as a two element array.
func (l DepthLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]decimal.Decimal{l.Quantity, l.Price})
}

// UnmarshalJSON decodes a [quantity, price] tuple.
func (l *DepthLevel) UnmarshalJSON(data []byte) error {
	var pair []decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("depth level: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("depth level: want 2 elements, got %d", len(pair))
	}
	l.Quantity, l.Price = pair[0], pair[1]
	return nil
}

// String renders the level as "quantity@price".
func (l DepthLevel) String() string {
	return l.Quantity.String() + "@" + l.Price.String()
}

// Depth is the book aggregated by price. Bids are sorted by price
// descending and asks by price ascending, so index 0 is always the best offer.
type Depth struct {
	Instrument
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// BestBid returns the best bid, or nil for an empty side.
func (d Depth) BestBid() *DepthLevel {
	if len(d.Bids) == 0 {
		return nil
	}
	l := d.Bids[0]
	return &l
}

// BestAsk returns the best ask, or nil for an empty side.
func (d Depth) BestAsk() *DepthLevel {
	if len(d.Asks) == 0 {
		return nil
	}
	l := d.Asks[0]
	return &l
}

// Quote is a reference price from a source without an order book.
type Quote struct {
	Instrument
	Price decimal.Decimal `json:"price"`
}

// ServiceStatus reports the availability of an upstream feed.
type ServiceStatus struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// Subscriber receives normalized market data from an exchange adapter.
type Subscriber interface {
	OnDepth(depth Depth)
	OnQuote(quote Quote)
	OnStatus(status ServiceStatus)
}
