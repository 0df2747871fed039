// Package market defines the normalized market-data model shared by the
// scanner pipeline, plus the snapshot repository.
package market

import "time"

// Snapshot is one perp market's state for the current refresh cycle.
// Replaced wholesale each cycle; never mutated in place.
type Snapshot struct {
	Coin          string  `json:"coin"`   // full venue id, e.g. "xyz:TSLA"
	Ticker        string  `json:"ticker"` // display name, e.g. "TSLA"
	MarkPx        float64 `json:"mark_px"`
	MidPx         float64 `json:"mid_px"`
	FundingHourly float64 `json:"funding_hourly"`
	FundingAPR    float64 `json:"funding_apr"` // decimal, e.g. 0.20 = 20%
	OIBase        float64 `json:"oi"`
	OIUSD         float64 `json:"oi_usd"`
	Volume24h     float64 `json:"volume_24h"`
	MaxLeverage   int     `json:"max_leverage"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Px float64 `json:"px"`
	Sz float64 `json:"sz"`
}

// OrderBook is an L2 snapshot: bids sorted descending by price, asks
// ascending. Transient, fetched per scan per candidate.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// BidDepth returns the total notional resting on the bid side.
func (b OrderBook) BidDepth() float64 {
	var depth float64
	for _, l := range b.Bids {
		depth += l.Px * l.Sz
	}
	return depth
}

// FundingSample is one raw hourly funding observation. Append-only series,
// source of truth for epoch aggregation.
type FundingSample struct {
	Coin string
	Time time.Time
	Rate float64 // hourly rate as a decimal
}
