// Package impact estimates execution slippage from L2 order-book depth and
// inverts that estimate to size orders under a slippage ceiling.
package impact

import (
	"math"

	"github.com/dkallos/arbiter/internal/modules/market"
)

// Side selects which side of the book an order consumes.
type Side int

const (
	// Sell walks the bid side (opening a perp short or unwinding a long).
	Sell Side = iota
	// Buy walks the ask side (covering a short).
	Buy
)

// Binary search bounds for MaxNotionalForImpact.
const (
	searchIterations    = 50
	searchPrecisionUSD  = 100 // stop once the bracket is narrower than $100
	searchMinNotionalUSD = 1
)

// Compute returns execution slippage for a notional order as a fraction of
// mid price (0.002 = 0.2%).
//
// Fail-closed contract: returns 1.0 if either side of the book is empty, the
// mid price is non-positive, or available depth cannot fully fill the order.
// For a fillable order on a valid book the result is always in [0, 1].
func Compute(book market.OrderBook, notional float64, side Side) float64 {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 1.0
	}

	mid := (book.Bids[0].Px + book.Asks[0].Px) / 2
	if mid <= 0 {
		return 1.0
	}

	levels := book.Bids
	if side == Buy {
		levels = book.Asks
	}

	remaining := notional
	totalCost := 0.0
	totalFilled := 0.0

	for _, level := range levels {
		levelNotional := level.Px * level.Sz
		if remaining <= levelNotional {
			// Partial fill at this level
			if level.Px > 0 {
				totalFilled += remaining / level.Px
			}
			totalCost += remaining
			remaining = 0
			break
		}
		totalCost += levelNotional
		totalFilled += level.Sz
		remaining -= levelNotional
	}

	if totalFilled <= 0 || remaining > 0 {
		return 1.0 // couldn't fill
	}

	vwap := totalCost / totalFilled
	return math.Abs(vwap-mid) / mid
}

// MaxNotionalForImpact binary-searches for the largest notional whose
// slippage stays at or below maxImpact, walking the bid side. Returns 0 for
// an empty or depth-less book.
//
// Assumes slippage is non-decreasing in notional for the book shape walked.
// A thin near level in front of a deep far level can break that, in which
// case the result is an underestimate (safe direction), not an overestimate.
func MaxNotionalForImpact(book market.OrderBook, maxImpact float64) float64 {
	if len(book.Bids) == 0 {
		return 0
	}

	totalDepth := book.BidDepth()
	if totalDepth <= 0 {
		return 0
	}

	lo, hi := 0.0, totalDepth
	best := 0.0

	for i := 0; i < searchIterations; i++ {
		mid := (lo + hi) / 2
		if mid < searchMinNotionalUSD {
			break
		}
		if Compute(book, mid, Sell) <= maxImpact {
			best = mid
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < searchPrecisionUSD {
			break
		}
	}

	return math.Round(best*100) / 100
}
