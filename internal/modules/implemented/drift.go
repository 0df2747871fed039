package implemented

import (
	"math"
	"sort"

	"github.com/dkallos/arbiter/internal/modules/allocation"
)

// driftNoiseUSD hides sub-noise differences between entered and target
// notionals; it matches the allocator's dust floor.
const driftNoiseUSD = 100

// Drift is the per-coin gap between the target and what the user entered.
type Drift struct {
	Coin          string  `json:"coin"`
	Ticker        string  `json:"ticker"`
	TargetLong    float64 `json:"target_long"`
	TargetShort   float64 `json:"target_short"`
	ActualLong    float64 `json:"actual_long"`
	ActualShort   float64 `json:"actual_short"`
	LongDeltaUSD  float64 `json:"long_delta_usd"`
	ShortDeltaUSD float64 `json:"short_delta_usd"`
}

// ComputeDrift compares implemented positions against target positions.
// The target long and short legs both equal the alloc notional. Coins with
// both deltas under the noise floor are omitted.
func ComputeDrift(state State, targets []allocation.Position) []Drift {
	actual := make(map[string]Position, len(state.Positions))
	for _, p := range state.Positions {
		actual[p.Coin] = p
	}

	seen := make(map[string]bool)
	var drifts []Drift
	for _, t := range targets {
		seen[t.Coin] = true
		a := actual[t.Coin]
		d := Drift{
			Coin:          t.Coin,
			Ticker:        t.Ticker,
			TargetLong:    t.AllocNotional,
			TargetShort:   t.AllocNotional,
			ActualLong:    a.LongNotional,
			ActualShort:   a.ShortNotional,
			LongDeltaUSD:  t.AllocNotional - a.LongNotional,
			ShortDeltaUSD: t.AllocNotional - a.ShortNotional,
		}
		if math.Abs(d.LongDeltaUSD) < driftNoiseUSD && math.Abs(d.ShortDeltaUSD) < driftNoiseUSD {
			continue
		}
		drifts = append(drifts, d)
	}

	// Positions held but no longer targeted should unwind.
	for _, p := range state.Positions {
		if seen[p.Coin] {
			continue
		}
		if math.Abs(p.LongNotional) < driftNoiseUSD && math.Abs(p.ShortNotional) < driftNoiseUSD {
			continue
		}
		drifts = append(drifts, Drift{
			Coin:          p.Coin,
			Ticker:        p.Ticker,
			ActualLong:    p.LongNotional,
			ActualShort:   p.ShortNotional,
			LongDeltaUSD:  -p.LongNotional,
			ShortDeltaUSD: -p.ShortNotional,
		})
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Coin < drifts[j].Coin })
	return drifts
}
