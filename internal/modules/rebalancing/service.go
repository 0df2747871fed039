// Package rebalancing decides whether replacing the previously persisted
// target portfolio with the freshly computed one is worth its switching
// cost.
package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/modules/allocation"
)

// Recommendation values.
const (
	Hold   = "HOLD"
	Switch = "SWITCH"
)

// Change action values.
const (
	ActionAdd      = "ADD"
	ActionRemove   = "REMOVE"
	ActionIncrease = "INCREASE"
	ActionDecrease = "DECREASE"
)

// Change is one per-coin notional delta between the two portfolios.
type Change struct {
	Ticker   string  `json:"ticker"`
	OldAlloc float64 `json:"old_alloc"`
	NewAlloc float64 `json:"new_alloc"`
	Delta    float64 `json:"delta"`
	Action   string  `json:"action"`
}

// Decision is the outcome of the switching-cost analysis.
type Decision struct {
	Recommendation   string   `json:"recommendation"`
	ExpectedGainUSD  float64  `json:"expected_gain_usd"`
	EstimatedCostUSD float64  `json:"estimated_cost_usd"`
	ThresholdUSD     float64  `json:"threshold_usd"`
	Rationale        string   `json:"rationale"`
	Changes          []Change `json:"changes"`
}

// EvaluateRebalance compares the old and new target positions and
// recommends SWITCH only when the expected horizon gain clears both the
// absolute floor and the cost multiplier.
func EvaluateRebalance(oldPositions, newPositions []allocation.Position, budget float64) Decision {
	cost := switchingCost(oldPositions, newPositions)
	gain := expectedGain(oldPositions, newPositions, budget)
	threshold := cost * config.RebalanceCostMultiplier

	changes := buildChanges(oldPositions, newPositions)

	var recommendation, rationale string
	if gain > config.RebalanceMinGainUSD && gain >= threshold {
		recommendation = Switch
		rationale = fmt.Sprintf(
			"Expected %dd gain ($%.0f) exceeds %.1fx switching cost ($%.0f). Rebalance is recommended.",
			config.RebalanceHorizonDays, gain, config.RebalanceCostMultiplier, cost)
	} else {
		recommendation = Hold
		rationale = fmt.Sprintf(
			"Expected %dd gain ($%.0f) does not exceed %.1fx switching cost ($%.0f). Hold current portfolio.",
			config.RebalanceHorizonDays, gain, config.RebalanceCostMultiplier, cost)
	}

	return Decision{
		Recommendation:   recommendation,
		ExpectedGainUSD:  round2(gain),
		EstimatedCostUSD: round2(cost),
		ThresholdUSD:     round2(threshold),
		Rationale:        rationale,
		Changes:          changes,
	}
}

// switchingCost sums taker fees on both legs plus a friction buffer over
// every per-coin delta above the noise floor.
func switchingCost(oldPositions, newPositions []allocation.Position) float64 {
	oldAllocs := allocsByCoin(oldPositions)
	newAllocs := allocsByCoin(newPositions)

	var total float64
	for _, coin := range unionCoins(oldAllocs, newAllocs) {
		delta := math.Abs(newAllocs[coin] - oldAllocs[coin])
		if delta < config.RebalanceNoiseFloorUSD {
			continue
		}
		feeCost := 2 * config.TakerFeePct * delta
		friction := float64(config.RebalanceFrictionBps) / 10000 * delta
		total += feeCost + friction
	}
	return total
}

// expectedGain converts the net-APR improvement into USD over the rebalance
// horizon.
func expectedGain(oldPositions, newPositions []allocation.Position, budget float64) float64 {
	improvement := portfolioYield(newPositions, budget) - portfolioYield(oldPositions, budget)
	return (improvement / 100) * budget * config.RebalanceHorizonDays / 365
}

// portfolioYield is the budget-weighted net APR of a position set, in
// percentage points.
func portfolioYield(positions []allocation.Position, budget float64) float64 {
	if budget == 0 {
		return 0
	}
	var totalAlloc, weighted float64
	for _, p := range positions {
		totalAlloc += p.AllocNotional
		netAPR := p.NetAPR
		if netAPR == 0 {
			netAPR = p.Score
		}
		weighted += netAPR / 100 * p.AllocNotional / budget
	}
	if totalAlloc == 0 {
		return 0
	}
	return weighted * 100
}

func buildChanges(oldPositions, newPositions []allocation.Position) []Change {
	oldAllocs := allocsByCoin(oldPositions)
	newAllocs := allocsByCoin(newPositions)
	tickers := make(map[string]string)
	for _, p := range oldPositions {
		tickers[p.Coin] = p.Ticker
	}
	for _, p := range newPositions {
		tickers[p.Coin] = p.Ticker
	}

	var changes []Change
	for _, coin := range unionCoins(oldAllocs, newAllocs) {
		oldAlloc := oldAllocs[coin]
		newAlloc := newAllocs[coin]
		delta := newAlloc - oldAlloc
		if math.Abs(delta) < config.RebalanceNoiseFloorUSD {
			continue
		}

		action := ActionDecrease
		switch {
		case oldAlloc == 0:
			action = ActionAdd
		case newAlloc == 0:
			action = ActionRemove
		case delta > 0:
			action = ActionIncrease
		}

		changes = append(changes, Change{
			Ticker:   tickers[coin],
			OldAlloc: oldAlloc,
			NewAlloc: newAlloc,
			Delta:    delta,
			Action:   action,
		})
	}
	return changes
}

func allocsByCoin(positions []allocation.Position) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for _, p := range positions {
		out[p.Coin] = p.AllocNotional
	}
	return out
}

// unionCoins returns the sorted union of both key sets so change lists and
// cost sums are order-stable.
func unionCoins(a, b map[string]float64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var coins []string
	for coin := range a {
		if !seen[coin] {
			seen[coin] = true
			coins = append(coins, coin)
		}
	}
	for coin := range b {
		if !seen[coin] {
			seen[coin] = true
			coins = append(coins, coin)
		}
	}
	sort.Strings(coins)
	return coins
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
