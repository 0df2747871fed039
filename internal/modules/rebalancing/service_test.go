package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/modules/allocation"
)

func pos(coin string, alloc, netAPR float64) allocation.Position {
	return allocation.Position{
		Coin:          coin,
		Ticker:        config.DisplayTicker(coin),
		AllocNotional: alloc,
		NetAPR:        netAPR,
	}
}

func TestEvaluateRebalanceFirstAllocation(t *testing.T) {
	// Nothing held yet: any positive-yield target is pure gain.
	newPositions := []allocation.Position{pos("xyz:TSLA", 200_000, 25)}
	d := EvaluateRebalance(nil, newPositions, 640_000)

	assert.Equal(t, Switch, d.Recommendation)
	assert.Greater(t, d.ExpectedGainUSD, d.ThresholdUSD)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, ActionAdd, d.Changes[0].Action)
	assert.Contains(t, d.Rationale, "Rebalance is recommended")
}

func TestEvaluateRebalanceIdenticalHolds(t *testing.T) {
	positions := []allocation.Position{pos("xyz:TSLA", 200_000, 25)}
	d := EvaluateRebalance(positions, positions, 640_000)

	assert.Equal(t, Hold, d.Recommendation)
	assert.Zero(t, d.EstimatedCostUSD)
	assert.Zero(t, d.ExpectedGainUSD)
	assert.Empty(t, d.Changes)
}

func TestEvaluateRebalanceMarginalGainHolds(t *testing.T) {
	// Same names, slightly better yield: the 1.5x cost threshold blocks a
	// churny switch.
	oldPositions := []allocation.Position{pos("xyz:TSLA", 200_000, 25)}
	newPositions := []allocation.Position{pos("xyz:NVDA", 200_000, 25.1)}
	d := EvaluateRebalance(oldPositions, newPositions, 640_000)

	// Gain: 0.1 APR points on 200k/640k weight over 7 days ~ $3.8.
	// Cost: full 400k turnover ~ $560. HOLD.
	assert.Equal(t, Hold, d.Recommendation)
	assert.Less(t, d.ExpectedGainUSD, d.ThresholdUSD)
	assert.Contains(t, d.Rationale, "Hold current portfolio")
	require.Len(t, d.Changes, 2)
}

func TestEvaluateRebalanceLargeGainSwitches(t *testing.T) {
	oldPositions := []allocation.Position{pos("xyz:TSLA", 200_000, 5)}
	newPositions := []allocation.Position{pos("xyz:NVDA", 200_000, 60)}
	d := EvaluateRebalance(oldPositions, newPositions, 640_000)

	assert.Equal(t, Switch, d.Recommendation)
	assert.Greater(t, d.ExpectedGainUSD, config.RebalanceMinGainUSD)
	assert.GreaterOrEqual(t, d.ExpectedGainUSD, d.ThresholdUSD)
}

func TestEvaluateRebalanceNoiseFloor(t *testing.T) {
	// A sub-$100 drift is neither a change nor a cost.
	oldPositions := []allocation.Position{pos("xyz:TSLA", 200_000, 25)}
	newPositions := []allocation.Position{pos("xyz:TSLA", 200_050, 25)}
	d := EvaluateRebalance(oldPositions, newPositions, 640_000)

	assert.Zero(t, d.EstimatedCostUSD)
	assert.Empty(t, d.Changes)
	assert.Equal(t, Hold, d.Recommendation)
}

func TestEvaluateRebalanceChangeActions(t *testing.T) {
	oldPositions := []allocation.Position{
		pos("xyz:TSLA", 100_000, 25), // removed
		pos("xyz:NVDA", 100_000, 25), // increased
		pos("xyz:AAPL", 100_000, 25), // decreased
	}
	newPositions := []allocation.Position{
		pos("xyz:NVDA", 150_000, 25),
		pos("xyz:AAPL", 50_000, 25),
		pos("xyz:MSTR", 100_000, 25), // added
	}
	d := EvaluateRebalance(oldPositions, newPositions, 640_000)

	actions := map[string]string{}
	for _, c := range d.Changes {
		actions[c.Ticker] = c.Action
	}
	assert.Equal(t, ActionRemove, actions["TSLA"])
	assert.Equal(t, ActionIncrease, actions["NVDA"])
	assert.Equal(t, ActionDecrease, actions["AAPL"])
	assert.Equal(t, ActionAdd, actions["MSTR"])
}

func TestSwitchingCostArithmetic(t *testing.T) {
	oldPositions := []allocation.Position{pos("xyz:TSLA", 100_000, 25)}
	d := EvaluateRebalance(oldPositions, nil, 640_000)

	// One 100k delta: 2 * fee + 5bp friction.
	want := 2*config.TakerFeePct*100_000 + 5.0/10000*100_000
	assert.InDelta(t, want, d.EstimatedCostUSD, 0.01)
	assert.InDelta(t, want*config.RebalanceCostMultiplier, d.ThresholdUSD, 0.01)
}
