package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBudgetBucketsIdentity(t *testing.T) {
	for _, budget := range []float64{0, 100, 5000, 25_000, 55_000, 80_000, 640_000, 2_000_000} {
		b := ComputeBudgetBuckets(budget)
		assert.InDelta(t, budget, b.Emergency+b.OpsReserve+b.Deployable, 1e-6,
			"identity broken for budget %.0f", budget)
		assert.GreaterOrEqual(t, b.Emergency, 0.0)
		assert.GreaterOrEqual(t, b.OpsReserve, 0.0)
		assert.GreaterOrEqual(t, b.Deployable, 0.0)
	}
}

func TestComputeBudgetBucketsReference(t *testing.T) {
	b := ComputeBudgetBuckets(640_000)
	assert.InDelta(t, 51_200, b.Emergency, 1e-6) // 8% beats the 50k floor
	assert.InDelta(t, 5_000, b.OpsReserve, 1e-6)
	assert.InDelta(t, 583_800, b.Deployable, 1e-6)
	assert.InDelta(t, 583_800/1.35, b.HMax, 1e-6)
}

func TestComputeBudgetBucketsFloorBinds(t *testing.T) {
	// 8% of 80k is 6.4k, so the 50k floor wins.
	b := ComputeBudgetBuckets(80_000)
	assert.InDelta(t, 50_000, b.Emergency, 1e-6)
	assert.InDelta(t, 5_000, b.OpsReserve, 1e-6)
	assert.InDelta(t, 25_000, b.Deployable, 1e-6)
}

func TestComputeBudgetBucketsSmallBudgets(t *testing.T) {
	// Everything below the floor goes to emergency first, ops next.
	b := ComputeBudgetBuckets(30_000)
	assert.InDelta(t, 30_000, b.Emergency, 1e-6)
	assert.Zero(t, b.OpsReserve)
	assert.Zero(t, b.Deployable)
	assert.Zero(t, b.HMax)

	b = ComputeBudgetBuckets(52_000)
	assert.InDelta(t, 50_000, b.Emergency, 1e-6)
	assert.InDelta(t, 2_000, b.OpsReserve, 1e-6)
	assert.Zero(t, b.Deployable)
}

func TestComputeBudgetBucketsNegative(t *testing.T) {
	b := ComputeBudgetBuckets(-1000)
	assert.Zero(t, b.Budget)
	assert.Zero(t, b.Emergency)
	assert.Zero(t, b.OpsReserve)
	assert.Zero(t, b.Deployable)
}

func TestNormalizeCoin(t *testing.T) {
	assert.Equal(t, "xyz:SNDK", NormalizeCoin("xyz:sndk"))
	assert.Equal(t, "xyz:TSLA", NormalizeCoin(" xyz:TSLA "))
	assert.Equal(t, "xyz:NVDA", NormalizeCoin("XYZ:nvda"))
	assert.Equal(t, "BTC", NormalizeCoin("btc"))
}

func TestDisplayTicker(t *testing.T) {
	assert.Equal(t, "TSLA", DisplayTicker("xyz:TSLA"))
	assert.Equal(t, "BTC", DisplayTicker("BTC"))
}
