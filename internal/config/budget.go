package config

import "strings"

// BudgetBuckets splits the user budget into reserve, collateral headroom and
// deployable capital. The identity emergency + ops_reserve + deployable = budget
// holds for every non-negative budget; negative budgets behave as zero.
type BudgetBuckets struct {
	Budget     float64 `json:"budget"`
	Emergency  float64 `json:"emergency"`
	OpsReserve float64 `json:"ops_reserve"`
	Deployable float64 `json:"deployable"`
	HMax       float64 `json:"h_max"`
	MinTicket  float64 `json:"min_ticket"`
}

// ComputeBudgetBuckets computes budget-derived portfolio buckets with safe
// lower bounds.
//
// emergency  = clamp(max(EmergencyFloor, EmergencyPct*B), 0, B)
// ops        = min(OpsReserve, B - emergency)
// deployable = B - emergency - ops
// h_max      = deployable / (1 + CollateralFraction)
func ComputeBudgetBuckets(budget float64) BudgetBuckets {
	b := budget
	if b < 0 {
		b = 0
	}

	emergencyTarget := EmergencyPct * b
	if emergencyTarget < EmergencyFloor {
		emergencyTarget = EmergencyFloor
	}
	emergency := emergencyTarget
	if emergency > b {
		emergency = b
	}

	remaining := b - emergency
	if remaining < 0 {
		remaining = 0
	}
	opsReserve := float64(OpsReserve)
	if opsReserve > remaining {
		opsReserve = remaining
	}
	deployable := remaining - opsReserve

	hMax := 0.0
	if CollateralFraction > 0 {
		hMax = deployable / (1 + CollateralFraction)
	}

	return BudgetBuckets{
		Budget:     b,
		Emergency:  emergency,
		OpsReserve: opsReserve,
		Deployable: deployable,
		HMax:       hMax,
		MinTicket:  AllocationDustUSD, // waterfall: no hard floor, only dust
	}
}

// NormalizeCoin normalizes a coin identifier: trims whitespace and uppercases
// the symbol part. "xyz:sndk" -> "xyz:SNDK", " xyz:TSLA " -> "xyz:TSLA".
func NormalizeCoin(coin string) string {
	coin = strings.TrimSpace(coin)
	if prefix, symbol, ok := strings.Cut(coin, ":"); ok {
		return strings.ToLower(strings.TrimSpace(prefix)) + ":" + strings.ToUpper(strings.TrimSpace(symbol))
	}
	return strings.ToUpper(coin)
}

// DisplayTicker strips the DEX prefix from a coin name for display.
// "xyz:TSLA" -> "TSLA".
func DisplayTicker(coin string) string {
	if idx := strings.LastIndex(coin, ":"); idx >= 0 {
		return coin[idx+1:]
	}
	return coin
}
