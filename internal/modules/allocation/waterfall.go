// Package allocation sizes the target portfolio with a greedy water-fill
// over scored candidates and persists the resulting targets.
package allocation

import (
	"math"

	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/modules/scanner"
)

// BuildPortfolio water-fills the deployable hedge budget across candidates,
// which must arrive pre-sorted by score descending.
//
// Per candidate: cap_final = min(cap_oi, cap_vol, cap_impact, cap_conc),
// alloc = min(cap_final, remaining). Allocations under the dust floor are
// skipped, not terminal; a later candidate with headroom can still fill.
// Stops at MaxNames positions or once remaining budget drops to dust.
func BuildPortfolio(candidates []scanner.Candidate, budget float64) Portfolio {
	buckets := config.ComputeBudgetBuckets(budget)

	if buckets.HMax <= 0 {
		return emptyPortfolio(buckets)
	}

	capConc := config.MaxConcentration * buckets.HMax
	remaining := buckets.HMax
	var positions []Position

	for _, cand := range candidates {
		if len(positions) >= config.MaxNames {
			break
		}
		if remaining <= buckets.MinTicket {
			break
		}

		capFinal := math.Min(math.Min(cand.CapOI, cand.CapVol), math.Min(cand.CapImpact, capConc))
		alloc := math.Min(capFinal, remaining)
		if alloc < buckets.MinTicket {
			continue
		}

		positions = append(positions, Position{
			Coin:            cand.Coin,
			Ticker:          cand.Ticker,
			HedgeSymbol:     cand.HedgeSymbol,
			Rank:            len(positions) + 1,
			AllocNotional:   round2(alloc),
			CapOI:           round2(cand.CapOI),
			CapVol:          round2(cand.CapVol),
			CapImpact:       round2(cand.CapImpact),
			CapConc:         round2(capConc),
			CapFinal:        round2(capFinal),
			BindingCap:      bindingCap(cand, capConc, remaining),
			ForecastAPR:     cand.ForecastAPR,
			NetAPR:          cand.Score, // score already nets fee and slippage drag
			SlippageDragAPR: cand.SlippageDragAPR,
			FeeDragAPR:      cand.FeeDragAPR,
			Score:           cand.Score,
			EMA3D:           cand.EMA3D,
			EMA7D:           cand.EMA7D,
			WeekendMult:     cand.WeekendMult,
		})
		remaining -= alloc
	}

	var hTotal float64
	for _, p := range positions {
		hTotal += p.AllocNotional
	}
	for i := range positions {
		if hTotal > 0 {
			positions[i].AllocPct = round2(positions[i].AllocNotional / hTotal * 100)
		}
	}

	collateral := config.CollateralFraction * hTotal
	treasury := buckets.Deployable - hTotal - collateral
	treasuryTotal := buckets.Emergency + buckets.OpsReserve + treasury

	netAPR := 0.0
	if buckets.Budget > 0 && hTotal > 0 {
		var fundingIncome float64
		for _, p := range positions {
			fundingIncome += (p.NetAPR / 100) * (p.AllocNotional / buckets.Budget)
		}
		fundingIncome *= 100
		treasuryIncome := (config.DefaultTreasuryAPR / 100) * (treasuryTotal / buckets.Budget) * 100
		netAPR = fundingIncome + treasuryIncome - config.DefaultInsuranceBudgetPct
	}
	usdDay := (netAPR / 100) * buckets.Budget / 365

	return Portfolio{
		Positions:          positions,
		Budget:             round2(buckets.Budget),
		Emergency:          round2(buckets.Emergency),
		Deployable:         round2(buckets.Deployable),
		HMax:               round2(buckets.HMax),
		TotalHedgeNotional: round2(hTotal),
		PerpCollateral:     round2(collateral),
		Treasury:           round2(treasury),
		TreasuryTotal:      round2(treasuryTotal),
		PortfolioNetAPR:    round2(netAPR),
		PortfolioUSDDay:    round2(usdDay),
		NumPositions:       len(positions),
	}
}

// bindingCap names the smallest constraint for a position. On ties the
// fixed order oi, vol, impact, conc, budget decides.
func bindingCap(cand scanner.Candidate, capConc, remaining float64) string {
	names := []string{"oi", "vol", "impact", "conc", "budget"}
	caps := []float64{cand.CapOI, cand.CapVol, cand.CapImpact, capConc, remaining}

	binding := 0
	for i := 1; i < len(caps); i++ {
		if caps[i] < caps[binding] {
			binding = i
		}
	}
	return names[binding]
}

// emptyPortfolio is the degenerate target when no hedge budget exists:
// everything deployable sits in the treasury.
func emptyPortfolio(buckets config.BudgetBuckets) Portfolio {
	return Portfolio{
		Positions:     []Position{},
		Budget:        round2(buckets.Budget),
		Emergency:     round2(buckets.Emergency),
		Deployable:    round2(buckets.Deployable),
		HMax:          round2(buckets.HMax),
		Treasury:      round2(buckets.Deployable),
		TreasuryTotal: round2(buckets.Budget),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
