// Package scanner turns raw market snapshots into scored, hedgeable
// candidates. Phase one is a pure in-memory pre-filter; phase two fans the
// surviving cohort out over a bounded worker pool that fetches books and
// funding history per market.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/modules/funding"
	"github.com/dkallos/arbiter/internal/modules/impact"
	"github.com/dkallos/arbiter/internal/modules/market"
)

// fundingHistoryLookback bounds the history request; the seasonality window
// needs 28 days, fetched with headroom.
const fundingHistoryLookback = 35 * 24 * time.Hour

// VenueClient is the slice of the exchange client the deep scan needs.
type VenueClient interface {
	FetchOrderBook(ctx context.Context, coin string) (market.OrderBook, error)
	FetchFundingHistory(ctx context.Context, coin string, startTime time.Time) ([]market.FundingSample, error)
}

// EquityDirectory validates hedge tickers against public listings.
type EquityDirectory interface {
	IsPublicEquity(ctx context.Context, ticker string) bool
}

// EpochStore persists epoch aggregates and the display EMA cache.
type EpochStore interface {
	UpsertEpochs(coin string, epochs []funding.Epoch) error
	UpsertEMA(coin string, ema3d, ema7d float64) error
}

// Service runs the two-phase scan.
type Service struct {
	venue     VenueClient
	equities  EquityDirectory
	epochs    EpochStore
	workers   int
	stockOnly bool
	log       zerolog.Logger
}

// NewService creates a new scanner service
func NewService(venue VenueClient, equities EquityDirectory, epochs EpochStore, workers int, stockOnly bool, log zerolog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		venue:     venue,
		equities:  equities,
		epochs:    epochs,
		workers:   workers,
		stockOnly: stockOnly,
		log:       log.With().Str("service", "scanner").Logger(),
	}
}

// ranked pairs a pre-filtered snapshot with its hedge symbol.
type ranked struct {
	snap  market.Snapshot
	hedge string
}

// outcome is one deep-scan result slot; exactly one field is set.
type outcome struct {
	candidate *Candidate
	rejection *Rejection
}

// BuildCandidates scans all markets into scored candidates and rejections.
// Per-market faults during the deep scan become rejections; only the caller
// decides what a cycle-level failure looks like.
func (s *Service) BuildCandidates(ctx context.Context, markets []market.Snapshot, budget float64, now time.Time) ScanResult {
	weekend := funding.IsWeekendET(now)

	buckets := config.ComputeBudgetBuckets(budget)
	estAlloc := buckets.HMax / config.MaxNames

	prefiltered, rejected := s.prefilter(markets)

	cohort := selectCohort(prefiltered)
	for i, r := range prefiltered[len(cohort):] {
		rejected = append(rejected, Rejection{
			Coin:       r.snap.Coin,
			Ticker:     r.snap.Ticker,
			Reason:     fmt.Sprintf("outside top funding cohort (scanned %d)", len(cohort)),
			InstantAPR: ptr(round2(r.snap.FundingAPR * 100)),
			PreRank:    ptr(len(cohort) + i + 1),
		})
	}

	s.log.Info().
		Int("prefiltered", len(prefiltered)).
		Int("rejected", len(rejected)).
		Int("cohort", len(cohort)).
		Msg("pre-filter complete")

	outcomes := s.deepScan(ctx, cohort, estAlloc, weekend)

	var candidates []Candidate
	ranks := make(map[string]int, len(cohort))
	for i, o := range outcomes {
		switch {
		case o.candidate != nil:
			ranks[o.candidate.Coin] = i
			candidates = append(candidates, *o.candidate)
		case o.rejection != nil:
			rejected = append(rejected, *o.rejection)
		}
	}

	// Score descending; cohort rank breaks ties so reruns over identical
	// inputs produce identical ordering.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return ranks[candidates[i].Coin] < ranks[candidates[j].Coin]
	})

	return ScanResult{
		Candidates:       candidates,
		Rejected:         rejected,
		IsTradingHours:   IsNYSETradingHours(now),
		DeepScanCohort:   len(cohort),
		PrefilteredCount: len(prefiltered),
	}
}

// prefilter applies the cheap hard gates in order: hedge mapping, stock-only,
// leverage, positive instantaneous funding. No network calls. The survivors
// come back sorted by (funding APR, volume, OI) descending.
func (s *Service) prefilter(markets []market.Snapshot) ([]ranked, []Rejection) {
	var passed []ranked
	var rejected []Rejection

	for _, m := range markets {
		coin := config.NormalizeCoin(m.Coin)
		instantAPR := ptr(round2(m.FundingAPR * 100))

		hedge, ok := config.HedgeMap[coin]
		if !ok {
			rejected = append(rejected, Rejection{
				Coin: coin, Ticker: m.Ticker,
				Reason:     "missing_hedge_mapping",
				InstantAPR: instantAPR,
			})
			continue
		}

		if s.stockOnly && config.NonStockCoins[coin] {
			rejected = append(rejected, Rejection{
				Coin: coin, Ticker: m.Ticker,
				Reason: "non_stock_market_excluded",
			})
			continue
		}

		if m.MaxLeverage < config.MinMaxLeverage {
			rejected = append(rejected, Rejection{
				Coin: coin, Ticker: m.Ticker,
				Reason:     fmt.Sprintf("maxLeverage %d < %d", m.MaxLeverage, config.MinMaxLeverage),
				InstantAPR: instantAPR,
			})
			continue
		}

		if m.FundingAPR <= 0 {
			rejected = append(rejected, Rejection{
				Coin: coin, Ticker: m.Ticker,
				Reason:     "negative/zero instantaneous funding",
				InstantAPR: instantAPR,
			})
			continue
		}

		m.Coin = coin
		passed = append(passed, ranked{snap: m, hedge: hedge})
	}

	sort.SliceStable(passed, func(i, j int) bool {
		a, b := passed[i].snap, passed[j].snap
		if a.FundingAPR != b.FundingAPR {
			return a.FundingAPR > b.FundingAPR
		}
		if a.Volume24h != b.Volume24h {
			return a.Volume24h > b.Volume24h
		}
		return a.OIUSD > b.OIUSD
	})

	return passed, rejected
}

// selectCohort takes the top MaxDeepScan entries, extending through ties at
// the cutoff funding rate up to the hard cap.
func selectCohort(prefiltered []ranked) []ranked {
	if len(prefiltered) <= config.MaxDeepScan {
		return prefiltered
	}

	cutoff := prefiltered[config.MaxDeepScan-1].snap.FundingAPR
	end := config.MaxDeepScan
	for end < len(prefiltered) && end < config.MaxDeepScanHard {
		if prefiltered[end].snap.FundingAPR < cutoff {
			break
		}
		end++
	}
	return prefiltered[:end]
}

// deepScan fans the cohort out over the worker pool. Results come back
// indexed by cohort rank, so pool scheduling cannot change the output.
func (s *Service) deepScan(ctx context.Context, cohort []ranked, estAlloc float64, weekend bool) []outcome {
	outcomes := make([]outcome, len(cohort))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.scanOne(ctx, cohort[i], i+1, estAlloc, weekend)
			}
		}()
	}

	for i := range cohort {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// scanOne runs the full deep-scan pipeline for a single cohort member.
// rank is the 1-based cohort position, recorded on rejections.
func (s *Service) scanOne(ctx context.Context, r ranked, rank int, estAlloc float64, weekend bool) outcome {
	m := r.snap
	instantAPR := ptr(round2(m.FundingAPR * 100))

	reject := func(reason string) outcome {
		return outcome{rejection: &Rejection{
			Coin: m.Coin, Ticker: m.Ticker,
			Reason:     reason,
			InstantAPR: instantAPR,
			PreRank:    ptr(rank),
		}}
	}

	if !s.equities.IsPublicEquity(ctx, r.hedge) {
		o := reject("not_in_public_directories")
		o.rejection.HedgeSymbol = r.hedge
		return o
	}

	capOI := config.OICapFraction * m.OIUSD
	capVol := config.VolumeCapFraction * m.Volume24h

	var capImpact float64
	degraded := false
	book, err := s.venue.FetchOrderBook(ctx, m.Coin)
	if err != nil {
		s.log.Warn().Err(err).Str("coin", m.Coin).Msg("book fetch failed, falling back to OI cap")
		degraded = true
		capImpact = capOI
	} else {
		capImpact = impact.MaxNotionalForImpact(book, config.MaxImpactPct)
	}

	history, err := s.venue.FetchFundingHistory(ctx, m.Coin, time.Now().Add(-fundingHistoryLookback))
	if err != nil {
		return reject(fmt.Sprintf("funding data error: %v", err))
	}
	if len(history) == 0 {
		return reject("no funding history")
	}

	epochs := funding.AggregateEpochs(history)
	if err := s.epochs.UpsertEpochs(m.Coin, epochs); err != nil {
		return reject(fmt.Sprintf("funding data error: %v", err))
	}

	ema3d, ema7d := funding.DualEMA(epochs)
	if ema3d == nil || ema7d == nil {
		return reject("insufficient_history")
	}

	seasonality := funding.Seasonality(epochs)
	forecast := funding.Forecast(*ema3d, *ema7d, seasonality, weekend)

	if err := s.epochs.UpsertEMA(m.Coin, *ema3d, *ema7d); err != nil {
		return reject(fmt.Sprintf("funding data error: %v", err))
	}

	preliminaryCap := math.Min(capOI, math.Min(capVol, capImpact))
	estPosition := math.Min(preliminaryCap, estAlloc)
	impactAtAlloc := 0.01 // default when no usable book exists
	if !degraded {
		impactAtAlloc = impact.Compute(book, estPosition, impact.Sell)
	}

	score, feeDrag, slipDrag := computeScore(forecast, impactAtAlloc)

	if forecast <= 0 {
		o := reject("negative funding forecast")
		o.rejection.ForecastAPR = ptr(round2(forecast))
		o.rejection.Score = ptr(round2(score))
		o.rejection.CapFinal = ptr(round2(preliminaryCap))
		return o
	}

	return outcome{candidate: &Candidate{
		Coin:            m.Coin,
		Ticker:          m.Ticker,
		HedgeSymbol:     r.hedge,
		EMA3D:           round2(*ema3d),
		EMA7D:           round2(*ema7d),
		WeekendMult:     round4(seasonality),
		ForecastAPR:     round2(forecast),
		Score:           round2(score),
		FeeDragAPR:      round2(feeDrag),
		SlippageDragAPR: round2(slipDrag),
		CapOI:           round2(capOI),
		CapVol:          round2(capVol),
		CapImpact:       round2(capImpact),
		OIUSD:           m.OIUSD,
		Volume24h:       m.Volume24h,
		MaxLeverage:     m.MaxLeverage,
		MarkPx:          m.MarkPx,
	}}
}

// computeScore nets round-trip fee and slippage drag out of the forecast.
// All three returns are APR percentages.
func computeScore(forecastAPR, impactAtAlloc float64) (score, feeDrag, slipDrag float64) {
	feeDrag = 2 * config.TakerFeePct * config.RebalancesPerYear * 100
	slipDrag = 2 * impactAtAlloc * config.RebalancesPerYear * 100
	score = forecastAPR - feeDrag - slipDrag
	return score, feeDrag, slipDrag
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
