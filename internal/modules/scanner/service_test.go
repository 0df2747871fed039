package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/modules/funding"
	"github.com/dkallos/arbiter/internal/modules/market"
)

type fakeVenue struct {
	books      map[string]market.OrderBook
	bookErr    map[string]error
	history    map[string][]market.FundingSample
	historyErr map[string]error
}

func (f *fakeVenue) FetchOrderBook(_ context.Context, coin string) (market.OrderBook, error) {
	if err := f.bookErr[coin]; err != nil {
		return market.OrderBook{}, err
	}
	return f.books[coin], nil
}

func (f *fakeVenue) FetchFundingHistory(_ context.Context, coin string, _ time.Time) ([]market.FundingSample, error) {
	if err := f.historyErr[coin]; err != nil {
		return nil, err
	}
	return f.history[coin], nil
}

type fakeEquities struct {
	missing map[string]bool
}

func (f *fakeEquities) IsPublicEquity(_ context.Context, ticker string) bool {
	return !f.missing[ticker]
}

type fakeEpochStore struct {
	mu     sync.Mutex
	epochs map[string][]funding.Epoch
	emas   map[string][2]float64
}

func (f *fakeEpochStore) UpsertEpochs(coin string, epochs []funding.Epoch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.epochs == nil {
		f.epochs = map[string][]funding.Epoch{}
	}
	f.epochs[coin] = epochs
	return nil
}

func (f *fakeEpochStore) UpsertEMA(coin string, ema3d, ema7d float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emas == nil {
		f.emas = map[string][2]float64{}
	}
	f.emas[coin] = [2]float64{ema3d, ema7d}
	return nil
}

// hourlyHistory builds n hours of constant funding ending before now.
func hourlyHistory(coin string, hours int, rate float64) []market.FundingSample {
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	out := make([]market.FundingSample, hours)
	for i := range out {
		out[i] = market.FundingSample{Coin: coin, Time: start.Add(time.Duration(i) * time.Hour), Rate: rate}
	}
	return out
}

func tightBook() market.OrderBook {
	var book market.OrderBook
	for i := 0; i < 40; i++ {
		step := 0.05 * float64(i)
		book.Bids = append(book.Bids, market.BookLevel{Px: 99.99 - step, Sz: 5000})
		book.Asks = append(book.Asks, market.BookLevel{Px: 100.01 + step, Sz: 5000})
	}
	return book
}

func snap(coin string, fundingAPR float64) market.Snapshot {
	return market.Snapshot{
		Coin:          coin,
		Ticker:        config.DisplayTicker(coin),
		MarkPx:        100,
		FundingHourly: fundingAPR / (24 * 365),
		FundingAPR:    fundingAPR,
		OIUSD:         50_000_000,
		Volume24h:     20_000_000,
		MaxLeverage:   20,
	}
}

func newTestService(venue *fakeVenue, equities *fakeEquities) *Service {
	return NewService(venue, equities, &fakeEpochStore{}, 4, true, zerolog.Nop())
}

// weekdayNoon is a Monday inside NYSE hours.
var weekdayNoon = time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC) // 12:00 ET

func findRejection(t *testing.T, res ScanResult, coin string) Rejection {
	t.Helper()
	for _, r := range res.Rejected {
		if r.Coin == coin {
			return r
		}
	}
	t.Fatalf("no rejection for %s", coin)
	return Rejection{}
}

func TestPrefilterGates(t *testing.T) {
	markets := []market.Snapshot{
		snap("xyz:UNKNOWN", 0.30),
		func() market.Snapshot { s := snap("xyz:TSLA", 0.30); s.MaxLeverage = 5; return s }(),
		snap("xyz:NVDA", -0.10),
		snap("xyz:GOLD", 0.30), // non-stock under stock-only mode
	}

	svc := newTestService(&fakeVenue{}, &fakeEquities{})
	res := svc.BuildCandidates(context.Background(), markets, 640_000, weekdayNoon)

	assert.Empty(t, res.Candidates)
	assert.Zero(t, res.PrefilteredCount)

	assert.Equal(t, "missing_hedge_mapping", findRejection(t, res, "xyz:UNKNOWN").Reason)
	assert.Equal(t, "maxLeverage 5 < 10", findRejection(t, res, "xyz:TSLA").Reason)
	assert.Equal(t, "negative/zero instantaneous funding", findRejection(t, res, "xyz:NVDA").Reason)
	assert.Equal(t, "non_stock_market_excluded", findRejection(t, res, "xyz:GOLD").Reason)

	nvda := findRejection(t, res, "xyz:NVDA")
	require.NotNil(t, nvda.InstantAPR)
	assert.InDelta(t, -10.0, *nvda.InstantAPR, 1e-9)
}

func TestCohortTieExtension(t *testing.T) {
	// 40 markets sharing one funding rate: the tie at the cutoff extends the
	// cohort past 30.
	var prefiltered []ranked
	for i := 0; i < 40; i++ {
		prefiltered = append(prefiltered, ranked{snap: snap(fmt.Sprintf("xyz:M%02d", i), 0.25)})
	}
	assert.Len(t, selectCohort(prefiltered), 40)

	// Distinct rates: plain top 30.
	for i := range prefiltered {
		prefiltered[i].snap.FundingAPR = 0.25 + float64(i)*0.001
	}
	assert.Len(t, selectCohort(prefiltered), config.MaxDeepScan)

	// A full tie stops at the hard cap.
	var tied []ranked
	for i := 0; i < 60; i++ {
		tied = append(tied, ranked{snap: snap(fmt.Sprintf("xyz:T%02d", i), 0.25)})
	}
	assert.Len(t, selectCohort(tied), config.MaxDeepScanHard)
}

func TestDeepScanHappyPath(t *testing.T) {
	history := hourlyHistory("xyz:TSLA", 24*10, 0.0000342) // ~30% APR
	venue := &fakeVenue{
		books:   map[string]market.OrderBook{"xyz:TSLA": tightBook()},
		history: map[string][]market.FundingSample{"xyz:TSLA": history},
	}

	svc := newTestService(venue, &fakeEquities{})
	res := svc.BuildCandidates(context.Background(), []market.Snapshot{snap("xyz:TSLA", 0.30)}, 640_000, weekdayNoon)

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, "xyz:TSLA", c.Coin)
	assert.Equal(t, "TSLA", c.HedgeSymbol)
	assert.Greater(t, c.ForecastAPR, 0.0)
	assert.Greater(t, c.EMA3D, 0.0)
	assert.Greater(t, c.EMA7D, 0.0)
	// Constant funding: both EMAs converge to the constant APR.
	assert.InDelta(t, c.EMA3D, c.EMA7D, 0.01)
	assert.InDelta(t, 0.0000342*24*365*100, c.ForecastAPR, 0.1)
	assert.Less(t, c.Score, c.ForecastAPR) // drags always subtract
	assert.InDelta(t, 2*config.TakerFeePct*config.RebalancesPerYear*100, c.FeeDragAPR, 0.01)
	assert.InDelta(t, 0.05*50_000_000, c.CapOI, 1e-6)
	assert.InDelta(t, 0.10*20_000_000, c.CapVol, 1e-6)
	assert.True(t, res.IsTradingHours)
	assert.Equal(t, 1, res.DeepScanCohort)
	assert.Equal(t, 1, res.PrefilteredCount)
}

func TestDeepScanFailuresIsolated(t *testing.T) {
	good := hourlyHistory("xyz:TSLA", 24*10, 0.0000342)
	venue := &fakeVenue{
		books: map[string]market.OrderBook{
			"xyz:TSLA": tightBook(),
			"xyz:NVDA": tightBook(),
		},
		history:    map[string][]market.FundingSample{"xyz:TSLA": good},
		historyErr: map[string]error{"xyz:NVDA": errors.New("venue timeout")},
	}

	svc := newTestService(venue, &fakeEquities{})
	markets := []market.Snapshot{snap("xyz:TSLA", 0.30), snap("xyz:NVDA", 0.25)}
	res := svc.BuildCandidates(context.Background(), markets, 640_000, weekdayNoon)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "xyz:TSLA", res.Candidates[0].Coin)

	nvda := findRejection(t, res, "xyz:NVDA")
	assert.Contains(t, nvda.Reason, "funding data error")
	assert.Contains(t, nvda.Reason, "venue timeout")
	require.NotNil(t, nvda.PreRank)
	assert.Equal(t, 2, *nvda.PreRank)
}

func TestDeepScanInsufficientHistory(t *testing.T) {
	// 5 epochs worth of hours: below even the short EMA window.
	venue := &fakeVenue{
		books:   map[string]market.OrderBook{"xyz:TSLA": tightBook()},
		history: map[string][]market.FundingSample{"xyz:TSLA": hourlyHistory("xyz:TSLA", 40, 0.0000342)},
	}

	svc := newTestService(venue, &fakeEquities{})
	res := svc.BuildCandidates(context.Background(), []market.Snapshot{snap("xyz:TSLA", 0.30)}, 640_000, weekdayNoon)

	assert.Empty(t, res.Candidates)
	assert.Equal(t, "insufficient_history", findRejection(t, res, "xyz:TSLA").Reason)
}

func TestDeepScanNoFundingHistory(t *testing.T) {
	venue := &fakeVenue{
		books:   map[string]market.OrderBook{"xyz:TSLA": tightBook()},
		history: map[string][]market.FundingSample{},
	}

	svc := newTestService(venue, &fakeEquities{})
	res := svc.BuildCandidates(context.Background(), []market.Snapshot{snap("xyz:TSLA", 0.30)}, 640_000, weekdayNoon)

	assert.Equal(t, "no funding history", findRejection(t, res, "xyz:TSLA").Reason)
}

func TestDeepScanEquityGate(t *testing.T) {
	svc := newTestService(&fakeVenue{}, &fakeEquities{missing: map[string]bool{"TSLA": true}})
	res := svc.BuildCandidates(context.Background(), []market.Snapshot{snap("xyz:TSLA", 0.30)}, 640_000, weekdayNoon)

	r := findRejection(t, res, "xyz:TSLA")
	assert.Equal(t, "not_in_public_directories", r.Reason)
	assert.Equal(t, "TSLA", r.HedgeSymbol)
}

func TestDeepScanBookFailureDegradesToOICap(t *testing.T) {
	venue := &fakeVenue{
		bookErr: map[string]error{"xyz:TSLA": errors.New("book unavailable")},
		history: map[string][]market.FundingSample{"xyz:TSLA": hourlyHistory("xyz:TSLA", 24*10, 0.0000342)},
	}

	svc := newTestService(venue, &fakeEquities{})
	res := svc.BuildCandidates(context.Background(), []market.Snapshot{snap("xyz:TSLA", 0.30)}, 640_000, weekdayNoon)

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	// Impact cap falls back to the OI cap; slippage drag uses the 1% default.
	assert.Equal(t, c.CapOI, c.CapImpact)
	assert.InDelta(t, 2*0.01*config.RebalancesPerYear*100, c.SlippageDragAPR, 0.01)
}

func TestDeepScanNegativeForecast(t *testing.T) {
	venue := &fakeVenue{
		books:   map[string]market.OrderBook{"xyz:TSLA": tightBook()},
		history: map[string][]market.FundingSample{"xyz:TSLA": hourlyHistory("xyz:TSLA", 24*10, -0.00002)},
	}

	svc := newTestService(venue, &fakeEquities{})
	// Instantaneous funding is positive, history is negative: passes the
	// pre-filter, fails the forecast gate.
	res := svc.BuildCandidates(context.Background(), []market.Snapshot{snap("xyz:TSLA", 0.30)}, 640_000, weekdayNoon)

	r := findRejection(t, res, "xyz:TSLA")
	assert.Equal(t, "negative funding forecast", r.Reason)
	require.NotNil(t, r.ForecastAPR)
	assert.Less(t, *r.ForecastAPR, 0.0)
	require.NotNil(t, r.Score)
	require.NotNil(t, r.CapFinal)
}

func TestScanDeterministicOrdering(t *testing.T) {
	venue := &fakeVenue{
		books:   map[string]market.OrderBook{},
		history: map[string][]market.FundingSample{},
	}
	var markets []market.Snapshot
	for _, coin := range []string{"xyz:TSLA", "xyz:NVDA", "xyz:AAPL", "xyz:MSTR", "xyz:COIN"} {
		venue.books[coin] = tightBook()
		venue.history[coin] = hourlyHistory(coin, 24*10, 0.0000342)
		markets = append(markets, snap(coin, 0.30))
	}

	svc := newTestService(venue, &fakeEquities{})
	first := svc.BuildCandidates(context.Background(), markets, 640_000, weekdayNoon)
	require.Len(t, first.Candidates, 5)

	for i := 0; i < 5; i++ {
		again := svc.BuildCandidates(context.Background(), markets, 640_000, weekdayNoon)
		require.Equal(t, len(first.Candidates), len(again.Candidates))
		for j := range first.Candidates {
			assert.Equal(t, first.Candidates[j].Coin, again.Candidates[j].Coin)
		}
	}
}

func TestIsNYSETradingHours(t *testing.T) {
	// 2026-03-02 is a Monday.
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday noon ET", time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC), true},
		{"monday 9:29 ET", time.Date(2026, 3, 2, 14, 29, 0, 0, time.UTC), false},
		{"monday 9:30 ET", time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), true},
		{"monday 16:00 ET", time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 3, 7, 17, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNYSETradingHours(tt.t))
		})
	}
}
