package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkallos/arbiter/internal/database"
	"github.com/dkallos/arbiter/internal/modules/alerts"
	"github.com/dkallos/arbiter/internal/modules/allocation"
	"github.com/dkallos/arbiter/internal/modules/market"
	"github.com/dkallos/arbiter/internal/modules/rebalancing"
	"github.com/dkallos/arbiter/internal/modules/scanner"
)

// Run status values stamped on the targets row each cycle.
const (
	RunStatusSuccess      = "success"
	RunStatusPartial      = "partial" // candidates found but none allocated
	RunStatusNoCandidates = "no_candidates"
)

// refreshTimeout bounds one full cycle so a stuck venue call cannot pile
// cycles on top of each other.
const refreshTimeout = 55 * time.Second

// VenueSource provides the perp universe for a refresh cycle.
type VenueSource interface {
	FetchUniverseAndContexts(ctx context.Context) ([]market.Snapshot, error)
}

// CandidateBuilder runs the two-phase scan over a set of snapshots.
type CandidateBuilder interface {
	BuildCandidates(ctx context.Context, markets []market.Snapshot, budget float64, now time.Time) scanner.ScanResult
}

// MarketRefreshJob is the 60-second cycle: fetch markets, scan, allocate,
// evaluate rebalance, persist, alert.
type MarketRefreshJob struct {
	log         zerolog.Logger
	db          *sql.DB
	venue       VenueSource
	scanner     CandidateBuilder
	markets     *market.Repository
	allocations *allocation.Repository
	rejections  *scanner.Repository
	rebalance   *rebalancing.Repository
	alerts      *alerts.Service

	mu sync.Mutex // one cycle at a time
}

// MarketRefreshConfig holds the job's dependencies.
type MarketRefreshConfig struct {
	Log         zerolog.Logger
	DB          *sql.DB
	Venue       VenueSource
	Scanner     CandidateBuilder
	Markets     *market.Repository
	Allocations *allocation.Repository
	Rejections  *scanner.Repository
	Rebalance   *rebalancing.Repository
	Alerts      *alerts.Service
}

// NewMarketRefreshJob creates the market refresh job.
func NewMarketRefreshJob(cfg MarketRefreshConfig) *MarketRefreshJob {
	return &MarketRefreshJob{
		log:         cfg.Log.With().Str("job", "market_refresh").Logger(),
		db:          cfg.DB,
		venue:       cfg.Venue,
		scanner:     cfg.Scanner,
		markets:     cfg.Markets,
		allocations: cfg.Allocations,
		rejections:  cfg.Rejections,
		rebalance:   cfg.Rebalance,
		alerts:      cfg.Alerts,
	}
}

// Name returns the job name
func (j *MarketRefreshJob) Name() string {
	return "market_refresh"
}

// Run executes one refresh cycle. Any failure leaves the previously
// persisted targets untouched and raises a critical alert.
func (j *MarketRefreshJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Market refresh already running, skipping cycle")
		return nil
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := j.refresh(ctx); err != nil {
		j.log.Error().Err(err).Msg("Market refresh job failed")
		j.alerts.SendCritical(ctx, "SYSTEM", "Market refresh job failed — check logs")
		return err
	}
	return nil
}

func (j *MarketRefreshJob) refresh(ctx context.Context) error {
	start := time.Now()
	j.log.Info().Msg("Market refresh: fetching perp markets")

	snapshots, err := j.venue.FetchUniverseAndContexts(ctx)
	if err != nil {
		return fmt.Errorf("universe fetch failed: %w", err)
	}
	j.log.Info().Int("markets", len(snapshots)).Msg("Fetched perp markets")

	for _, s := range snapshots {
		if err := j.markets.Upsert(s); err != nil {
			return fmt.Errorf("snapshot upsert failed: %w", err)
		}
	}

	budget, err := j.allocations.GetBudget()
	if err != nil {
		return fmt.Errorf("budget read failed: %w", err)
	}

	result := j.scanner.BuildCandidates(ctx, snapshots, budget, time.Now().UTC())
	j.log.Info().
		Int("candidates", len(result.Candidates)).
		Int("rejected", len(result.Rejected)).
		Msg("Scan complete")

	portfolio := allocation.BuildPortfolio(result.Candidates, budget)
	j.log.Info().
		Int("positions", portfolio.NumPositions).
		Float64("hedge_notional", portfolio.TotalHedgeNotional).
		Float64("net_apr", portfolio.PortfolioNetAPR).
		Float64("usd_day", portfolio.PortfolioUSDDay).
		Msg("Portfolio built")

	// Read the outgoing positions before the transaction overwrites them.
	oldPositions, err := j.allocations.GetPositions()
	if err != nil {
		return fmt.Errorf("previous positions read failed: %w", err)
	}

	decision := rebalancing.EvaluateRebalance(oldPositions, portfolio.Positions, budget)
	j.log.Info().
		Str("recommendation", decision.Recommendation).
		Float64("gain_usd", decision.ExpectedGainUSD).
		Float64("cost_usd", decision.EstimatedCostUSD).
		Float64("threshold_usd", decision.ThresholdUSD).
		Msg("Rebalance evaluated")

	meta := allocation.RunMeta{
		Status:           runStatus(portfolio, result),
		RunID:            uuid.NewString(),
		DeepScanCohort:   result.DeepScanCohort,
		PrefilteredCount: result.PrefilteredCount,
		IsTradingHours:   result.IsTradingHours,
	}

	err = database.WithTransaction(j.db, func(tx *sql.Tx) error {
		if err := j.allocations.ReplacePositions(tx, portfolio.Positions); err != nil {
			return err
		}
		if err := j.rejections.ReplaceRejections(tx, result.Rejected); err != nil {
			return err
		}
		if err := j.allocations.SaveTargets(tx, portfolio, meta); err != nil {
			return err
		}
		return j.rebalance.Save(tx, decision)
	})
	if err != nil {
		return fmt.Errorf("cycle persist failed: %w", err)
	}

	for i, pos := range portfolio.Positions {
		if i >= 3 {
			break
		}
		j.log.Info().
			Int("rank", pos.Rank).
			Str("ticker", pos.Ticker).
			Str("hedge", pos.HedgeSymbol).
			Float64("alloc", pos.AllocNotional).
			Float64("forecast_apr", pos.ForecastAPR).
			Float64("net_apr", pos.NetAPR).
			Str("binding_cap", pos.BindingCap).
			Msg("Position")
	}

	j.alerts.Evaluate(ctx, result, portfolio.Positions)

	j.log.Info().
		Str("run_id", meta.RunID).
		Str("run_status", meta.Status).
		Dur("duration", time.Since(start)).
		Msg("Market refresh completed")
	return nil
}

func runStatus(p allocation.Portfolio, result scanner.ScanResult) string {
	switch {
	case p.NumPositions > 0:
		return RunStatusSuccess
	case len(result.Candidates) > 0:
		return RunStatusPartial
	default:
		return RunStatusNoCandidates
	}
}
