package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkallos/arbiter/internal/modules/alerts"
	"github.com/dkallos/arbiter/internal/modules/allocation"
	"github.com/dkallos/arbiter/internal/modules/market"
)

// deepScanTimeout is generous: the job walks funding history for the whole
// cohort and the venue client rate-limits those calls.
const deepScanTimeout = 5 * time.Minute

// DeepScanJob is the 10-minute cycle: re-run the candidate build from the
// cached snapshots so funding epochs and the EMA cache stay warm even when
// the 60-second cycle is cheap.
type DeepScanJob struct {
	log         zerolog.Logger
	scanner     CandidateBuilder
	markets     *market.Repository
	allocations *allocation.Repository
	alerts      *alerts.Service

	mu sync.Mutex
}

// NewDeepScanJob creates the deep scan job.
func NewDeepScanJob(log zerolog.Logger, builder CandidateBuilder, markets *market.Repository, allocations *allocation.Repository, alertsSvc *alerts.Service) *DeepScanJob {
	return &DeepScanJob{
		log:         log.With().Str("job", "deep_scan").Logger(),
		scanner:     builder,
		markets:     markets,
		allocations: allocations,
		alerts:      alertsSvc,
	}
}

// Name returns the job name
func (j *DeepScanJob) Name() string {
	return "deep_scan"
}

// Run rebuilds candidates from cached snapshots.
func (j *DeepScanJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Deep scan already running, skipping cycle")
		return nil
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deepScanTimeout)
	defer cancel()

	if err := j.scan(ctx); err != nil {
		j.log.Error().Err(err).Msg("Scanner job failed")
		j.alerts.SendCritical(ctx, "SYSTEM", "Scanner job failed — check logs")
		return err
	}
	return nil
}

func (j *DeepScanJob) scan(ctx context.Context) error {
	snapshots, err := j.markets.GetAll()
	if err != nil {
		return fmt.Errorf("snapshot read failed: %w", err)
	}
	if len(snapshots) == 0 {
		j.log.Warn().Msg("No market snapshots cached yet, skipping deep scan")
		return nil
	}

	budget, err := j.allocations.GetBudget()
	if err != nil {
		return fmt.Errorf("budget read failed: %w", err)
	}

	result := j.scanner.BuildCandidates(ctx, snapshots, budget, time.Now().UTC())
	j.log.Info().
		Int("candidates", len(result.Candidates)).
		Bool("trading_hours", result.IsTradingHours).
		Msg("Deep scan completed")
	return nil
}
