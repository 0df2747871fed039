package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Targets is the persisted portfolio_targets singleton row, including the
// run bookkeeping the worker stamps on every cycle.
type Targets struct {
	NumPositions       int     `json:"num_positions"`
	TotalHedgeNotional float64 `json:"total_hedge_notional"`
	PerpCollateral     float64 `json:"perp_collateral"`
	Treasury           float64 `json:"treasury"`
	TreasuryTotal      float64 `json:"treasury_total"`
	Emergency          float64 `json:"emergency"`
	PortfolioNetAPR    float64 `json:"portfolio_net_apr"`
	PortfolioUSDDay    float64 `json:"portfolio_usd_day"`
	HealthStatus       string  `json:"health_status"`
	RunStatus          *string `json:"run_status"` // nil until the first cycle completes
	RunID              *string `json:"run_id"`
	DeepScanCohort     int     `json:"deep_scan_cohort"`
	PrefilteredCount   int     `json:"prefiltered_count"`
	IsTradingHours     bool    `json:"is_trading_hours"`
	UpdatedAt          *string `json:"updated_at"`
}

// RunMeta carries per-cycle bookkeeping into the targets row.
type RunMeta struct {
	Status           string
	RunID            string
	DeepScanCohort   int
	PrefilteredCount int
	IsTradingHours   bool
}

// Repository handles target portfolio and budget persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new allocation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "allocation").Logger(),
	}
}

// GetBudget reads the user budget from the settings row.
func (r *Repository) GetBudget() (float64, error) {
	var budget float64
	err := r.db.QueryRow("SELECT budget FROM user_inputs WHERE id = 1").Scan(&budget)
	if err != nil {
		return 0, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

// SetBudget updates the user budget.
func (r *Repository) SetBudget(budget float64) error {
	_, err := r.db.Exec(
		"UPDATE user_inputs SET budget = ?, updated_at = ? WHERE id = 1",
		budget, now())
	if err != nil {
		return fmt.Errorf("failed to set budget: %w", err)
	}
	return nil
}

// ReplacePositions swaps the full target position set inside the caller's
// cycle transaction.
func (r *Repository) ReplacePositions(tx *sql.Tx, positions []Position) error {
	if _, err := tx.Exec("DELETE FROM portfolio_positions"); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO portfolio_positions (
			coin, ticker, hedge_symbol, rank, alloc_notional, alloc_pct,
			cap_oi, cap_vol, cap_impact, cap_conc, cap_final, binding_cap,
			forecast_apr, net_apr, slippage_drag_apr, fee_drag_apr, score,
			ema_3d, ema_7d, weekend_mult, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, p := range positions {
		_, err := stmt.Exec(
			p.Coin, p.Ticker, p.HedgeSymbol, p.Rank, p.AllocNotional, p.AllocPct,
			p.CapOI, p.CapVol, p.CapImpact, p.CapConc, p.CapFinal, p.BindingCap,
			p.ForecastAPR, p.NetAPR, p.SlippageDragAPR, p.FeeDragAPR, p.Score,
			p.EMA3D, p.EMA7D, p.WeekendMult, ts)
		if err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.Coin, err)
		}
	}
	return nil
}

// SaveTargets updates the singleton targets row inside the caller's cycle
// transaction.
func (r *Repository) SaveTargets(tx *sql.Tx, p Portfolio, meta RunMeta) error {
	trading := 0
	if meta.IsTradingHours {
		trading = 1
	}
	health := "ACTION"
	if p.NumPositions > 0 {
		health = "OPTIMIZED"
	}

	_, err := tx.Exec(`
		UPDATE portfolio_targets SET
			num_positions = ?, total_hedge_notional = ?, perp_collateral = ?,
			treasury = ?, treasury_total = ?, emergency = ?,
			portfolio_net_apr = ?, portfolio_usd_day = ?, health_status = ?,
			run_status = ?, run_id = ?, deep_scan_cohort = ?,
			prefiltered_count = ?, is_trading_hours = ?, updated_at = ?
		WHERE id = 1`,
		p.NumPositions, p.TotalHedgeNotional, p.PerpCollateral,
		p.Treasury, p.TreasuryTotal, p.Emergency,
		p.PortfolioNetAPR, p.PortfolioUSDDay, health,
		meta.Status, meta.RunID, meta.DeepScanCohort,
		meta.PrefilteredCount, trading, now())
	if err != nil {
		return fmt.Errorf("failed to save targets: %w", err)
	}
	return nil
}

// GetTargets reads the singleton targets row.
func (r *Repository) GetTargets() (Targets, error) {
	var t Targets
	var trading int
	err := r.db.QueryRow(`
		SELECT num_positions, total_hedge_notional, perp_collateral,
			treasury, treasury_total, emergency,
			portfolio_net_apr, portfolio_usd_day, health_status,
			run_status, run_id, deep_scan_cohort, prefiltered_count,
			is_trading_hours, updated_at
		FROM portfolio_targets WHERE id = 1`).Scan(
		&t.NumPositions, &t.TotalHedgeNotional, &t.PerpCollateral,
		&t.Treasury, &t.TreasuryTotal, &t.Emergency,
		&t.PortfolioNetAPR, &t.PortfolioUSDDay, &t.HealthStatus,
		&t.RunStatus, &t.RunID, &t.DeepScanCohort, &t.PrefilteredCount,
		&trading, &t.UpdatedAt)
	if err != nil {
		return Targets{}, fmt.Errorf("failed to get targets: %w", err)
	}
	t.IsTradingHours = trading != 0
	return t, nil
}

// GetPositions returns the current target positions ordered by rank.
func (r *Repository) GetPositions() ([]Position, error) {
	rows, err := r.db.Query(`
		SELECT coin, ticker, hedge_symbol, rank, alloc_notional, alloc_pct,
			cap_oi, cap_vol, cap_impact, cap_conc, cap_final, binding_cap,
			forecast_apr, net_apr, slippage_drag_apr, fee_drag_apr, score,
			ema_3d, ema_7d, weekend_mult
		FROM portfolio_positions ORDER BY rank ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(
			&p.Coin, &p.Ticker, &p.HedgeSymbol, &p.Rank, &p.AllocNotional, &p.AllocPct,
			&p.CapOI, &p.CapVol, &p.CapImpact, &p.CapConc, &p.CapFinal, &p.BindingCap,
			&p.ForecastAPR, &p.NetAPR, &p.SlippageDragAPR, &p.FeeDragAPR, &p.Score,
			&p.EMA3D, &p.EMA7D, &p.WeekendMult); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
