package market

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository persists market snapshots.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new market snapshot repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert stores or replaces the snapshot for a ticker.
func (r *Repository) Upsert(s Snapshot) error {
	_, err := r.db.Exec(`
		INSERT INTO market_snapshots
			(ticker, coin, mark_px, mid_px, funding_hourly, funding_apr, oi, oi_usd, volume_24h, max_leverage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			coin = excluded.coin,
			mark_px = excluded.mark_px,
			mid_px = excluded.mid_px,
			funding_hourly = excluded.funding_hourly,
			funding_apr = excluded.funding_apr,
			oi = excluded.oi,
			oi_usd = excluded.oi_usd,
			volume_24h = excluded.volume_24h,
			max_leverage = excluded.max_leverage,
			updated_at = excluded.updated_at`,
		s.Ticker, s.Coin, s.MarkPx, s.MidPx, s.FundingHourly, s.FundingAPR,
		s.OIBase, s.OIUSD, s.Volume24h, s.MaxLeverage, now())
	if err != nil {
		return fmt.Errorf("failed to upsert market snapshot %s: %w", s.Ticker, err)
	}
	return nil
}

// GetAll returns all snapshots ordered by funding APR descending.
func (r *Repository) GetAll() ([]Snapshot, error) {
	rows, err := r.db.Query(`
		SELECT ticker, COALESCE(coin, ''), COALESCE(mark_px, 0), COALESCE(mid_px, 0),
		       COALESCE(funding_hourly, 0), COALESCE(funding_apr, 0), COALESCE(oi, 0),
		       COALESCE(oi_usd, 0), COALESCE(volume_24h, 0), COALESCE(max_leverage, 0)
		FROM market_snapshots
		ORDER BY funding_apr DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query market snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var maxLev float64
		if err := rows.Scan(&s.Ticker, &s.Coin, &s.MarkPx, &s.MidPx,
			&s.FundingHourly, &s.FundingAPR, &s.OIBase, &s.OIUSD,
			&s.Volume24h, &maxLev); err != nil {
			return nil, fmt.Errorf("failed to scan market snapshot: %w", err)
		}
		s.MaxLeverage = int(maxLev)
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Get returns the snapshot for one ticker, or nil if absent.
func (r *Repository) Get(ticker string) (*Snapshot, error) {
	row := r.db.QueryRow(`
		SELECT ticker, COALESCE(coin, ''), COALESCE(mark_px, 0), COALESCE(mid_px, 0),
		       COALESCE(funding_hourly, 0), COALESCE(funding_apr, 0), COALESCE(oi, 0),
		       COALESCE(oi_usd, 0), COALESCE(volume_24h, 0), COALESCE(max_leverage, 0)
		FROM market_snapshots WHERE ticker = ?`, ticker)

	var s Snapshot
	var maxLev float64
	err := row.Scan(&s.Ticker, &s.Coin, &s.MarkPx, &s.MidPx,
		&s.FundingHourly, &s.FundingAPR, &s.OIBase, &s.OIUSD, &s.Volume24h, &maxLev)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market snapshot %s: %w", ticker, err)
	}
	s.MaxLeverage = int(maxLev)
	return &s, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
