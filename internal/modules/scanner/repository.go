package scanner

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository persists per-cycle rejection rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new scanner repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceRejections swaps the rejection set inside the caller's cycle
// transaction. One row per coin; a later rejection for the same coin wins.
func (r *Repository) ReplaceRejections(tx *sql.Tx, rejections []Rejection) error {
	if _, err := tx.Exec("DELETE FROM rejected_markets"); err != nil {
		return fmt.Errorf("failed to clear rejections: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO rejected_markets (
			coin, ticker, reason, instant_apr, forecast_apr, score, cap_final, pre_rank, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare rejection insert: %w", err)
	}
	defer stmt.Close()

	ts := time.Now().UTC().Format(time.RFC3339)
	for _, rej := range rejections {
		_, err := stmt.Exec(
			rej.Coin, rej.Ticker, rej.Reason,
			rej.InstantAPR, rej.ForecastAPR, rej.Score, rej.CapFinal, rej.PreRank, ts)
		if err != nil {
			return fmt.Errorf("failed to insert rejection %s: %w", rej.Coin, err)
		}
	}
	return nil
}

// GetRejections returns the current rejection set, worst scores last.
func (r *Repository) GetRejections() ([]Rejection, error) {
	rows, err := r.db.Query(`
		SELECT coin, ticker, reason, instant_apr, forecast_apr, score, cap_final, pre_rank
		FROM rejected_markets
		ORDER BY COALESCE(pre_rank, 9999), coin`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	var rejections []Rejection
	for rows.Next() {
		var rej Rejection
		if err := rows.Scan(
			&rej.Coin, &rej.Ticker, &rej.Reason,
			&rej.InstantAPR, &rej.ForecastAPR, &rej.Score, &rej.CapFinal, &rej.PreRank); err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}
		rejections = append(rejections, rej)
	}
	return rejections, rows.Err()
}
