package rebalancing

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository persists the singleton rebalance decision row.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new rebalancing repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save updates the decision row inside the caller's cycle transaction.
func (r *Repository) Save(tx *sql.Tx, d Decision) error {
	_, err := tx.Exec(`
		UPDATE rebalance_decision SET
			recommendation = ?, expected_gain_usd = ?, estimated_cost_usd = ?,
			threshold_usd = ?, rationale = ?, updated_at = ?
		WHERE id = 1`,
		d.Recommendation, d.ExpectedGainUSD, d.EstimatedCostUSD,
		d.ThresholdUSD, d.Rationale, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save rebalance decision: %w", err)
	}
	return nil
}

// Get reads the current decision. Changes are not persisted; only the
// summary row survives across cycles.
func (r *Repository) Get() (Decision, error) {
	var d Decision
	var recommendation, rationale sql.NullString
	err := r.db.QueryRow(`
		SELECT recommendation, expected_gain_usd, estimated_cost_usd, threshold_usd, rationale
		FROM rebalance_decision WHERE id = 1`).Scan(
		&recommendation, &d.ExpectedGainUSD, &d.EstimatedCostUSD, &d.ThresholdUSD, &rationale)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get rebalance decision: %w", err)
	}
	d.Recommendation = recommendation.String
	d.Rationale = rationale.String
	return d, nil
}
