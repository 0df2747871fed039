// Package implemented tracks what the user has actually executed: realized
// positions and cash buckets, entered by hand through the API. It exists so
// the dashboard can show drift between targets and reality.
package implemented

import (
	"database/sql"
	"fmt"
	"time"
)

// Position is one user-entered realized position.
type Position struct {
	Coin          string  `json:"coin"`
	Ticker        string  `json:"ticker"`
	HedgeSymbol   string  `json:"hedge_symbol"`
	LongNotional  float64 `json:"long_notional"`
	ShortNotional float64 `json:"short_notional"`
	UpdatedAt     string  `json:"updated_at"`
}

// Cash is the user-entered cash bucket state.
type Cash struct {
	PerpCollateral   float64 `json:"perp_collateral"`
	Treasury         float64 `json:"treasury"`
	EmergencyReserve float64 `json:"emergency_reserve"`
	UpdatedAt        string  `json:"updated_at"`
}

// State is the full implemented snapshot.
type State struct {
	Positions []Position `json:"positions"`
	Cash      Cash       `json:"cash"`
}

// Repository handles implemented positions and cash persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new implemented repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetState returns positions and cash together.
func (r *Repository) GetState() (State, error) {
	positions, err := r.getPositions()
	if err != nil {
		return State{}, err
	}
	cash, err := r.getCash()
	if err != nil {
		return State{}, err
	}
	return State{Positions: positions, Cash: cash}, nil
}

func (r *Repository) getPositions() ([]Position, error) {
	rows, err := r.db.Query(`
		SELECT coin, ticker, hedge_symbol, long_notional, short_notional, COALESCE(updated_at, '')
		FROM implemented_positions ORDER BY coin`)
	if err != nil {
		return nil, fmt.Errorf("failed to query implemented positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Coin, &p.Ticker, &p.HedgeSymbol, &p.LongNotional, &p.ShortNotional, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan implemented position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *Repository) getCash() (Cash, error) {
	var c Cash
	err := r.db.QueryRow(`
		SELECT perp_collateral, treasury, emergency_reserve, COALESCE(updated_at, '')
		FROM implemented_cash WHERE id = 1`).Scan(
		&c.PerpCollateral, &c.Treasury, &c.EmergencyReserve, &c.UpdatedAt)
	if err != nil {
		return Cash{}, fmt.Errorf("failed to get implemented cash: %w", err)
	}
	return c, nil
}

// ReplacePositions swaps the implemented position set. The user submits the
// whole set at once, so partial updates don't exist.
func (r *Repository) ReplacePositions(positions []Position) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin implemented update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM implemented_positions"); err != nil {
		return fmt.Errorf("failed to clear implemented positions: %w", err)
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	for _, p := range positions {
		_, err := tx.Exec(`
			INSERT INTO implemented_positions (coin, ticker, hedge_symbol, long_notional, short_notional, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.Coin, p.Ticker, p.HedgeSymbol, p.LongNotional, p.ShortNotional, ts)
		if err != nil {
			return fmt.Errorf("failed to insert implemented position %s: %w", p.Coin, err)
		}
	}

	return tx.Commit()
}

// SetCash updates the cash bucket row.
func (r *Repository) SetCash(c Cash) error {
	_, err := r.db.Exec(`
		UPDATE implemented_cash SET perp_collateral = ?, treasury = ?, emergency_reserve = ?, updated_at = ?
		WHERE id = 1`,
		c.PerpCollateral, c.Treasury, c.EmergencyReserve, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set implemented cash: %w", err)
	}
	return nil
}
