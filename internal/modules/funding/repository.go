package funding

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository persists funding epochs and the display-only EMA cache.
// The forecast never reads the EMA cache back; it always recomputes from
// epochs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new funding repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertEpoch stores or replaces one 8h epoch for a coin.
func (r *Repository) UpsertEpoch(coin string, e Epoch) error {
	weekend := 0
	if e.Weekend {
		weekend = 1
	}
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO funding_epochs_8h (coin, epoch_ts, rate_8h, apr, is_weekend)
		VALUES (?, ?, ?, ?, ?)`,
		coin, e.Start.UTC().Format(time.RFC3339), e.Rate8h, e.APR, weekend)
	if err != nil {
		return fmt.Errorf("failed to upsert funding epoch for %s: %w", coin, err)
	}
	return nil
}

// UpsertEpochs stores a batch of epochs in one transaction.
func (r *Repository) UpsertEpochs(coin string, epochs []Epoch) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin epoch batch: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO funding_epochs_8h (coin, epoch_ts, rate_8h, apr, is_weekend)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare epoch insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range epochs {
		weekend := 0
		if e.Weekend {
			weekend = 1
		}
		if _, err := stmt.Exec(coin, e.Start.UTC().Format(time.RFC3339), e.Rate8h, e.APR, weekend); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert epoch for %s: %w", coin, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit epoch batch: %w", err)
	}
	return nil
}

// GetEpochs returns up to limit epochs for a coin, ascending by start.
func (r *Repository) GetEpochs(coin string, limit int) ([]Epoch, error) {
	rows, err := r.db.Query(`
		SELECT epoch_ts, rate_8h, apr, is_weekend
		FROM funding_epochs_8h
		WHERE coin = ?
		ORDER BY epoch_ts ASC
		LIMIT ?`, coin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs for %s: %w", coin, err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var ts string
		var e Epoch
		var weekend int
		if err := rows.Scan(&ts, &e.Rate8h, &e.APR, &weekend); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		start, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("bad epoch timestamp %q: %w", ts, err)
		}
		e.Start = start
		e.Weekend = weekend != 0
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// UpsertEMA caches the latest EMA pair for a coin. Display only.
func (r *Repository) UpsertEMA(coin string, ema3d, ema7d float64) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO ema_cache (coin, ema_3d, ema_7d, updated_at)
		VALUES (?, ?, ?, ?)`,
		coin, ema3d, ema7d, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert EMA cache for %s: %w", coin, err)
	}
	return nil
}

// GetEMA returns the cached EMA pair, or nil if absent.
func (r *Repository) GetEMA(coin string) (ema3d, ema7d *float64, err error) {
	row := r.db.QueryRow(`SELECT ema_3d, ema_7d FROM ema_cache WHERE coin = ?`, coin)
	var e3, e7 sql.NullFloat64
	if err := row.Scan(&e3, &e7); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get EMA cache for %s: %w", coin, err)
	}
	if e3.Valid {
		ema3d = &e3.Float64
	}
	if e7.Valid {
		ema7d = &e7.Float64
	}
	return ema3d, ema7d, nil
}
