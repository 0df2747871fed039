package alerts

import (
	"database/sql"
	"fmt"
	"time"
)

// Alert is one row of alert_history.
type Alert struct {
	ID           int64  `json:"id"`
	Ticker       string `json:"ticker"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	SentAt       string `json:"sent_at"`
	Acknowledged bool   `json:"acknowledged"`
}

// Cover is one insurance cover tracked for expiry alerts.
type Cover struct {
	ID         int64   `json:"id"`
	Provider   string  `json:"provider"`
	CoverType  string  `json:"cover_type"`
	Amount     float64 `json:"amount"`
	ExpiryDate string  `json:"expiry_date"` // YYYY-MM-DD
	CreatedAt  string  `json:"created_at"`
}

// Repository handles alert history, the opportunity log and insurance
// covers.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new alerts repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertAlert appends one alert to the history.
func (r *Repository) InsertAlert(ticker, severity, message string) error {
	_, err := r.db.Exec(`
		INSERT INTO alert_history (ticker, severity, message, sent_at)
		VALUES (?, ?, ?, ?)`,
		ticker, severity, message, now())
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetLastAlert returns the most recent alert for a ticker and severity, or
// nil when none exists.
func (r *Repository) GetLastAlert(ticker, severity string) (*Alert, error) {
	var a Alert
	var ack int
	err := r.db.QueryRow(`
		SELECT id, ticker, severity, message, sent_at, acknowledged
		FROM alert_history
		WHERE ticker = ? AND severity = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT 1`, ticker, severity).Scan(
		&a.ID, &a.Ticker, &a.Severity, &a.Message, &a.SentAt, &ack)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last alert: %w", err)
	}
	a.Acknowledged = ack != 0
	return &a, nil
}

// ListAlerts returns recent alerts, newest first.
func (r *Repository) ListAlerts(limit int) ([]Alert, error) {
	rows, err := r.db.Query(`
		SELECT id, ticker, severity, message, sent_at, acknowledged
		FROM alert_history
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var ack int
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Severity, &a.Message, &a.SentAt, &ack); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Acknowledged = ack != 0
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Acknowledge marks an alert acknowledged, which silences CRITICAL resends.
func (r *Repository) Acknowledge(id int64) error {
	res, err := r.db.Exec("UPDATE alert_history SET acknowledged = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("alert %d not found", id)
	}
	return nil
}

// InsertOpportunity logs a triggered switch opportunity.
func (r *Repository) InsertOpportunity(ticker string, emaAPR, advantageAPR float64) error {
	_, err := r.db.Exec(`
		INSERT INTO opportunity_log (ticker, ema_apr, advantage_apr, triggered_at)
		VALUES (?, ?, ?, ?)`,
		ticker, emaAPR, advantageAPR, now())
	if err != nil {
		return fmt.Errorf("failed to insert opportunity: %w", err)
	}
	return nil
}

// ListCovers returns all insurance covers ordered by expiry.
func (r *Repository) ListCovers() ([]Cover, error) {
	rows, err := r.db.Query(`
		SELECT id, provider, cover_type, amount, expiry_date, COALESCE(created_at, '')
		FROM insurance_covers
		ORDER BY expiry_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query covers: %w", err)
	}
	defer rows.Close()

	var covers []Cover
	for rows.Next() {
		var c Cover
		if err := rows.Scan(&c.ID, &c.Provider, &c.CoverType, &c.Amount, &c.ExpiryDate, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cover: %w", err)
		}
		covers = append(covers, c)
	}
	return covers, rows.Err()
}

// AddCover inserts a new insurance cover and returns its id.
func (r *Repository) AddCover(c Cover) (int64, error) {
	provider := c.Provider
	if provider == "" {
		provider = "Nexus Mutual"
	}
	res, err := r.db.Exec(`
		INSERT INTO insurance_covers (provider, cover_type, amount, expiry_date, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		provider, c.CoverType, c.Amount, c.ExpiryDate, now())
	if err != nil {
		return 0, fmt.Errorf("failed to add cover: %w", err)
	}
	return res.LastInsertId()
}

// DeleteCover removes a cover.
func (r *Repository) DeleteCover(id int64) error {
	_, err := r.db.Exec("DELETE FROM insurance_covers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete cover %d: %w", id, err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
