package database

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// migrations is the ordered list of ALTER TABLE ADD COLUMN statements for
// columns added after a table first shipped. Applied idempotently on startup.
var migrations = []struct {
	table  string
	column string
	colDef string
}{
	{"portfolio_targets", "run_status", "TEXT"},
	{"portfolio_targets", "run_id", "TEXT"},
	{"portfolio_targets", "deep_scan_cohort", "INTEGER DEFAULT 0"},
	{"portfolio_targets", "prefiltered_count", "INTEGER DEFAULT 0"},
	{"portfolio_targets", "is_trading_hours", "INTEGER DEFAULT 0"},
	{"rejected_markets", "instant_apr", "REAL"},
	{"rejected_markets", "pre_rank", "INTEGER"},
}

// Migrate applies the embedded schema, then any pending column migrations.
// Safe to call on every startup.
func (db *DB) Migrate() error {
	if err := WithTransaction(db.conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(schema)
		return err
	}); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	columns := make(map[string]map[string]bool)
	for _, m := range migrations {
		if _, ok := columns[m.table]; !ok {
			cols, err := db.tableColumns(m.table)
			if err != nil {
				return fmt.Errorf("failed to inspect table %s: %w", m.table, err)
			}
			columns[m.table] = cols
		}
		if columns[m.table][m.column] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.colDef)
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration %q failed: %w", stmt, err)
		}
		columns[m.table][m.column] = true
	}

	return nil
}

// tableColumns returns the set of column names for a table.
func (db *DB) tableColumns(table string) (map[string]bool, error) {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
