package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/database"
)

// Repository handles journal persistence. It is the only code that touches
// the trades table; times are stored as unix seconds so exit-timestamp
// matching during hydration is exact at one-second precision.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates the repository and ensures the schema exists.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	repo := &Repository{
		db:  db.Conn(),
		log: log.With().Str("repo", "journal").Logger(),
	}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		bucket TEXT NOT NULL DEFAULT '',
		setup_name TEXT NOT NULL DEFAULT '',
		side TEXT NOT NULL DEFAULT 'buy',
		qty REAL NOT NULL,
		entry_time INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		stop_price REAL NOT NULL DEFAULT 0,
		target_price REAL NOT NULL DEFAULT 0,
		risk_dollars REAL NOT NULL DEFAULT 0,
		exit_time INTEGER,
		exit_price REAL NOT NULL DEFAULT 0,
		pnl_dollars REAL NOT NULL DEFAULT 0,
		pnl_percent REAL NOT NULL DEFAULT 0,
		r_multiple REAL NOT NULL DEFAULT 0,
		holding_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'OPEN',
		notes TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
	`
	_, err := r.db.Exec(schema)
	return err
}

const entryColumns = `id, trade_id, symbol, bucket, setup_name, side, qty,
	entry_time, entry_price, stop_price, target_price, risk_dollars,
	exit_time, exit_price, pnl_dollars, pnl_percent, r_multiple,
	holding_minutes, status, notes, score`

func scanEntry(row interface{ Scan(...interface{}) error }) (*Entry, error) {
	var e Entry
	var entryUnix int64
	var exitUnix sql.NullInt64

	err := row.Scan(
		&e.ID, &e.TradeID, &e.Symbol, &e.Bucket, &e.SetupName, &e.Side, &e.Qty,
		&entryUnix, &e.EntryPrice, &e.StopPrice, &e.TargetPrice, &e.RiskDollars,
		&exitUnix, &e.ExitPrice, &e.PnLDollars, &e.PnLPercent, &e.RMultiple,
		&e.HoldingMin, &e.Status, &e.Notes, &e.Score,
	)
	if err != nil {
		return nil, err
	}

	e.EntryTime = time.Unix(entryUnix, 0).UTC()
	if exitUnix.Valid {
		t := time.Unix(exitUnix.Int64, 0).UTC()
		e.ExitTime = &t
	}
	return &e, nil
}

// Insert appends a new entry and sets its ID. TradeID uniqueness is enforced
// by the schema; a duplicate insert fails instead of silently doubling a trade.
func (r *Repository) Insert(e *Entry) error {
	var exitUnix sql.NullInt64
	if e.ExitTime != nil {
		exitUnix = sql.NullInt64{Int64: e.ExitTime.Unix(), Valid: true}
	}

	res, err := r.db.Exec(`
		INSERT INTO trades (trade_id, symbol, bucket, setup_name, side, qty,
			entry_time, entry_price, stop_price, target_price, risk_dollars,
			exit_time, exit_price, pnl_dollars, pnl_percent, r_multiple,
			holding_minutes, status, notes, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TradeID, e.Symbol, e.Bucket, e.SetupName, e.Side, e.Qty,
		e.EntryTime.Unix(), e.EntryPrice, e.StopPrice, e.TargetPrice, e.RiskDollars,
		exitUnix, e.ExitPrice, e.PnLDollars, e.PnLPercent, e.RMultiple,
		e.HoldingMin, e.Status, e.Notes, e.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry for %s: %w", e.Symbol, err)
	}

	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read journal entry id: %w", err)
	}

	r.log.Info().
		Str("trade_id", e.TradeID).
		Str("symbol", e.Symbol).
		Str("status", e.Status).
		Float64("qty", e.Qty).
		Msg("Journal entry recorded")
	return nil
}

// CloseOut flips an OPEN entry to CLOSED with the computed exit figures.
// The status guard in the WHERE clause makes the transition one-way; a second
// close attempt affects zero rows and is reported as such.
func (r *Repository) CloseOut(id int64, exitTime time.Time, exitPrice, pnl, pnlPct, rMultiple float64, holdingMin int64) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE trades
		SET exit_time = ?, exit_price = ?, pnl_dollars = ?, pnl_percent = ?,
			r_multiple = ?, holding_minutes = ?, status = ?
		WHERE id = ? AND status = ?`,
		exitTime.Unix(), exitPrice, pnl, pnlPct, rMultiple, holdingMin,
		StatusClosed, id, StatusOpen,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close journal entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// OpenEntries returns all OPEN rows, oldest first.
func (r *Repository) OpenEntries() ([]Entry, error) {
	return r.query(`SELECT `+entryColumns+` FROM trades WHERE status = ? ORDER BY entry_time ASC`, StatusOpen)
}

// ClosedEntries returns all CLOSED rows ordered by exit time, oldest first.
// This is the analytics input; the order matters for the drawdown curve.
func (r *Repository) ClosedEntries() ([]Entry, error) {
	return r.query(`SELECT `+entryColumns+` FROM trades WHERE status = ? ORDER BY exit_time ASC`, StatusClosed)
}

// History returns the most recent rows, any status, newest first.
func (r *Repository) History(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(`SELECT `+entryColumns+` FROM trades ORDER BY entry_time DESC LIMIT ?`, limit)
}

// OpenBySymbol returns the OPEN entry for a symbol, or nil if none exists.
func (r *Repository) OpenBySymbol(symbol string) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRow(
		`SELECT `+entryColumns+` FROM trades WHERE symbol = ? AND status = ? LIMIT 1`,
		symbol, StatusOpen,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open entry for %s: %w", symbol, err)
	}
	return e, nil
}

// FindByExit returns the entry whose exit matches symbol and timestamp at
// one-second precision, or nil. Used by hydration to detect duplicates.
func (r *Repository) FindByExit(symbol string, exitTime time.Time) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRow(
		`SELECT `+entryColumns+` FROM trades WHERE symbol = ? AND exit_time = ? LIMIT 1`,
		symbol, exitTime.Unix(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry by exit for %s: %w", symbol, err)
	}
	return e, nil
}

// Delete removes a row by ID. Only hydration repair uses this, to replace a
// zero-PnL ghost row with the real fill data.
func (r *Repository) Delete(id int64) error {
	if _, err := r.db.Exec(`DELETE FROM trades WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete journal entry %d: %w", id, err)
	}
	return nil
}

// UpdatePlan adjusts the stop, target and notes of an entry. Manual
// corrections from the API go through here; PnL fields are off limits.
func (r *Repository) UpdatePlan(id int64, stopPrice, targetPrice float64, notes string) error {
	res, err := r.db.Exec(`
		UPDATE trades SET stop_price = ?, target_price = ?, notes = ? WHERE id = ?`,
		stopPrice, targetPrice, notes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update journal entry %d: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("journal entry %d not found", id)
	}
	return nil
}

// CountOpen returns the number of OPEN rows.
func (r *Repository) CountOpen() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE status = ?`, StatusOpen).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count open entries: %w", err)
	}
	return n, nil
}

func (r *Repository) query(q string, args ...interface{}) ([]Entry, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
