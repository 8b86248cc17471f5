// Package signals implements idempotent intake of execution instructions:
// a durable idempotency store keyed by signal ID, the processing service and
// the webhook handler that feeds it.
package signals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/database"
)

// Store is the durable idempotency store. A signal ID present in the store
// has been fully processed (success or definitive failure) and must never
// trigger another broker call.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates the store and ensures the schema exists.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{
		db:  db.Conn(),
		log: log.With().Str("repo", "signals").Logger(),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate signals schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_signals (
			signal_id TEXT PRIMARY KEY,
			outcome TEXT NOT NULL,
			processed_at INTEGER NOT NULL
		)`)
	return err
}

// Seen reports whether a signal ID has already been processed.
func (s *Store) Seen(signalID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM processed_signals WHERE signal_id = ?`, signalID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check signal %s: %w", signalID, err)
	}
	return true, nil
}

// Mark records a signal as processed with its terminal outcome. Idempotent;
// marking twice keeps the first record.
func (s *Store) Mark(signalID, outcome string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_signals (signal_id, outcome, processed_at) VALUES (?, ?, ?)`,
		signalID, outcome, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark signal %s: %w", signalID, err)
	}
	return nil
}

// Count returns the number of processed signals.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_signals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count processed signals: %w", err)
	}
	return n, nil
}
