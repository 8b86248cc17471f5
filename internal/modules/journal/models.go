// Package journal implements the trade journal: a durable ledger of every
// trade the engine opens, plus the reconciliation operations that keep it
// honest against the broker's records.
package journal

import "time"

// Entry status values. A row moves OPEN -> CLOSED exactly once and never back.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Entry is one row of the trade journal. Rows are created on order
// submission or discovered by reconciliation, and mutated only by the
// reconciliation engine.
type Entry struct {
	ID          int64      `json:"id"`
	TradeID     string     `json:"trade_id"` // unique, derived from the signal ID or synthesized
	Symbol      string     `json:"symbol"`
	Bucket      string     `json:"bucket"`
	SetupName   string     `json:"setup_name"`
	Side        string     `json:"side"` // buy (long) or sell (short entry)
	Qty         float64    `json:"qty"`
	EntryTime   time.Time  `json:"entry_time"`
	EntryPrice  float64    `json:"entry_price"`
	StopPrice   float64    `json:"stop_price"`
	TargetPrice float64    `json:"target_price"`
	RiskDollars float64    `json:"risk_dollars"` // |entry - stop| * qty, fixed at creation
	ExitTime    *time.Time `json:"exit_time,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	PnLDollars  float64    `json:"pnl_dollars"`
	PnLPercent  float64    `json:"pnl_percent"`
	RMultiple   float64    `json:"r_multiple"`
	HoldingMin  int64      `json:"holding_minutes"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	Score       float64    `json:"score,omitempty"`
}

// Open reports whether the entry is still an open position.
func (e *Entry) Open() bool {
	return e.Status == StatusOpen
}
