package journal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/metrics"
)

// Stop distance used when seeding a recovered position. The real stop is
// unknown, so 2% of current price stands in until an operator corrects it.
const seededStopPercent = 0.02

// ExitMatcher pairs a closed SELL fill with the entry fill that opened the
// position. The default is a best-effort last-in-first-out heuristic; the
// interface exists so a lot-accurate matcher can replace it without touching
// the hydration loop.
type ExitMatcher interface {
	// MatchEntry picks the entry order for exit from older, which holds
	// fills that happened before the exit, newest first. Returns nil when
	// no plausible entry exists.
	MatchEntry(exit domain.Order, older []domain.Order) *domain.Order
}

// lifoMatcher pairs each SELL with the nearest preceding BUY on the same
// symbol. Deterministic and idempotent, but not lot-accurate.
type lifoMatcher struct{}

func (lifoMatcher) MatchEntry(exit domain.Order, older []domain.Order) *domain.Order {
	for i := range older {
		o := older[i]
		if o.Symbol == exit.Symbol && strings.EqualFold(o.Side, domain.SideBuy) && o.FilledAt != nil {
			return &older[i]
		}
	}
	return nil
}

// Reconciler keeps the journal consistent with the broker's view of the
// account. All three operations are idempotent and safe to re-run at any
// time, including concurrently with each other.
type Reconciler struct {
	repo    *Repository
	broker  domain.BrokerClient
	matcher ExitMatcher
	log     zerolog.Logger
}

// NewReconciler builds a reconciler with the default LIFO exit matcher.
func NewReconciler(repo *Repository, broker domain.BrokerClient, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:    repo,
		broker:  broker,
		matcher: lifoMatcher{},
		log:     log.With().Str("service", "reconciler").Logger(),
	}
}

// Run executes a full reconciliation pass: seed orphans, then detect closes.
// Errors in one operation do not stop the other.
func (r *Reconciler) Run(ctx context.Context) {
	if err := r.Sync(ctx); err != nil {
		r.log.Error().Err(err).Msg("Orphan sync failed")
	}
	if err := r.DetectClosed(ctx); err != nil {
		r.log.Error().Err(err).Msg("Close detection failed")
	}
	r.updateOpenGauge()
}

// Sync seeds journal entries for broker positions the journal does not know
// about. This happens after a crash lost a write, or after a manual trade.
// The seeded stop and risk figures are estimates, flagged as such in notes.
func (r *Reconciler) Sync(ctx context.Context) error {
	metrics.ReconciliationRuns.WithLabelValues("sync").Inc()

	positions, err := r.broker.ListPositions()
	if err != nil {
		return fmt.Errorf("failed to list broker positions: %w", err)
	}

	open, err := r.repo.OpenEntries()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(open))
	for _, e := range open {
		known[e.Symbol] = true
	}

	for _, pos := range positions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if known[pos.Symbol] {
			continue
		}

		stop := pos.CurrentPrice * (1 - seededStopPercent)
		side := domain.SideBuy
		if strings.EqualFold(pos.Side, "short") {
			stop = pos.CurrentPrice * (1 + seededStopPercent)
			side = domain.SideSell
		}

		entry := &Entry{
			TradeID:     "seed-" + uuid.NewString(),
			Symbol:      pos.Symbol,
			Bucket:      domain.BucketSeeded,
			Side:        side,
			Qty:         math.Abs(pos.Qty),
			EntryTime:   time.Now().UTC(),
			EntryPrice:  pos.AvgEntryPrice,
			StopPrice:   stop,
			RiskDollars: math.Abs(pos.AvgEntryPrice-stop) * math.Abs(pos.Qty),
			Status:      StatusOpen,
			Notes:       "Recovered from broker state; stop is an estimate",
		}
		if err := r.repo.Insert(entry); err != nil {
			r.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to seed orphan position")
			continue
		}
		r.log.Warn().
			Str("symbol", pos.Symbol).
			Float64("qty", entry.Qty).
			Float64("estimated_stop", stop).
			Msg("Orphan position seeded into journal")
	}
	return nil
}

// DetectClosed closes OPEN entries whose symbol no longer appears in the
// broker's positions. The exit is the earliest closing-side fill after the
// entry time; if no such fill exists yet, the row stays OPEN for the next
// cycle.
func (r *Reconciler) DetectClosed(ctx context.Context) error {
	metrics.ReconciliationRuns.WithLabelValues("close").Inc()

	open, err := r.repo.OpenEntries()
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	positions, err := r.broker.ListPositions()
	if err != nil {
		return fmt.Errorf("failed to list broker positions: %w", err)
	}
	held := make(map[string]bool, len(positions))
	for _, pos := range positions {
		held[pos.Symbol] = true
	}

	for _, e := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if held[e.Symbol] {
			continue
		}

		exit := r.findExitFill(e)
		if exit == nil {
			r.log.Debug().
				Str("symbol", e.Symbol).
				Msg("Position gone but no exit fill found yet, leaving OPEN")
			continue
		}

		pnl, pnlPct, rMultiple, holdingMin := exitFigures(&e, exit.FilledAvgPrice, *exit.FilledAt)
		closed, err := r.repo.CloseOut(e.ID, *exit.FilledAt, exit.FilledAvgPrice, pnl, pnlPct, rMultiple, holdingMin)
		if err != nil {
			r.log.Error().Err(err).Str("symbol", e.Symbol).Msg("Failed to close journal entry")
			continue
		}
		if closed {
			r.log.Info().
				Str("symbol", e.Symbol).
				Float64("pnl", pnl).
				Float64("r_multiple", rMultiple).
				Msg("Trade closed by reconciliation")
		}
	}
	return nil
}

// findExitFill returns the earliest closing-side fill after the entry time,
// or nil. A long closes with a SELL, a short covers with a BUY. The entry's
// own fill can land after the row's entry_time, so fills carrying the row's
// trade ID are never exit candidates.
func (r *Reconciler) findExitFill(e Entry) *domain.Order {
	closingSide := domain.SideSell
	if strings.EqualFold(e.Side, domain.SideSell) {
		closingSide = domain.SideBuy
	}

	orders, err := r.broker.ListOrders("closed", []string{e.Symbol}, 50)
	if err != nil {
		r.log.Error().Err(err).Str("symbol", e.Symbol).Msg("Failed to list closed orders")
		return nil
	}

	var earliest *domain.Order
	for i := range orders {
		o := orders[i]
		if !strings.EqualFold(o.Side, closingSide) || o.FilledAt == nil {
			continue
		}
		if o.ClientOrderID != "" && o.ClientOrderID == e.TradeID {
			continue
		}
		if !o.FilledAt.After(e.EntryTime) {
			continue
		}
		if earliest == nil || o.FilledAt.Before(*earliest.FilledAt) {
			earliest = &orders[i]
		}
	}
	return earliest
}

// Hydrate rebuilds CLOSED journal rows from the broker's order history.
// It walks filled SELLs newest-first, pairs each with an entry via the
// matcher, and inserts any round-trip the journal is missing. A row already
// present with non-zero PnL is a true duplicate and skipped; a zero-PnL row
// at the same exit timestamp is a ghost record created before fill data was
// available, so it is deleted and reinserted with the real figures.
// Returns the number of rows written.
func (r *Reconciler) Hydrate(ctx context.Context) (int, error) {
	metrics.ReconciliationRuns.WithLabelValues("hydrate").Inc()

	orders, err := r.broker.ListOrders("closed", nil, 500)
	if err != nil {
		return 0, fmt.Errorf("failed to list order history: %w", err)
	}

	fills := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == domain.OrderStatusFilled && o.FilledAt != nil && o.FilledQty > 0 {
			fills = append(fills, o)
		}
	}
	// Newest first; the API returns descending but a re-run through a mock
	// or cached source must not depend on that.
	sortFillsDesc(fills)

	used := make(map[string]bool)
	inserted := 0

	for i := range fills {
		if ctx.Err() != nil {
			return inserted, ctx.Err()
		}
		exit := fills[i]
		if !strings.EqualFold(exit.Side, domain.SideSell) || used[exit.ID] {
			continue
		}

		older := availableAfter(fills, i+1, used)
		entry := r.matcher.MatchEntry(exit, older)
		if entry == nil {
			continue
		}
		used[exit.ID] = true
		used[entry.ID] = true

		exitTime := exit.FilledAt.Truncate(time.Second)
		existing, err := r.repo.FindByExit(exit.Symbol, exitTime)
		if err != nil {
			r.log.Error().Err(err).Str("symbol", exit.Symbol).Msg("Hydration lookup failed")
			continue
		}

		qty := exit.FilledQty
		pnl := (exit.FilledAvgPrice - entry.FilledAvgPrice) * qty

		if existing != nil {
			if existing.PnLDollars != 0 {
				continue
			}
			// Ghost row repair: replace the zero-PnL record.
			if err := r.repo.Delete(existing.ID); err != nil {
				r.log.Error().Err(err).Int64("id", existing.ID).Msg("Failed to delete ghost row")
				continue
			}
			r.log.Info().
				Str("symbol", exit.Symbol).
				Float64("pnl", pnl).
				Msg("Repairing zero-PnL journal row from broker history")
		}

		row := hydratedEntry(entry, &exit, qty, pnl)
		if err := r.repo.Insert(row); err != nil {
			r.log.Error().Err(err).Str("symbol", exit.Symbol).Msg("Failed to insert hydrated row")
			continue
		}
		inserted++
	}

	if inserted > 0 {
		r.log.Info().Int("rows", inserted).Msg("Journal hydrated from broker history")
	}
	r.updateOpenGauge()
	return inserted, nil
}

// hydratedEntry builds a CLOSED row from a matched entry/exit fill pair.
// The original stop is unrecoverable, so risk is estimated at 2% of entry.
func hydratedEntry(entry, exit *domain.Order, qty, pnl float64) *Entry {
	entryTime := entry.FilledAt.Truncate(time.Second)
	exitTime := exit.FilledAt.Truncate(time.Second)

	estStop := entry.FilledAvgPrice * (1 - seededStopPercent)
	risk := (entry.FilledAvgPrice - estStop) * qty

	e := &Entry{
		TradeID:     "hydrated-" + exit.ID,
		Symbol:      exit.Symbol,
		Bucket:      domain.BucketSeeded,
		Side:        domain.SideBuy,
		Qty:         qty,
		EntryTime:   entryTime,
		EntryPrice:  entry.FilledAvgPrice,
		StopPrice:   estStop,
		RiskDollars: risk,
		ExitTime:    &exitTime,
		ExitPrice:   exit.FilledAvgPrice,
		PnLDollars:  pnl,
		HoldingMin:  int64(exitTime.Sub(entryTime).Minutes()),
		Status:      StatusClosed,
		Notes:       "Hydrated from broker order history",
	}
	if entry.FilledAvgPrice > 0 {
		e.PnLPercent = (exit.FilledAvgPrice - entry.FilledAvgPrice) / entry.FilledAvgPrice * 100
	}
	if risk > 0 {
		e.RMultiple = pnl / risk
	}
	return e
}

// exitFigures computes the close-out numbers for an OPEN entry.
func exitFigures(e *Entry, exitPrice float64, exitTime time.Time) (pnl, pnlPct, rMultiple float64, holdingMin int64) {
	pnl = (exitPrice - e.EntryPrice) * e.Qty
	if strings.EqualFold(e.Side, domain.SideSell) {
		pnl = -pnl
	}
	if e.EntryPrice > 0 {
		pnlPct = (exitPrice - e.EntryPrice) / e.EntryPrice * 100
	}
	if e.RiskDollars > 0 {
		rMultiple = pnl / e.RiskDollars
	}
	holdingMin = int64(exitTime.Sub(e.EntryTime).Minutes())
	return pnl, pnlPct, rMultiple, holdingMin
}

func (r *Reconciler) updateOpenGauge() {
	if n, err := r.repo.CountOpen(); err == nil {
		metrics.JournalOpenPositions.Set(float64(n))
	}
}

// availableAfter returns fills[from:] minus already-consumed orders.
func availableAfter(fills []domain.Order, from int, used map[string]bool) []domain.Order {
	out := make([]domain.Order, 0, len(fills)-from)
	for i := from; i < len(fills); i++ {
		if !used[fills[i].ID] {
			out = append(out, fills[i])
		}
	}
	return out
}

func sortFillsDesc(fills []domain.Order) {
	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].FilledAt.After(*fills[j].FilledAt)
	})
}
