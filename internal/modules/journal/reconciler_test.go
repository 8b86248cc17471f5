package journal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniceagle/trader/internal/brokertest"
	"github.com/harmoniceagle/trader/internal/domain"
)

func testReconciler(t *testing.T) (*Reconciler, *Repository, *brokertest.MockBroker) {
	t.Helper()
	repo := testRepo(t)
	broker := brokertest.New()
	return NewReconciler(repo, broker, zerolog.Nop()), repo, broker
}

func fill(id, symbol, side string, price, qty float64, at time.Time) domain.Order {
	filledAt := at
	return domain.Order{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Status:         domain.OrderStatusFilled,
		Qty:            qty,
		FilledQty:      qty,
		FilledAvgPrice: price,
		SubmittedAt:    at.Add(-time.Minute),
		FilledAt:       &filledAt,
	}
}

func TestSync_SeedsOrphanPosition(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	broker.Positions = []domain.Position{
		{Symbol: "NVDA", Qty: 10, Side: "long", AvgEntryPrice: 500, CurrentPrice: 510},
	}

	require.NoError(t, rec.Sync(context.Background()))

	seeded, err := repo.OpenBySymbol("NVDA")
	require.NoError(t, err)
	require.NotNil(t, seeded)
	assert.Equal(t, domain.BucketSeeded, seeded.Bucket)
	assert.Equal(t, 500.0, seeded.EntryPrice)
	assert.InDelta(t, 510*0.98, seeded.StopPrice, 1e-9)
	assert.Contains(t, seeded.Notes, "Recovered")

	// A second pass must not seed a duplicate.
	require.NoError(t, rec.Sync(context.Background()))
	n, err := repo.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSync_KnownPositionNotSeeded(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	require.NoError(t, repo.Insert(openEntry("AAPL", time.Now().UTC())))
	broker.Positions = []domain.Position{
		{Symbol: "AAPL", Qty: 100, Side: "long", AvgEntryPrice: 50, CurrentPrice: 51},
	}

	require.NoError(t, rec.Sync(context.Background()))

	n, err := repo.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDetectClosed_EarliestSellAfterEntryWins(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	entryTime := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	e := openEntry("AAPL", entryTime)
	require.NoError(t, repo.Insert(e))

	// Position is gone at the broker; two sells exist after entry plus one
	// stale sell from before the entry that must be ignored.
	broker.Orders = []domain.Order{
		fill("sell-late", "AAPL", domain.SideSell, 53, 100, entryTime.Add(3*time.Hour)),
		fill("sell-first", "AAPL", domain.SideSell, 52, 100, entryTime.Add(90*time.Minute)),
		fill("sell-stale", "AAPL", domain.SideSell, 48, 100, entryTime.Add(-time.Hour)),
	}

	require.NoError(t, rec.DetectClosed(context.Background()))

	closed, err := repo.ClosedEntries()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, 52.0, closed[0].ExitPrice)
	assert.Equal(t, 200.0, closed[0].PnLDollars) // (52-50)*100
	assert.Equal(t, 2.0, closed[0].RMultiple)    // 200 / 100 risk dollars
	assert.Equal(t, int64(90), closed[0].HoldingMin)
}

func TestDetectClosed_ShortCoverMatchesBuyNotOwnEntryFill(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	entryTime := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	short := &Entry{
		TradeID:     "sig-short-1",
		Symbol:      "TSLA",
		Side:        domain.SideSell,
		Qty:         10,
		EntryTime:   entryTime,
		EntryPrice:  200,
		StopPrice:   204,
		RiskDollars: 40,
		Status:      StatusOpen,
	}
	require.NoError(t, repo.Insert(short))

	// The short's own opening SELL fill lands seconds after the row's entry
	// time; only the covering BUY may close the row.
	ownEntry := fill("sell-entry", "TSLA", domain.SideSell, 199.9, 10, entryTime.Add(5*time.Second))
	ownEntry.ClientOrderID = "sig-short-1"
	broker.Orders = []domain.Order{
		ownEntry,
		fill("buy-cover", "TSLA", domain.SideBuy, 190, 10, entryTime.Add(2*time.Hour)),
	}

	require.NoError(t, rec.DetectClosed(context.Background()))

	closed, err := repo.ClosedEntries()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, 190.0, closed[0].ExitPrice)
	assert.InDelta(t, 100.0, closed[0].PnLDollars, 1e-9) // (200-190)*10, short side
	assert.InDelta(t, 2.5, closed[0].RMultiple, 1e-9)
	assert.Equal(t, int64(120), closed[0].HoldingMin)
}

func TestDetectClosed_NoExitFillLeavesOpen(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	require.NoError(t, repo.Insert(openEntry("AAPL", time.Now().UTC().Add(-time.Hour))))
	broker.Orders = nil // position gone, no fills visible yet

	require.NoError(t, rec.DetectClosed(context.Background()))

	n, err := repo.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDetectClosed_HeldPositionStaysOpen(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	entryTime := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Insert(openEntry("AAPL", entryTime)))
	broker.Positions = []domain.Position{{Symbol: "AAPL", Qty: 100, Side: "long"}}
	broker.Orders = []domain.Order{
		fill("sell-1", "AAPL", domain.SideSell, 52, 100, entryTime.Add(30*time.Minute)),
	}

	require.NoError(t, rec.DetectClosed(context.Background()))

	n, err := repo.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHydrate_RebuildsRoundTripsIdempotently(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	base := time.Date(2026, 8, 17, 14, 0, 0, 0, time.UTC)
	// Two complete round-trips on AAPL plus one on MSFT, interleaved.
	broker.Orders = []domain.Order{
		fill("b1", "AAPL", domain.SideBuy, 100, 10, base),
		fill("b2", "MSFT", domain.SideBuy, 300, 5, base.Add(10*time.Minute)),
		fill("s1", "AAPL", domain.SideSell, 105, 10, base.Add(time.Hour)),
		fill("b3", "AAPL", domain.SideBuy, 104, 10, base.Add(2*time.Hour)),
		fill("s2", "MSFT", domain.SideSell, 290, 5, base.Add(3*time.Hour)),
		fill("s3", "AAPL", domain.SideSell, 110, 10, base.Add(4*time.Hour)),
	}

	inserted, err := rec.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	closed, err := repo.ClosedEntries()
	require.NoError(t, err)
	require.Len(t, closed, 3)

	pnlBySymbolExit := make(map[string]float64)
	for _, e := range closed {
		assert.Equal(t, StatusClosed, e.Status)
		pnlBySymbolExit[e.TradeID] = e.PnLDollars
	}
	assert.Equal(t, 50.0, pnlBySymbolExit["hydrated-s1"])  // (105-100)*10
	assert.Equal(t, -50.0, pnlBySymbolExit["hydrated-s2"]) // (290-300)*5
	assert.Equal(t, 60.0, pnlBySymbolExit["hydrated-s3"])  // (110-104)*10, LIFO pairs s3 with b3

	// Re-running produces nothing new.
	inserted, err = rec.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	closed, err = repo.ClosedEntries()
	require.NoError(t, err)
	assert.Len(t, closed, 3)
}

func TestHydrate_RepairsZeroPnLGhostRow(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	entryTime := time.Date(2026, 8, 17, 14, 0, 0, 0, time.UTC)
	exitTime := entryTime.Add(time.Hour)

	// Ghost row: closed before fill data was available, zero PnL.
	ghost := openEntry("AAPL", entryTime)
	ghost.Status = StatusClosed
	ghost.ExitTime = &exitTime
	ghost.ExitPrice = 0
	ghost.PnLDollars = 0
	require.NoError(t, repo.Insert(ghost))

	broker.Orders = []domain.Order{
		fill("b1", "AAPL", domain.SideBuy, 100, 15, entryTime),
		fill("s1", "AAPL", domain.SideSell, 102.5, 15, exitTime),
	}

	inserted, err := rec.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	closed, err := repo.ClosedEntries()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, 37.5, closed[0].PnLDollars) // (102.5-100)*15
	assert.Equal(t, "hydrated-s1", closed[0].TradeID)
}

func TestHydrate_NonZeroPnLRowIsSkipped(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	entryTime := time.Date(2026, 8, 17, 14, 0, 0, 0, time.UTC)
	exitTime := entryTime.Add(time.Hour)

	existing := openEntry("AAPL", entryTime)
	existing.Status = StatusClosed
	existing.ExitTime = &exitTime
	existing.ExitPrice = 102.5
	existing.PnLDollars = 37.5
	require.NoError(t, repo.Insert(existing))

	broker.Orders = []domain.Order{
		fill("b1", "AAPL", domain.SideBuy, 100, 15, entryTime),
		fill("s1", "AAPL", domain.SideSell, 102.5, 15, exitTime),
	}

	inserted, err := rec.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	closed, err := repo.ClosedEntries()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, existing.TradeID, closed[0].TradeID)
}

func TestHydrate_SellWithoutEntryIsSkipped(t *testing.T) {
	rec, repo, broker := testReconciler(t)

	broker.Orders = []domain.Order{
		fill("s1", "AAPL", domain.SideSell, 102.5, 15, time.Now().UTC()),
	}

	inserted, err := rec.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	closed, err := repo.ClosedEntries()
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestLifoMatcher_PairsNearestPrecedingBuy(t *testing.T) {
	base := time.Date(2026, 8, 17, 14, 0, 0, 0, time.UTC)
	exit := fill("s1", "AAPL", domain.SideSell, 110, 10, base.Add(3*time.Hour))
	older := []domain.Order{
		fill("b2", "AAPL", domain.SideBuy, 104, 10, base.Add(2*time.Hour)),
		fill("other", "MSFT", domain.SideBuy, 300, 5, base.Add(time.Hour)),
		fill("b1", "AAPL", domain.SideBuy, 100, 10, base),
	}

	match := lifoMatcher{}.MatchEntry(exit, older)
	require.NotNil(t, match)
	assert.Equal(t, "b2", match.ID)
}
