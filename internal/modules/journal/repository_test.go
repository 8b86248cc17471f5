package journal

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniceagle/trader/internal/database"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:journal_%s?mode=memory&cache=shared", uuid.NewString()),
		Profile: database.ProfileStandard,
		Name:    "journal-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func openEntry(symbol string, entryTime time.Time) *Entry {
	return &Entry{
		TradeID:     "trade-" + uuid.NewString(),
		Symbol:      symbol,
		Bucket:      "SWING",
		Side:        "buy",
		Qty:         100,
		EntryTime:   entryTime,
		EntryPrice:  50,
		StopPrice:   49,
		TargetPrice: 53,
		RiskDollars: 100,
		Status:      StatusOpen,
	}
}

func TestRepository_InsertAndFetch(t *testing.T) {
	repo := testRepo(t)

	e := openEntry("AAPL", time.Now().UTC())
	require.NoError(t, repo.Insert(e))
	assert.Positive(t, e.ID)

	got, err := repo.OpenBySymbol("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.TradeID, got.TradeID)
	assert.Equal(t, 50.0, got.EntryPrice)
	assert.WithinDuration(t, e.EntryTime, got.EntryTime, time.Second)

	none, err := repo.OpenBySymbol("MSFT")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepository_DuplicateTradeIDRejected(t *testing.T) {
	repo := testRepo(t)

	e := openEntry("AAPL", time.Now().UTC())
	require.NoError(t, repo.Insert(e))

	dup := openEntry("AAPL", time.Now().UTC())
	dup.TradeID = e.TradeID
	assert.Error(t, repo.Insert(dup))
}

func TestRepository_CloseOutIsOneWay(t *testing.T) {
	repo := testRepo(t)

	entryTime := time.Now().UTC().Add(-2 * time.Hour)
	e := openEntry("AAPL", entryTime)
	require.NoError(t, repo.Insert(e))

	exitTime := entryTime.Add(90 * time.Minute)
	closed, err := repo.CloseOut(e.ID, exitTime, 52, 200, 4, 2, 90)
	require.NoError(t, err)
	assert.True(t, closed)

	// A second close attempt must affect nothing.
	closed, err = repo.CloseOut(e.ID, exitTime.Add(time.Hour), 10, -4000, -80, -40, 150)
	require.NoError(t, err)
	assert.False(t, closed)

	all, err := repo.ClosedEntries()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 52.0, all[0].ExitPrice)
	assert.Equal(t, 200.0, all[0].PnLDollars)
	assert.Equal(t, int64(90), all[0].HoldingMin)
}

func TestRepository_FindByExit(t *testing.T) {
	repo := testRepo(t)

	entryTime := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	exitTime := entryTime.Add(time.Hour)

	e := openEntry("AAPL", entryTime)
	e.Status = StatusClosed
	e.ExitTime = &exitTime
	e.ExitPrice = 51
	e.PnLDollars = 100
	require.NoError(t, repo.Insert(e))

	got, err := repo.FindByExit("AAPL", exitTime)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.TradeID, got.TradeID)

	miss, err := repo.FindByExit("AAPL", exitTime.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestRepository_UpdatePlan(t *testing.T) {
	repo := testRepo(t)

	e := openEntry("AAPL", time.Now().UTC())
	require.NoError(t, repo.Insert(e))

	require.NoError(t, repo.UpdatePlan(e.ID, 48.5, 55, "widened stop"))

	got, err := repo.OpenBySymbol("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 48.5, got.StopPrice)
	assert.Equal(t, 55.0, got.TargetPrice)
	assert.Equal(t, "widened stop", got.Notes)

	assert.Error(t, repo.UpdatePlan(99999, 1, 2, "missing"))
}

func TestRepository_CountOpen(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Insert(openEntry("AAPL", time.Now().UTC())))
	require.NoError(t, repo.Insert(openEntry("MSFT", time.Now().UTC())))

	n, err := repo.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
